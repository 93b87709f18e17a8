// Package main is the sealcalib command itself.
package main

import (
	"log"
	"os"

	"github.com/seal3d/sealcalib/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
