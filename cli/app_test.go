package cli

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/seal3d/sealcalib/archive"
	"github.com/seal3d/sealcalib/calib"
	"github.com/seal3d/sealcalib/calibrate/gocvdetect"
	"github.com/seal3d/sealcalib/transform"
)

const templatePath = "testdata/template.txt"

type testEnv struct {
	dir         string
	archivePath string
	out         bytes.Buffer
	errOut      bytes.Buffer
	clock       *clock.Mock
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	kl := mat.NewDense(3, 3, []float64{1100.5, 0, 640, 0, 1101, 360, 0, 0, 1})
	kr := mat.NewDense(3, 3, []float64{1090, 0, 630, 0, 1091, 355, 0, 0, 1})
	rot := transform.RodriguesToMatrix(r3.Vector{Y: 0.05})
	tvec := r3.Vector{X: -60.25, Y: 0.5, Z: 1.5}
	f, err := transform.FundamentalFromExtrinsics(kr, kl, rot, tvec)
	test.That(t, err, test.ShouldBeNil)
	stereo, err := calib.NewStereoParameters(calib.StereoValues{
		LeftK:     kl,
		LeftDist:  []float64{0.11, -0.21, 0.0011, 0.0021, 0.051, 0.01, 0.02, 0.03},
		RightK:    kr,
		RightDist: []float64{0.2, -0.1, 0.003, 0.001, 0.04, 0, 0, 0.01},
		R:         rot,
		T:         tvec,
		E:         transform.EssentialFromExtrinsics(rot, tvec),
		F:         f,
		RMS:       0.37,
		Size:      image.Point{X: 1280, Y: 720},
	})
	test.That(t, err, test.ShouldBeNil)

	env := &testEnv{dir: t.TempDir(), clock: clock.NewMock()}
	env.clock.Set(time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC))
	env.archivePath = filepath.Join(env.dir, "stereo.zip")
	test.That(t, archive.Save(env.archivePath, archive.FromStereo(stereo)), test.ShouldBeNil)
	return env
}

func (env *testEnv) run(args ...string) error {
	env.out.Reset()
	env.errOut.Reset()
	return newApp(&env.out, &env.errOut, env.clock).Run(append([]string{"sealcalib"}, args...))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	//nolint:gosec
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestExportWithTemplate(t *testing.T) {
	env := setup(t)
	output := filepath.Join(env.dir, "calib.txt")

	err := env.run("export", "--archive", env.archivePath, "--template", templatePath, "--output", output)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, env.out.String(), test.ShouldContainSubstring, "wrote "+output)

	got := readLines(t, output)
	want := readLines(t, templatePath)
	test.That(t, len(got), test.ShouldEqual, len(want))
	test.That(t, got[0], test.ShouldEqual, "1280 720")
	test.That(t, got[4], test.ShouldStartWith, "1100.500000 1101.000000 640.000000 360.000000 0.110000 ")
	test.That(t, got[4], test.ShouldEndWith, " 7.5 8.5 9.5")
	for _, i := range []int{1, 2, 3, 5, 6, 7, 8} {
		test.That(t, got[i], test.ShouldEqual, want[i])
	}
	test.That(t, got[9], test.ShouldEqual,
		"***DevID:JMS1006207***CalibrateDate:2024-03-05_14-07-09***Type:Sychev-calibration***SoftVersion:3.0.0.1200")

	test.That(t, env.run("inspect", output), test.ShouldBeNil)
	test.That(t, env.out.String(), test.ShouldContainSubstring, "JMS1006207")
	test.That(t, env.out.String(), test.ShouldContainSubstring, "1100.500000")
	test.That(t, env.out.String(), test.ShouldContainSubstring, "1001.000000")
	test.That(t, env.out.String(), test.ShouldContainSubstring, "Sychev-calibration")

	test.That(t, env.run("verify", templatePath, output), test.ShouldBeNil)
	test.That(t, env.out.String(), test.ShouldContainSubstring, "keeps every protected line")

	got[1] = "12.000000 4.400000"
	test.That(t, os.WriteFile(output, []byte(strings.Join(got, "\n")+"\n"), 0o600), test.ShouldBeNil)
	err = env.run("verify", templatePath, output)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, env.out.String(), test.ShouldContainSubstring, "-11.600000 4.400000")
	test.That(t, env.out.String(), test.ShouldContainSubstring, "+12.000000 4.400000")
	test.That(t, env.errOut.String(), test.ShouldContainSubstring, "Warning:")
}

func TestExportFromConfig(t *testing.T) {
	env := setup(t)
	jobPath := filepath.Join(env.dir, "job.json5")
	job := `{
	archive: "stereo.zip",
	output: "fresh.txt",
	atomic: false,
	device: {dev_id: "JMS2000001", resolution: {width: 1920, height: 1080}},
	factory: {baseline_scale: 12, depth_scale: 4.5, center_offset: [1, 2], tilt_offset: [3, -4]},
}`
	test.That(t, os.WriteFile(jobPath, []byte(job), 0o600), test.ShouldBeNil)

	test.That(t, env.run("export", "--config", jobPath), test.ShouldBeNil)
	output := filepath.Join(env.dir, "fresh.txt")
	got := readLines(t, output)
	test.That(t, len(got), test.ShouldEqual, 8)
	test.That(t, got[0], test.ShouldEqual, "1920 1080")
	test.That(t, got[2], test.ShouldEqual, "1 2")
	test.That(t, got[3], test.ShouldEqual, "3 -4")
	test.That(t, got[7], test.ShouldStartWith, "***DevID:JMS2000001***CalibrateDate:2024-03-05_14-07-09")

	test.That(t, env.errOut.String(), test.ShouldContainSubstring, "has 8 lines")
	test.That(t, env.run("inspect", output), test.ShouldNotBeNil)
}

func TestExportErrors(t *testing.T) {
	env := setup(t)
	err := env.run("export", "--archive", env.archivePath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "output")

	output := filepath.Join(env.dir, "calib.txt")
	err = env.run("export", "--archive", filepath.Join(env.dir, "missing.zip"), "--output", output)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = os.Stat(output)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	short := filepath.Join(env.dir, "short.txt")
	test.That(t, os.WriteFile(short, []byte("640 480\n"), 0o600), test.ShouldBeNil)
	err = env.run("export", "--archive", env.archivePath, "--template", short, "--output", output)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "too short")
	_, err = os.Stat(output)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	test.That(t, env.run("inspect"), test.ShouldNotBeNil)
	test.That(t, env.run("verify", templatePath), test.ShouldNotBeNil)
}

func TestReport(t *testing.T) {
	env := setup(t)
	test.That(t, env.run("report", env.archivePath), test.ShouldBeNil)
	test.That(t, env.out.String(), test.ShouldContainSubstring, "0.3700 px (excellent)")
	test.That(t, env.out.String(), test.ShouldContainSubstring, "1280x720")
	test.That(t, env.errOut.String(), test.ShouldBeEmpty)

	test.That(t, env.run("report", "--resolution", "640x480", env.archivePath), test.ShouldBeNil)
	test.That(t, env.errOut.String(), test.ShouldContainSubstring, "calibrated at 1280x720 but the device runs at 640x480")

	test.That(t, env.run("report", "--resolution", "big", env.archivePath), test.ShouldNotBeNil)
}

func TestCollectWithoutOpenCV(t *testing.T) {
	if gocvdetect.Available {
		t.Skip("built with opencv")
	}
	env := setup(t)
	err := env.run("collect", env.dir)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "opencv")
}

func TestLogFileAndSchema(t *testing.T) {
	env := setup(t)
	logPath := filepath.Join(env.dir, "sealcalib.log")
	output := filepath.Join(env.dir, "calib.txt")
	err := env.run("--debug", "--log-file", logPath,
		"export", "--archive", env.archivePath, "--template", templatePath, "--output", output)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, env.errOut.String(), test.ShouldContainSubstring, "device file written")

	//nolint:gosec
	data, err := os.ReadFile(logPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "device file written")

	test.That(t, env.run("schema"), test.ShouldBeNil)
	test.That(t, env.out.String(), test.ShouldContainSubstring, `"recalibration_type"`)
}
