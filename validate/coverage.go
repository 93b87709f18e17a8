package validate

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// Grid divides the image plane into Cols x Rows equal cells.
type Grid struct {
	Cols int
	Rows int
}

// DefaultGrid is 4 columns by 3 rows.
var DefaultGrid = Grid{Cols: 4, Rows: 3}

// Coverage is the fraction of grid cells holding at least one point. Points outside the image
// and non-finite points are ignored, so adding point sets never lowers the result.
func Coverage(points [][]r2.Point, size image.Point, grid Grid) (float64, error) {
	if size.X <= 0 || size.Y <= 0 {
		return 0, errors.Errorf("image size must be positive, got %dx%d", size.X, size.Y)
	}
	if grid.Cols <= 0 || grid.Rows <= 0 {
		return 0, errors.Errorf("grid must have positive dimensions, got %dx%d", grid.Cols, grid.Rows)
	}
	cellW := float64(size.X) / float64(grid.Cols)
	cellH := float64(size.Y) / float64(grid.Rows)

	covered := make([]bool, grid.Cols*grid.Rows)
	count := 0
	for _, set := range points {
		for _, p := range set {
			if !finite(p.X) || !finite(p.Y) {
				continue
			}
			if p.X < 0 || p.Y < 0 || p.X >= float64(size.X) || p.Y >= float64(size.Y) {
				continue
			}
			col := min(int(p.X/cellW), grid.Cols-1)
			row := min(int(p.Y/cellH), grid.Rows-1)
			if idx := row*grid.Cols + col; !covered[idx] {
				covered[idx] = true
				count++
			}
		}
	}
	return float64(count) / float64(len(covered)), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
