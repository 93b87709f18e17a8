package calibrate

import (
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// A Pattern is a planar calibration target with known geometry.
type Pattern interface {
	// ObjectPoints returns the target points in millimeters on the Z = 0 plane, in the order a
	// detector reports them.
	ObjectPoints() []r3.Vector
	// Dims is the number of points per row (X) and per column (Y).
	Dims() image.Point
}

// Chessboard is a grid of inner corners spaced SquareSize apart.
type Chessboard struct {
	Rows       int
	Cols       int
	SquareSize float64
}

// ObjectPoints are row major with x running over columns.
func (c Chessboard) ObjectPoints() []r3.Vector {
	if c.Rows <= 0 || c.Cols <= 0 {
		return nil
	}
	pts := make([]r3.Vector, 0, c.Rows*c.Cols)
	for i := 0; i < c.Rows; i++ {
		for j := 0; j < c.Cols; j++ {
			pts = append(pts, r3.Vector{X: float64(j) * c.SquareSize, Y: float64(i) * c.SquareSize})
		}
	}
	return pts
}

// Dims returns (Cols, Rows).
func (c Chessboard) Dims() image.Point {
	return image.Point{X: c.Cols, Y: c.Rows}
}

// AsymmetricCircles is a circle grid whose odd rows are shifted by one spacing.
type AsymmetricCircles struct {
	Rows    int
	Cols    int
	Spacing float64
}

// ObjectPoints places circle (i, j) at ((2j + i%2) * Spacing, i * Spacing).
func (a AsymmetricCircles) ObjectPoints() []r3.Vector {
	if a.Rows <= 0 || a.Cols <= 0 {
		return nil
	}
	pts := make([]r3.Vector, 0, a.Rows*a.Cols)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < a.Cols; j++ {
			pts = append(pts, r3.Vector{X: float64(2*j+i%2) * a.Spacing, Y: float64(i) * a.Spacing})
		}
	}
	return pts
}

// Dims returns (Cols, Rows).
func (a AsymmetricCircles) Dims() image.Point {
	return image.Point{X: a.Cols, Y: a.Rows}
}

// An IndexedPattern is a target whose detections carry ids, so each view may see a different
// subset of its points.
type IndexedPattern interface {
	Pattern
	// ObjectPointsFor returns the target points with the given ids, in the same order.
	ObjectPointsFor(ids []int) ([]r3.Vector, error)
}

// Charuco is a ChArUco board of SquaresX by SquaresY squares. Its points are the inner chessboard
// corners, numbered row major from the corner nearest the origin.
type Charuco struct {
	SquaresX   int
	SquaresY   int
	SquareSize float64
	MarkerSize float64
}

// Validate checks the board geometry.
func (c Charuco) Validate() error {
	if c.SquaresX < 2 || c.SquaresY < 2 {
		return errors.Errorf("charuco board needs at least 2x2 squares, got %dx%d", c.SquaresX, c.SquaresY)
	}
	if c.SquareSize <= 0 || c.MarkerSize <= 0 || c.MarkerSize >= c.SquareSize {
		return errors.Errorf("charuco markers must be smaller than the squares, got marker %v and square %v",
			c.MarkerSize, c.SquareSize)
	}
	return nil
}

// ObjectPoints returns every corner in id order.
func (c Charuco) ObjectPoints() []r3.Vector {
	if c.SquaresX < 2 || c.SquaresY < 2 {
		return nil
	}
	pts := make([]r3.Vector, (c.SquaresX-1)*(c.SquaresY-1))
	for id := range pts {
		pts[id] = c.corner(id)
	}
	return pts
}

// ObjectPointsFor places corner id at ((id%(SquaresX-1)+1) * SquareSize, (id/(SquaresX-1)+1) * SquareSize).
func (c Charuco) ObjectPointsFor(ids []int) ([]r3.Vector, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	n := (c.SquaresX - 1) * (c.SquaresY - 1)
	pts := make([]r3.Vector, len(ids))
	for i, id := range ids {
		if id < 0 || id >= n {
			return nil, errors.Errorf("charuco corner id %d out of range [0, %d)", id, n)
		}
		pts[i] = c.corner(id)
	}
	return pts, nil
}

func (c Charuco) corner(id int) r3.Vector {
	perRow := c.SquaresX - 1
	return r3.Vector{
		X: float64(id%perRow+1) * c.SquareSize,
		Y: float64(id/perRow+1) * c.SquareSize,
	}
}

// Dims returns the inner corner grid, (SquaresX-1, SquaresY-1).
func (c Charuco) Dims() image.Point {
	return image.Point{X: c.SquaresX - 1, Y: c.SquaresY - 1}
}
