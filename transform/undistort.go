package transform

import "github.com/golang/geo/r2"

// Undistort inverts a distortion model: given distorted normalized coordinates it returns the
// undistorted coordinates that the model maps onto them. It uses Newton-Raphson with a central
// difference Jacobian so it works for any Distorter.
func Undistort(d Distorter, xd, yd float64) (float64, float64) {
	if d == nil {
		return xd, yd
	}

	// Start with the distorted point as initial guess
	xu, yu := xd, yd

	const maxIterations = 20
	const tolerance = 1e-10
	const h = 1e-7

	for i := 0; i < maxIterations; i++ {
		xdEst, ydEst := d.Transform(xu, yu)
		errX := xdEst - xd
		errY := ydEst - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		// J = [[dxd/dxu, dxd/dyu], [dyd/dxu, dyd/dyu]]
		xp, yp := d.Transform(xu+h, yu)
		xm, ym := d.Transform(xu-h, yu)
		dxdDxu, dydDxu := (xp-xm)/(2*h), (yp-ym)/(2*h)
		xp, yp = d.Transform(xu, yu+h)
		xm, ym = d.Transform(xu, yu-h)
		dxdDyu, dydDyu := (xp-xm)/(2*h), (yp-ym)/(2*h)

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}

		// Update: [xu, yu] -= J^-1 * [errX, errY]
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}

	return xu, yu
}

// UndistortPixels maps distorted pixel locations to where an ideal pinhole camera with the same
// intrinsics would have imaged them.
func (params *PinholeCameraModel) UndistortPixels(pts []r2.Point) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		n := params.Normalize(pt)
		n.X, n.Y = Undistort(params.Distortion, n.X, n.Y)
		out[i] = params.Denormalize(n)
	}
	return out
}
