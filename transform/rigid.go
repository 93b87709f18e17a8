package transform

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RigidTransform is a rotation followed by a translation: p' = R p + T.
type RigidTransform struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// NewRigidTransform copies the rotation. A nil rotation is the identity.
func NewRigidTransform(rot mat.Matrix, t r3.Vector) *RigidTransform {
	if rot == nil {
		return &RigidTransform{Rotation: eye(3), Translation: t}
	}
	return &RigidTransform{Rotation: mat.DenseCopyOf(rot), Translation: t}
}

// Apply transforms a single point.
func (rt *RigidTransform) Apply(p r3.Vector) r3.Vector {
	m := rt.Rotation
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z + rt.Translation.X,
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z + rt.Translation.Y,
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z + rt.Translation.Z,
	}
}

// ApplyAll transforms every point.
func (rt *RigidTransform) ApplyAll(pts []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = rt.Apply(p)
	}
	return out
}

// Compose returns the transform applying rt first and then next.
func (rt *RigidTransform) Compose(next *RigidTransform) *RigidTransform {
	var rot mat.Dense
	rot.Mul(next.Rotation, rt.Rotation)
	return &RigidTransform{Rotation: &rot, Translation: next.Apply(rt.Translation)}
}

// Inverse returns the transform undoing rt. The rotation is assumed orthonormal.
func (rt *RigidTransform) Inverse() *RigidTransform {
	rotInv := mat.DenseCopyOf(rt.Rotation.T())
	inv := &RigidTransform{Rotation: rotInv}
	inv.Translation = inv.Apply(rt.Translation).Mul(-1)
	return inv
}
