package field

import (
	"math"

	"github.com/solwind/ptrace/internal/grid"
	"gonum.org/v1/gonum/spatial/r3"
)

// Dipole evaluates the field of a point magnetic dipole with moment m at
// position p (relative to the dipole):
//
//	B(r) = (3 (m·r̂) r̂ - m) / |r|³
//
// The singularity at the origin is left to the caller; grids used with
// this generator should not contain the origin as a grid point, or should
// rely on the tracer's failure handling if they do.
func Dipole(m, p r3.Vec) r3.Vec {
	r := r3.Norm(p)
	if r == 0 {
		return r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	}
	rhat := r3.Scale(1/r, p)
	r3inv := 1 / (r * r * r)
	return r3.Scale(r3inv, r3.Sub(r3.Scale(3*r3.Dot(m, rhat), rhat), m))
}

// UniformSnapshot builds a snapshot with constant B and E everywhere on g.
func UniformSnapshot(g *grid.Grid, e, b r3.Vec) Snapshot {
	nx, ny, nz := g.Dims()
	snap := Snapshot{E: NewVecField(g), B: NewVecField(g)}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				snap.E.Set(i, j, k, e)
				snap.B.Set(i, j, k, b)
			}
		}
	}
	return snap
}

// DipoleSnapshot builds a snapshot of a dipole magnetic field centered at
// the domain origin, with zero electric field.
func DipoleSnapshot(g *grid.Grid, moment r3.Vec) Snapshot {
	nx, ny, nz := g.Dims()
	snap := Snapshot{E: NewVecField(g), B: NewVecField(g)}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				snap.B.Set(i, j, k, Dipole(moment, g.Point(i, j, k)))
			}
		}
	}
	return snap
}
