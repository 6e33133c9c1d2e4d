// Package grid provides the structured rectilinear grid that field
// quantities are sampled on, and the mapping from physical coordinates
// to fractional grid indices.
//
// A [Grid] owns only the axis coordinates. The sampled quantities live in
// [Field3] arrays that share the grid's shape. Axes must be strictly
// increasing; spacing may be non-uniform. Grids are immutable after
// construction and safe for concurrent readers.
package grid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Policy selects how queries outside the grid domain are handled.
type Policy int

const (
	// PolicyError reports out-of-domain queries as ErrOutOfDomain.
	PolicyError Policy = iota
	// PolicyClamp clamps out-of-domain queries to the nearest boundary point.
	PolicyClamp
)

func (p Policy) String() string {
	switch p {
	case PolicyClamp:
		return "clamp"
	case PolicyError:
		return "error"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses a boundary policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "clamp":
		return PolicyClamp, nil
	case "error", "":
		return PolicyError, nil
	default:
		return 0, fmt.Errorf("grid: unknown boundary policy %q", s)
	}
}

// Grid is a logically rectilinear 3D grid defined by three strictly
// increasing coordinate axes.
type Grid struct {
	x, y, z []float64

	// Inverse mean spacing per axis, used as the initial guess when
	// locating a coordinate. Exact only for uniform axes.
	invDx, invDy, invDz float64
}

// New validates the axes and constructs a grid. Each axis needs at least
// two points and must be strictly increasing.
func New(x, y, z []float64) (*Grid, error) {
	for _, ax := range []struct {
		name string
		c    []float64
	}{{"x", x}, {"y", y}, {"z", z}} {
		if len(ax.c) < 2 {
			return nil, fmt.Errorf("grid: axis %s has %d points, need at least 2", ax.name, len(ax.c))
		}
		for i := 0; i < len(ax.c)-1; i++ {
			if ax.c[i+1] <= ax.c[i] {
				return nil, fmt.Errorf("grid: axis %s not strictly increasing at index %d", ax.name, i)
			}
		}
	}
	g := &Grid{x: x, y: y, z: z}
	g.invDx = float64(len(x)-1) / (x[len(x)-1] - x[0])
	g.invDy = float64(len(y)-1) / (y[len(y)-1] - y[0])
	g.invDz = float64(len(z)-1) / (z[len(z)-1] - z[0])
	return g, nil
}

// Uniform builds a grid with n points per axis spanning [min, max] on
// each axis with even spacing.
func Uniform(nx, ny, nz int, min, max r3.Vec) (*Grid, error) {
	return New(span(nx, min.X, max.X), span(ny, min.Y, max.Y), span(nz, min.Z, max.Z))
}

func span(n int, lo, hi float64) []float64 {
	c := make([]float64, n)
	d := (hi - lo) / float64(n-1)
	for i := range c {
		c[i] = lo + float64(i)*d
	}
	c[n-1] = hi
	return c
}

// Dims returns the number of points along each axis.
func (g *Grid) Dims() (nx, ny, nz int) { return len(g.x), len(g.y), len(g.z) }

// X returns the x axis coordinates. The returned slice must not be modified.
func (g *Grid) X() []float64 { return g.x }

// Y returns the y axis coordinates. The returned slice must not be modified.
func (g *Grid) Y() []float64 { return g.y }

// Z returns the z axis coordinates. The returned slice must not be modified.
func (g *Grid) Z() []float64 { return g.z }

// Min returns the lower corner of the covered domain.
func (g *Grid) Min() r3.Vec { return r3.Vec{X: g.x[0], Y: g.y[0], Z: g.z[0]} }

// Max returns the upper corner of the covered domain.
func (g *Grid) Max() r3.Vec {
	return r3.Vec{X: g.x[len(g.x)-1], Y: g.y[len(g.y)-1], Z: g.z[len(g.z)-1]}
}

// Point returns the physical coordinates of grid point (i, j, k).
func (g *Grid) Point(i, j, k int) r3.Vec {
	return r3.Vec{X: g.x[i], Y: g.y[j], Z: g.z[k]}
}

// Locate maps a physical position to fractional grid indices without
// applying any boundary policy. Indices outside [0, n-1] indicate an
// out-of-domain position.
func (g *Grid) Locate(p r3.Vec) (fx, fy, fz float64) {
	fx = LocateAxis(g.x, g.invDx, p.X)
	fy = LocateAxis(g.y, g.invDy, p.Y)
	fz = LocateAxis(g.z, g.invDz, p.Z)
	return fx, fy, fz
}

// Map locates a position and applies the boundary policy to each index.
// Under PolicyError a position outside the domain returns ErrOutOfDomain;
// under PolicyClamp indices are clamped to [0, n-1].
func (g *Grid) Map(p r3.Vec, pol Policy) (idx [3]float64, err error) {
	fx, fy, fz := g.Locate(p)
	ns := [3]int{len(g.x), len(g.y), len(g.z)}
	idx = [3]float64{fx, fy, fz}
	for a := 0; a < 3; a++ {
		hi := float64(ns[a] - 1)
		if idx[a] < 0 || idx[a] > hi {
			if pol == PolicyError {
				return idx, fmt.Errorf("%w: index %g on axis %d outside [0, %g]", ErrOutOfDomain, idx[a], a, hi)
			}
			if idx[a] < 0 {
				idx[a] = 0
			} else {
				idx[a] = hi
			}
		}
	}
	return idx, nil
}

// LocateAxis maps coordinate v onto a strictly increasing axis as a
// fractional index. invD is the inverse mean spacing, used to guess the
// bracketing cell before falling back to binary search, so uniform axes
// locate in O(1) and non-uniform axes in O(log n).
func LocateAxis(ax []float64, invD, v float64) float64 {
	n := len(ax)
	if v <= ax[0] {
		// Linear extrapolation of the first cell keeps the index
		// continuous across the boundary.
		return (v - ax[0]) / (ax[1] - ax[0])
	}
	if v >= ax[n-1] {
		return float64(n-1) + (v-ax[n-1])/(ax[n-1]-ax[n-2])
	}

	lo := int((v - ax[0]) * invD)
	if lo < 0 || lo >= n-1 || !(ax[lo] <= v && v <= ax[lo+1]) {
		lo = bsearch(ax, v)
	}
	return float64(lo) + (v-ax[lo])/(ax[lo+1]-ax[lo])
}

// bsearch returns the index of the largest axis element not greater than v.
func bsearch(ax []float64, v float64) int {
	lo, hi := 0, len(ax)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if v >= ax[mid] {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
