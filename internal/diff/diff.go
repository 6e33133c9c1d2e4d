// Package diff computes finite-difference spatial derivatives of gridded
// quantities.
//
// Interior points use centered differences, second-order accurate on
// uniform spacing. Boundary points fall back to one-sided differences,
// which are only first-order accurate; the resulting loss of accuracy in
// the outermost cells is an intended property of the scheme and callers
// must not compensate for it.
package diff

import "github.com/solwind/ptrace/internal/grid"

// Axis identifies the differentiation direction.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

// Partial evaluates the first derivative of s along the given axis at
// grid point (i, j, k) using the on-demand stencil. g supplies the axis
// coordinates, which may be non-uniformly spaced.
func Partial(s *grid.Field3, g *grid.Grid, ax Axis, i, j, k int) float64 {
	c, idx, n := coords(g, ax), [3]int{i, j, k}, 0
	switch ax {
	case X:
		n = s.Nx
	case Y:
		n = s.Ny
	case Z:
		n = s.Nz
	}

	at := func(m int) float64 {
		p := idx
		p[int(ax)] = m
		return s.At(p[0], p[1], p[2])
	}
	m := idx[int(ax)]

	switch {
	case m == 0:
		// One-sided forward difference, first order.
		return (at(1) - at(0)) / (c[1] - c[0])
	case m == n-1:
		// One-sided backward difference, first order.
		return (at(n-1) - at(n-2)) / (c[n-1] - c[n-2])
	default:
		return (at(m+1) - at(m-1)) / (c[m+1] - c[m-1])
	}
}

// Second evaluates the second derivative of s along the given axis at
// grid point (i, j, k). Interior points use the three-point centered
// stencil; at the boundary the nearest interior stencil is reused, which
// degrades the approximation to first order there.
func Second(s *grid.Field3, g *grid.Grid, ax Axis, i, j, k int) float64 {
	c, idx, n := coords(g, ax), [3]int{i, j, k}, 0
	switch ax {
	case X:
		n = s.Nx
	case Y:
		n = s.Ny
	case Z:
		n = s.Nz
	}

	at := func(m int) float64 {
		p := idx
		p[int(ax)] = m
		return s.At(p[0], p[1], p[2])
	}
	m := idx[int(ax)]
	if m == 0 {
		m = 1
	} else if m == n-1 {
		m = n - 2
	}

	hl := c[m] - c[m-1]
	hr := c[m+1] - c[m]
	return 2 * (hl*at(m+1) - (hl+hr)*at(m) + hr*at(m-1)) / (hl * hr * (hl + hr))
}

// Gradient precomputes the three first-derivative grids of s. This is the
// load-time path: the Field Sampler interpolates these grids instead of
// re-evaluating stencils per query.
func Gradient(s *grid.Field3, g *grid.Grid) [3]*grid.Field3 {
	var out [3]*grid.Field3
	for a := 0; a < 3; a++ {
		out[a] = grid.NewField3(s.Nx, s.Ny, s.Nz)
	}
	for k := 0; k < s.Nz; k++ {
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				out[X].Set(i, j, k, Partial(s, g, X, i, j, k))
				out[Y].Set(i, j, k, Partial(s, g, Y, i, j, k))
				out[Z].Set(i, j, k, Partial(s, g, Z, i, j, k))
			}
		}
	}
	return out
}

func coords(g *grid.Grid, ax Axis) []float64 {
	switch ax {
	case X:
		return g.X()
	case Y:
		return g.Y()
	default:
		return g.Z()
	}
}
