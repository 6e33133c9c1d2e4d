// Package interp implements multilinear interpolation of structured-grid
// samples at fractional index coordinates.
//
// All functions are pure: given the same samples and query point they
// return the same value and touch no shared state. Queries read 2^d
// samples for a d-dimensional interpolation. Callers are expected to have
// applied the grid's boundary policy already; indices are clamped to the
// valid range here only to absorb floating-point round-off at the very
// edge of the domain.
package interp

import "github.com/solwind/ptrace/internal/grid"

// Linear interpolates a 1D sample array at fractional index f.
func Linear(data []float64, f float64) float64 {
	i, t := split(f, len(data))
	return data[i]*(1-t) + data[i+1]*t
}

// Bilinear interpolates a 2D field at fractional indices (fx, fy).
func Bilinear(s *grid.Field2, fx, fy float64) float64 {
	i, tx := split(fx, s.Nx)
	j, ty := split(fy, s.Ny)

	v00 := s.At(i, j)
	v10 := s.At(i+1, j)
	v01 := s.At(i, j+1)
	v11 := s.At(i+1, j+1)

	return (v00*(1-tx)+v10*tx)*(1-ty) + (v01*(1-tx)+v11*tx)*ty
}

// Trilinear interpolates a 3D field at fractional indices (fx, fy, fz).
func Trilinear(s *grid.Field3, fx, fy, fz float64) float64 {
	i, tx := split(fx, s.Nx)
	j, ty := split(fy, s.Ny)
	k, tz := split(fz, s.Nz)

	c00 := s.At(i, j, k)*(1-tx) + s.At(i+1, j, k)*tx
	c10 := s.At(i, j+1, k)*(1-tx) + s.At(i+1, j+1, k)*tx
	c01 := s.At(i, j, k+1)*(1-tx) + s.At(i+1, j, k+1)*tx
	c11 := s.At(i, j+1, k+1)*(1-tx) + s.At(i+1, j+1, k+1)*tx

	c0 := c00*(1-ty) + c10*ty
	c1 := c01*(1-ty) + c11*ty

	return c0*(1-tz) + c1*tz
}

// split decomposes a fractional index into the lower cell corner and the
// weight within the cell, pinning the index into [0, n-1] so that edge
// queries produced by round-off stay on the boundary sample.
func split(f float64, n int) (int, float64) {
	if f <= 0 {
		return 0, 0
	}
	if f >= float64(n-1) {
		return n - 2, 1
	}
	i := int(f)
	if i > n-2 {
		i = n - 2
	}
	return i, f - float64(i)
}
