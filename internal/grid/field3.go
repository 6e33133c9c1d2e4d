package grid

import (
	"errors"
	"fmt"
)

// ErrOutOfDomain reports a query point outside the grid's covered domain
// under PolicyError. It is a recoverable condition for the caller, not a
// run-fatal error.
var ErrOutOfDomain = errors.New("grid: query point out of domain")

// Field3 holds one scalar sample per grid point of a 3D grid, stored
// x-fastest. It carries its own shape so it can be validated against the
// grid it belongs to.
type Field3 struct {
	Nx, Ny, Nz int
	Data       []float64
}

// NewField3 allocates a zero-filled field with the given shape.
func NewField3(nx, ny, nz int) *Field3 {
	return &Field3{Nx: nx, Ny: ny, Nz: nz, Data: make([]float64, nx*ny*nz)}
}

// FromFunc builds a field by evaluating f at every grid point.
func FromFunc(g *Grid, f func(i, j, k int) float64) *Field3 {
	nx, ny, nz := g.Dims()
	s := NewField3(nx, ny, nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				s.Set(i, j, k, f(i, j, k))
			}
		}
	}
	return s
}

// CheckShape verifies the field matches the grid's dimensions. A mismatch
// is a configuration error and run-fatal.
func (s *Field3) CheckShape(g *Grid) error {
	nx, ny, nz := g.Dims()
	if s.Nx != nx || s.Ny != ny || s.Nz != nz {
		return fmt.Errorf("grid: field shape %dx%dx%d does not match grid %dx%dx%d",
			s.Nx, s.Ny, s.Nz, nx, ny, nz)
	}
	if len(s.Data) != nx*ny*nz {
		return fmt.Errorf("grid: field has %d samples, want %d", len(s.Data), nx*ny*nz)
	}
	return nil
}

// At returns the sample at grid point (i, j, k).
func (s *Field3) At(i, j, k int) float64 {
	return s.Data[i+s.Nx*(j+s.Ny*k)]
}

// Set stores the sample at grid point (i, j, k).
func (s *Field3) Set(i, j, k int, v float64) {
	s.Data[i+s.Nx*(j+s.Ny*k)] = v
}

// Field2 holds one scalar sample per point of a 2D grid, stored x-fastest.
type Field2 struct {
	Nx, Ny int
	Data   []float64
}

// NewField2 allocates a zero-filled 2D field.
func NewField2(nx, ny int) *Field2 {
	return &Field2{Nx: nx, Ny: ny, Data: make([]float64, nx*ny)}
}

// At returns the sample at grid point (i, j).
func (s *Field2) At(i, j int) float64 { return s.Data[i+s.Nx*j] }

// Set stores the sample at grid point (i, j).
func (s *Field2) Set(i, j int, v float64) { s.Data[i+s.Nx*j] = v }
