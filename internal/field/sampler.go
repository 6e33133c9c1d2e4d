// Package field exposes the continuous electromagnetic field seen by the
// integrator: gridded E and B snapshots turned into point values by
// multilinear interpolation, with optional precomputed B gradients.
package field

import (
	"fmt"

	"github.com/solwind/ptrace/internal/diff"
	"github.com/solwind/ptrace/internal/grid"
	"github.com/solwind/ptrace/internal/interp"
	"gonum.org/v1/gonum/spatial/r3"
)

// VecField stores one gridded vector quantity as three component grids.
type VecField struct {
	X, Y, Z *grid.Field3
}

// NewVecField allocates zero component grids matching g.
func NewVecField(g *grid.Grid) VecField {
	nx, ny, nz := g.Dims()
	return VecField{
		X: grid.NewField3(nx, ny, nz),
		Y: grid.NewField3(nx, ny, nz),
		Z: grid.NewField3(nx, ny, nz),
	}
}

// At returns the stored vector at grid point (i, j, k).
func (v VecField) At(i, j, k int) r3.Vec {
	return r3.Vec{X: v.X.At(i, j, k), Y: v.Y.At(i, j, k), Z: v.Z.At(i, j, k)}
}

// Set stores a vector at grid point (i, j, k).
func (v VecField) Set(i, j, k int, val r3.Vec) {
	v.X.Set(i, j, k, val.X)
	v.Y.Set(i, j, k, val.Y)
	v.Z.Set(i, j, k, val.Z)
}

func (v VecField) check(g *grid.Grid) error {
	for _, c := range []*grid.Field3{v.X, v.Y, v.Z} {
		if c == nil {
			return fmt.Errorf("field: missing component grid")
		}
		if err := c.CheckShape(g); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is the field state at one time level.
type Snapshot struct {
	E, B VecField
}

// Sample is the result of one point query: interpolated field vectors
// and, when the sampler was built with gradients, the Jacobian of B.
type Sample struct {
	E, B r3.Vec

	// GradB[a] is the gradient of B component a (a = x, y, z).
	// Only populated when the sampler precomputed gradients.
	GradB [3]r3.Vec
}

// Sampler answers point queries against one or more field snapshots. It
// is immutable after construction and safe for concurrent use by any
// number of particle workers.
type Sampler struct {
	g      *grid.Grid
	times  []float64
	frames []Snapshot
	policy grid.Policy

	// Per frame, per B component: precomputed derivative grids from the
	// differencing engine. Nil when gradients were not requested.
	gradB [][3][3]*grid.Field3

	invDt float64
}

// Option configures optional sampler features.
type Option func(*Sampler)

// WithGradients precomputes the spatial derivative grids of B at
// construction so Sample can return the B Jacobian.
func WithGradients() Option {
	return func(s *Sampler) { s.gradB = make([][3][3]*grid.Field3, 0) }
}

// NewSampler validates the snapshots against the grid and builds a
// sampler. times must be strictly increasing and match frames; a single
// frame describes a static field and times may be nil. Shape or
// dimensionality mismatches are configuration errors.
func NewSampler(g *grid.Grid, times []float64, frames []Snapshot, policy grid.Policy, opts ...Option) (*Sampler, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("field: no snapshots supplied")
	}
	if len(times) == 0 && len(frames) == 1 {
		times = []float64{0}
	}
	if len(times) != len(frames) {
		return nil, fmt.Errorf("field: %d snapshot times for %d snapshots", len(times), len(frames))
	}
	for i := 0; i < len(times)-1; i++ {
		if times[i+1] <= times[i] {
			return nil, fmt.Errorf("field: snapshot times not strictly increasing at index %d", i)
		}
	}
	for i, fr := range frames {
		if err := fr.E.check(g); err != nil {
			return nil, fmt.Errorf("snapshot %d E: %w", i, err)
		}
		if err := fr.B.check(g); err != nil {
			return nil, fmt.Errorf("snapshot %d B: %w", i, err)
		}
	}

	s := &Sampler{g: g, times: times, frames: frames, policy: policy}
	if len(times) > 1 {
		s.invDt = float64(len(times)-1) / (times[len(times)-1] - times[0])
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.gradB != nil {
		s.gradB = make([][3][3]*grid.Field3, len(frames))
		for i, fr := range frames {
			for c, comp := range []*grid.Field3{fr.B.X, fr.B.Y, fr.B.Z} {
				s.gradB[i][c] = diff.Gradient(comp, g)
			}
		}
	}
	return s, nil
}

// Grid returns the spatial grid the sampler interpolates on.
func (s *Sampler) Grid() *grid.Grid { return s.g }

// Policy returns the configured boundary policy.
func (s *Sampler) Policy() grid.Policy { return s.policy }

// HasGradients reports whether Sample populates GradB.
func (s *Sampler) HasGradients() bool { return s.gradB != nil }

// Sample interpolates the field at a physical position and time. Under
// the error boundary policy a position outside the grid returns
// grid.ErrOutOfDomain; time is always clamped to the covered span, so a
// static field is held constant for all t.
func (s *Sampler) Sample(pos r3.Vec, t float64) (Sample, error) {
	idx, err := s.g.Map(pos, s.policy)
	if err != nil {
		return Sample{}, err
	}

	lo, hi, w := s.timeBracket(t)

	out := Sample{
		E: lerpVec(s.vecAt(s.frames[lo].E, idx), s.vecAt(s.frames[hi].E, idx), w),
		B: lerpVec(s.vecAt(s.frames[lo].B, idx), s.vecAt(s.frames[hi].B, idx), w),
	}
	if s.gradB != nil {
		for c := 0; c < 3; c++ {
			glo := s.gradAt(lo, c, idx)
			ghi := s.gradAt(hi, c, idx)
			out.GradB[c] = lerpVec(glo, ghi, w)
		}
	}
	return out, nil
}

func (s *Sampler) vecAt(v VecField, idx [3]float64) r3.Vec {
	return r3.Vec{
		X: interp.Trilinear(v.X, idx[0], idx[1], idx[2]),
		Y: interp.Trilinear(v.Y, idx[0], idx[1], idx[2]),
		Z: interp.Trilinear(v.Z, idx[0], idx[1], idx[2]),
	}
}

func (s *Sampler) gradAt(frame, comp int, idx [3]float64) r3.Vec {
	gr := s.gradB[frame][comp]
	return r3.Vec{
		X: interp.Trilinear(gr[0], idx[0], idx[1], idx[2]),
		Y: interp.Trilinear(gr[1], idx[0], idx[1], idx[2]),
		Z: interp.Trilinear(gr[2], idx[0], idx[1], idx[2]),
	}
}

// timeBracket locates t between snapshots, clamping beyond the ends.
func (s *Sampler) timeBracket(t float64) (lo, hi int, w float64) {
	n := len(s.times)
	if n == 1 || t <= s.times[0] {
		return 0, 0, 0
	}
	if t >= s.times[n-1] {
		return n - 1, n - 1, 0
	}
	f := grid.LocateAxis(s.times, s.invDt, t)
	lo = int(f)
	if lo > n-2 {
		lo = n - 2
	}
	return lo, lo + 1, f - float64(lo)
}

func lerpVec(a, b r3.Vec, w float64) r3.Vec {
	if w == 0 {
		return a
	}
	return r3.Add(r3.Scale(1-w, a), r3.Scale(w, b))
}
