// Package particle defines the per-particle state record, its terminal
// status machine and the trajectory it accumulates while being traced.
package particle

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Status is the integration outcome of one particle. Active is the only
// non-terminal value; transitions out of Active are monotone and final.
type Status int

const (
	// Active means the particle is still being integrated.
	Active Status = iota
	// CompletedNormal means a caller-supplied termination predicate fired.
	CompletedNormal
	// CompletedBoundary means the particle left the field domain.
	CompletedBoundary
	// CompletedTimeout means the configured time span was exhausted.
	CompletedTimeout
	// FailedIntegration means the step size collapsed below the minimum,
	// the step budget ran out, or the derivative produced non-finite values.
	FailedIntegration
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case CompletedNormal:
		return "completed"
	case CompletedBoundary:
		return "boundary"
	case CompletedTimeout:
		return "timeout"
	case FailedIntegration:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool { return s != Active }

// Species carries the charge and mass shared by the force law.
type Species struct {
	Charge float64 `yaml:"charge"`
	Mass   float64 `yaml:"mass"`
}

// Validate rejects species the equation of motion cannot use.
func (sp Species) Validate() error {
	if sp.Mass <= 0 || math.IsNaN(sp.Mass) || math.IsInf(sp.Mass, 0) {
		return fmt.Errorf("particle: mass must be positive and finite, got %g", sp.Mass)
	}
	if math.IsNaN(sp.Charge) || math.IsInf(sp.Charge, 0) {
		return fmt.Errorf("particle: charge must be finite, got %g", sp.Charge)
	}
	return nil
}

// State is the mutable per-particle record. It is owned exclusively by
// the worker integrating the particle; nothing else reads or writes it
// until the status is terminal.
type State struct {
	ID      int
	Species Species

	Pos  r3.Vec
	Vel  r3.Vec
	Time float64

	// Step is the step size the next attempt will use.
	Step float64
	// Steps counts accepted steps; Rejects counts rejected attempts.
	Steps   int
	Rejects int

	Status Status

	// FailStep records the accepted-step index at which a numeric fault
	// was detected, for diagnostics. -1 when no fault occurred.
	FailStep int
}

// New builds an Active particle state.
func New(id int, sp Species, pos, vel r3.Vec, t0 float64) *State {
	return &State{ID: id, Species: sp, Pos: pos, Vel: vel, Time: t0, FailStep: -1}
}

// Finish moves the particle to a terminal status. Once terminal the
// status never changes; a second call is ignored.
func (s *State) Finish(st Status) {
	if s.Status.Terminal() {
		return
	}
	s.Status = st
}

// Point is one trajectory sample.
type Point struct {
	T   float64
	Pos r3.Vec
	Vel r3.Vec
}

// Trajectory is the ordered sequence of samples emitted while the
// particle was Active. Append-only during integration, immutable after.
type Trajectory []Point

// Energy returns the kinetic energy (in code units) of sample p for the
// given species.
func (p Point) Energy(sp Species) float64 {
	v2 := r3.Dot(p.Vel, p.Vel)
	return 0.5 * sp.Mass * v2
}

// PitchDecomp splits the sample velocity into components perpendicular
// and parallel to the local magnetic field b, and returns the pitch angle
// in degrees. With a zero field the decomposition is undefined and the
// velocity is reported as fully perpendicular.
func (p Point) PitchDecomp(b r3.Vec) (vperp, vpara, pitchDeg float64) {
	bn := r3.Norm(b)
	speed := r3.Norm(p.Vel)
	if bn == 0 {
		return speed, 0, 90
	}
	bhat := r3.Scale(1/bn, b)
	vpara = r3.Dot(p.Vel, bhat)
	perp := r3.Sub(p.Vel, r3.Scale(vpara, bhat))
	vperp = r3.Norm(perp)
	return vperp, vpara, math.Atan2(vperp, vpara) * 180 / math.Pi
}
