// Package pusher advances particles through the sampled field with an
// embedded Dormand-Prince 5(4) scheme under adaptive step-size control.
//
// Each particle is driven from Active to exactly one terminal status:
//
//   - a caller-supplied termination predicate -> CompletedNormal
//   - leaving the field domain -> CompletedBoundary
//   - exhausting the configured time span -> CompletedTimeout
//   - step collapse, step budget, or numeric fault -> FailedIntegration
//
// Step rejection and retry happen inside Run and are visible to callers
// only through the particle's reject counter.
package pusher

import (
	"errors"
	"fmt"
	"math"

	"github.com/solwind/ptrace/internal/field"
	"github.com/solwind/ptrace/internal/grid"
	"github.com/solwind/ptrace/internal/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	safety   = 0.9
	minScale = 0.2
	maxScale = 10.0

	// Consecutive rejections of a single step before giving up. Step
	// collapse below StepMin usually triggers first.
	maxRetries = 50
)

// Norm selects how the per-component error estimates are reduced to the
// scalar compared against 1.
type Norm int

const (
	// NormMax takes the worst component.
	NormMax Norm = iota
	// NormRMS takes the root-mean-square over components.
	NormRMS
)

// ParseNorm parses an error-norm name from configuration.
func ParseNorm(s string) (Norm, error) {
	switch s {
	case "max", "":
		return NormMax, nil
	case "rms":
		return NormRMS, nil
	default:
		return 0, fmt.Errorf("pusher: unknown error norm %q", s)
	}
}

func (n Norm) String() string {
	if n == NormRMS {
		return "rms"
	}
	return "max"
}

// Terminator is consulted after every accepted step; returning true moves
// the particle to CompletedNormal.
type Terminator func(st *particle.State) bool

// Observer is notified after every accepted step, before trajectory
// recording. Used for diagnostics; must not retain st.
type Observer interface {
	Observe(st *particle.State)
}

// Options are the integration controls for one run. All particles in a
// run share the same options.
type Options struct {
	TolAbs, TolRel float64
	StepMin        float64
	StepMax        float64 // 0 selects |T1-T0|/10
	StepInitial    float64 // 0 selects a gyro-period heuristic
	MaxSteps       int
	ErrNorm        Norm

	// T0 and T1 bound the integration. T1 < T0 traces backward in time.
	T0, T1 float64

	// OutputCadence spaces trajectory samples in time; 0 records every
	// accepted step.
	OutputCadence float64

	Terminate Terminator
}

// Validate reports the first configuration error in the options.
func (o Options) Validate() error {
	if o.TolAbs <= 0 && o.TolRel <= 0 {
		return fmt.Errorf("pusher: at least one of tol_abs, tol_rel must be positive")
	}
	if o.TolAbs < 0 || o.TolRel < 0 {
		return fmt.Errorf("pusher: tolerances must not be negative")
	}
	if o.StepMin <= 0 {
		return fmt.Errorf("pusher: step_min must be positive, got %g", o.StepMin)
	}
	if o.StepMax < 0 || (o.StepMax > 0 && o.StepMax < o.StepMin) {
		return fmt.Errorf("pusher: step_max %g below step_min %g", o.StepMax, o.StepMin)
	}
	if o.MaxSteps <= 0 {
		return fmt.Errorf("pusher: max_steps must be positive, got %d", o.MaxSteps)
	}
	if o.T0 == o.T1 {
		return fmt.Errorf("pusher: empty time span [%g, %g]", o.T0, o.T1)
	}
	if math.IsNaN(o.T0) || math.IsNaN(o.T1) {
		return fmt.Errorf("pusher: time span must be finite")
	}
	return nil
}

// Pusher integrates particles against one shared sampler. A Pusher holds
// no per-particle state and may be reused serially; concurrent workers
// each build their own.
type Pusher struct {
	sampler   *field.Sampler
	opt       Options
	observers []Observer

	dir     float64
	stepMax float64
}

// New validates the options and builds a pusher.
func New(sampler *field.Sampler, opt Options, observers ...Observer) (*Pusher, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	p := &Pusher{sampler: sampler, opt: opt, observers: observers, dir: 1}
	if opt.T1 < opt.T0 {
		p.dir = -1
	}
	p.stepMax = opt.StepMax
	if p.stepMax == 0 {
		p.stepMax = math.Abs(opt.T1-opt.T0) / 10
	}
	return p, nil
}

// derive evaluates the equation of motion at phase-space point s:
// dx/dt = v, dv/dt = (q/m)(E + v x B).
func (p *Pusher) derive(sp particle.Species, s state, t float64) (state, error) {
	pos := r3.Vec{X: s[0], Y: s[1], Z: s[2]}
	vel := r3.Vec{X: s[3], Y: s[4], Z: s[5]}

	f, err := p.sampler.Sample(pos, t)
	if err != nil {
		return state{}, err
	}

	acc := r3.Scale(sp.Charge/sp.Mass, r3.Add(f.E, r3.Cross(vel, f.B)))
	return state{vel.X, vel.Y, vel.Z, acc.X, acc.Y, acc.Z}, nil
}

// Run drives one particle from Active to a terminal status and returns
// its trajectory. The particle must be Active and its time must equal the
// span start.
func (p *Pusher) Run(st *particle.State) particle.Trajectory {
	traj := particle.Trajectory{{T: st.Time, Pos: st.Pos, Vel: st.Vel}}
	nextOut := st.Time + p.dir*p.opt.OutputCadence

	h := p.initialStep(st)
	if st.Status.Terminal() {
		// The very first field query already left the domain.
		return traj
	}
	st.Step = h

	x := state{st.Pos.X, st.Pos.Y, st.Pos.Z, st.Vel.X, st.Vel.Y, st.Vel.Z}
	t := st.Time
	retries := 0

	for st.Status == particle.Active {
		if st.Steps >= p.opt.MaxSteps {
			st.Finish(particle.FailedIntegration)
			break
		}

		remaining := (p.opt.T1 - t) * p.dir
		if remaining <= 0 {
			st.Finish(particle.CompletedTimeout)
			break
		}
		if h > remaining {
			h = remaining
		}

		f := func(s state, t float64) (state, error) { return p.derive(st.Species, s, t) }
		xNew, errVec, k1, err := stages(f, x, t, p.dir*h)
		if err != nil {
			if errors.Is(err, grid.ErrOutOfDomain) {
				st.Finish(particle.CompletedBoundary)
			} else {
				st.FailStep = st.Steps
				st.Finish(particle.FailedIntegration)
			}
			break
		}
		if !xNew.finite() || !errVec.finite() {
			st.FailStep = st.Steps
			st.Finish(particle.FailedIntegration)
			break
		}

		e := p.errNorm(x, k1, errVec, h)

		if e > 1 {
			// Rejected: shrink and retry from the same state.
			st.Rejects++
			retries++
			h *= math.Max(minScale, safety*math.Pow(e, -0.25))
			if h < p.opt.StepMin || retries > maxRetries {
				st.Finish(particle.FailedIntegration)
				break
			}
			continue
		}

		// Accepted: commit the fifth-order solution.
		retries = 0
		x = xNew
		t += p.dir * h
		st.Pos = r3.Vec{X: x[0], Y: x[1], Z: x[2]}
		st.Vel = r3.Vec{X: x[3], Y: x[4], Z: x[5]}
		st.Time = t
		st.Steps++

		// Grow the next attempt, clamped to the configured bounds.
		if e > 0 {
			h *= math.Min(maxScale, safety*math.Pow(e, -0.2))
		} else {
			h *= maxScale
		}
		h = math.Min(math.Max(h, p.opt.StepMin), p.stepMax)
		st.Step = h

		for _, o := range p.observers {
			o.Observe(st)
		}

		if p.opt.OutputCadence <= 0 || (t-nextOut)*p.dir >= 0 {
			traj = append(traj, particle.Point{T: t, Pos: st.Pos, Vel: st.Vel})
			if p.opt.OutputCadence > 0 {
				nextOut += p.dir * p.opt.OutputCadence
			}
		}

		switch {
		case p.opt.Terminate != nil && p.opt.Terminate(st):
			st.Finish(particle.CompletedNormal)
		case p.outsideDomain(st.Pos):
			st.Finish(particle.CompletedBoundary)
		case (p.opt.T1-t)*p.dir <= 0:
			st.Finish(particle.CompletedTimeout)
		}
	}

	// The terminal position always closes the trajectory, cadence or not.
	last := traj[len(traj)-1]
	if last.T != st.Time {
		traj = append(traj, particle.Point{T: st.Time, Pos: st.Pos, Vel: st.Vel})
	}
	return traj
}

// errNorm reduces the embedded error vector against the mixed
// absolute/relative tolerance scale.
func (p *Pusher) errNorm(x, k1, errVec state, h float64) float64 {
	var acc float64
	for i := 0; i < 6; i++ {
		scale := p.opt.TolAbs + p.opt.TolRel*(math.Abs(x[i])+math.Abs(h*k1[i]))
		if scale == 0 {
			scale = p.opt.TolAbs
		}
		r := math.Abs(errVec[i]) / scale
		if p.opt.ErrNorm == NormRMS {
			acc += r * r
		} else if r > acc {
			acc = r
		}
	}
	if p.opt.ErrNorm == NormRMS {
		return math.Sqrt(acc / 6)
	}
	return acc
}

// outsideDomain checks spatial domain exit for the clamp policy, where
// sampling alone never reports out-of-domain.
func (p *Pusher) outsideDomain(pos r3.Vec) bool {
	min, max := p.sampler.Grid().Min(), p.sampler.Grid().Max()
	return pos.X < min.X || pos.X > max.X ||
		pos.Y < min.Y || pos.Y > max.Y ||
		pos.Z < min.Z || pos.Z > max.Z
}

// initialStep picks the magnitude of the first attempted step: the
// configured value when set, otherwise a small fraction of the local
// gyro-period, falling back to a fraction of the time span in field-free
// regions. The first field query may terminate the particle immediately
// when it starts outside the domain.
func (p *Pusher) initialStep(st *particle.State) float64 {
	span := math.Abs(p.opt.T1 - p.opt.T0)
	h := p.opt.StepInitial
	if h <= 0 {
		h = span / 100
		f, err := p.sampler.Sample(st.Pos, st.Time)
		if err != nil {
			if errors.Is(err, grid.ErrOutOfDomain) {
				st.Finish(particle.CompletedBoundary)
			} else {
				st.FailStep = 0
				st.Finish(particle.FailedIntegration)
			}
			return h
		}
		if bmag := r3.Norm(f.B); bmag > 0 && st.Species.Charge != 0 {
			gyro := st.Species.Mass / (math.Abs(st.Species.Charge) * bmag)
			h = math.Min(h, 0.05*gyro)
		}
	}
	return math.Min(math.Max(h, p.opt.StepMin), p.stepMax)
}
