package pusher

import (
	"math"
	"testing"

	"github.com/solwind/ptrace/internal/field"
	"github.com/solwind/ptrace/internal/grid"
	"github.com/solwind/ptrace/internal/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

func uniformSampler(t *testing.T, e, b r3.Vec, pol grid.Policy) *field.Sampler {
	t.Helper()
	g, err := grid.Uniform(10, 10, 10, r3.Vec{}, r3.Vec{X: 9, Y: 9, Z: 9})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	s, err := field.NewSampler(g, nil, []field.Snapshot{field.UniformSnapshot(g, e, b)}, pol)
	if err != nil {
		t.Fatalf("sampler: %v", err)
	}
	return s
}

func defaultOptions() Options {
	return Options{
		TolAbs:   1e-9,
		TolRel:   1e-9,
		StepMin:  1e-12,
		MaxSteps: 1_000_000,
		T0:       0,
		T1:       2 * math.Pi,
	}
}

var proton = particle.Species{Charge: 1, Mass: 1}

// With zero field everywhere, the trajectory is a straight line traversed
// at constant speed.
func TestForceFreeStraightLine(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{}, grid.PolicyError)
	opt := defaultOptions()
	opt.T1 = 3.0
	p, err := New(s, opt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p0 := r3.Vec{X: 1, Y: 2, Z: 3}
	v0 := r3.Vec{X: 1, Y: 0.5, Z: 0.25}
	st := particle.New(0, proton, p0, v0, 0)
	traj := p.Run(st)

	if st.Status != particle.CompletedTimeout {
		t.Fatalf("status %v, want timeout", st.Status)
	}
	for _, pt := range traj {
		want := r3.Add(p0, r3.Scale(pt.T, v0))
		if d := r3.Norm(r3.Sub(pt.Pos, want)); d > 1e-8 {
			t.Errorf("t=%g: position off by %g", pt.T, d)
		}
		if dv := math.Abs(r3.Norm(pt.Vel) - r3.Norm(v0)); dv > 1e-10 {
			t.Errorf("t=%g: speed drifted by %g", pt.T, dv)
		}
	}
}

// The concrete scenario: 10x10x10 grid with unit spacing, B=(0,0,1),
// charge=mass=1, start (5,5,5) with v=(1,0,0) over [0, 2pi]. The particle
// gyrates on a circle of radius m*v/(q*B)=1 about (5,4,5) and returns to
// its starting point.
func TestUniformFieldGyration(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{Z: 1}, grid.PolicyError)
	p, err := New(s, defaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := r3.Vec{X: 5, Y: 5, Z: 5}
	st := particle.New(0, proton, start, r3.Vec{X: 1}, 0)
	traj := p.Run(st)

	if st.Status != particle.CompletedTimeout {
		t.Fatalf("status %v, want timeout", st.Status)
	}

	center := r3.Vec{X: 5, Y: 4, Z: 5}
	for _, pt := range traj {
		r := r3.Norm(r3.Sub(pt.Pos, center))
		if math.Abs(r-1) > 1e-5 {
			t.Fatalf("t=%g: gyroradius %g, want 1", pt.T, r)
		}
	}

	if d := r3.Norm(r3.Sub(st.Pos, start)); d > 1e-5 {
		t.Errorf("after one gyration particle is %g from start", d)
	}
	if math.Abs(st.Time-2*math.Pi) > 1e-12 {
		t.Errorf("final time %g, want 2pi", st.Time)
	}
}

func TestGyroradiusScalesWithMass(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{Z: 1}, grid.PolicyError)
	opt := defaultOptions()
	opt.T1 = 1.0
	p, _ := New(s, opt)

	// r = m*v/(q*B) = 0.5 for this species.
	sp := particle.Species{Charge: 2, Mass: 1}
	st := particle.New(0, sp, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
	traj := p.Run(st)

	center := r3.Vec{X: 5, Y: 4.5, Z: 5}
	for _, pt := range traj {
		r := r3.Norm(r3.Sub(pt.Pos, center))
		if math.Abs(r-0.5) > 1e-5 {
			t.Fatalf("t=%g: gyroradius %g, want 0.5", pt.T, r)
		}
	}
}

// Every step size committed after the first adaptive adjustment stays
// within [StepMin, StepMax].
func TestStepSizeBounds(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{Z: 1}, grid.PolicyError)
	opt := defaultOptions()
	opt.StepMin = 1e-6
	opt.StepMax = 0.05

	bounds := &stepBoundsObserver{t: t, min: opt.StepMin, max: opt.StepMax}
	p, _ := New(s, opt, bounds)

	st := particle.New(0, proton, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
	p.Run(st)

	if bounds.seen == 0 {
		t.Fatal("observer never invoked")
	}
	if st.Steps == 0 {
		t.Fatal("no accepted steps")
	}
}

type stepBoundsObserver struct {
	t        *testing.T
	min, max float64
	seen     int
}

func (o *stepBoundsObserver) Observe(st *particle.State) {
	o.seen++
	if st.Step < o.min || st.Step > o.max {
		o.t.Errorf("step %d: size %g outside [%g, %g]", st.Steps, st.Step, o.min, o.max)
	}
}

func TestBoundaryExit(t *testing.T) {
	for _, pol := range []grid.Policy{grid.PolicyError, grid.PolicyClamp} {
		t.Run(pol.String(), func(t *testing.T) {
			s := uniformSampler(t, r3.Vec{}, r3.Vec{}, pol)
			opt := defaultOptions()
			opt.T1 = 100
			p, _ := New(s, opt)

			// Force-free particle heading straight for the +x face.
			st := particle.New(0, proton, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
			p.Run(st)

			if st.Status != particle.CompletedBoundary {
				t.Errorf("status %v, want boundary", st.Status)
			}
			if st.Time >= 100 {
				t.Error("particle ran the full span instead of exiting")
			}
		})
	}
}

func TestStartOutsideDomain(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{}, grid.PolicyError)
	p, _ := New(s, defaultOptions())

	st := particle.New(0, proton, r3.Vec{X: -5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
	traj := p.Run(st)

	if st.Status != particle.CompletedBoundary {
		t.Errorf("status %v, want boundary", st.Status)
	}
	if len(traj) != 1 {
		t.Errorf("trajectory has %d points, want only the initial sample", len(traj))
	}
}

func TestRunawayStepGuard(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{Z: 1}, grid.PolicyError)
	opt := defaultOptions()
	opt.MaxSteps = 10
	opt.T1 = 1000
	p, _ := New(s, opt)

	st := particle.New(0, proton, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
	p.Run(st)

	if st.Status != particle.FailedIntegration {
		t.Errorf("status %v, want failed", st.Status)
	}
	if st.Steps != 10 {
		t.Errorf("accepted %d steps, want 10", st.Steps)
	}
}

func TestNumericFault(t *testing.T) {
	g, _ := grid.Uniform(4, 4, 4, r3.Vec{}, r3.Vec{X: 3, Y: 3, Z: 3})
	snap := field.UniformSnapshot(g, r3.Vec{}, r3.Vec{})
	snap.B.X.Set(1, 1, 1, math.NaN())
	s, err := field.NewSampler(g, nil, []field.Snapshot{snap}, grid.PolicyError)
	if err != nil {
		t.Fatalf("sampler: %v", err)
	}

	opt := defaultOptions()
	p, _ := New(s, opt)

	st := particle.New(0, proton, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{X: 0.1}, 0)
	p.Run(st)

	if st.Status != particle.FailedIntegration {
		t.Fatalf("status %v, want failed", st.Status)
	}
	if st.FailStep < 0 {
		t.Error("triggering step index not recorded")
	}
}

// Backward tracing over the reversed span retraces the forward orbit.
func TestBackwardTracing(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{Z: 1}, grid.PolicyError)

	fwd := defaultOptions()
	fwd.T1 = 1.0
	pf, _ := New(s, fwd)
	stf := particle.New(0, proton, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
	pf.Run(stf)
	if stf.Status != particle.CompletedTimeout {
		t.Fatalf("forward status %v", stf.Status)
	}

	bwd := defaultOptions()
	bwd.T0, bwd.T1 = 1.0, 0.0
	pb, err := New(s, bwd)
	if err != nil {
		t.Fatalf("New backward: %v", err)
	}
	stb := particle.New(0, proton, stf.Pos, stf.Vel, 1.0)
	pb.Run(stb)

	if stb.Status != particle.CompletedTimeout {
		t.Fatalf("backward status %v", stb.Status)
	}
	if d := r3.Norm(r3.Sub(stb.Pos, r3.Vec{X: 5, Y: 5, Z: 5})); d > 1e-4 {
		t.Errorf("backward trace ends %g from the forward start", d)
	}
}

func TestTerminatePredicate(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{}, grid.PolicyError)
	opt := defaultOptions()
	opt.T1 = 100
	opt.Terminate = func(st *particle.State) bool { return st.Pos.X >= 6 }
	p, _ := New(s, opt)

	st := particle.New(0, proton, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
	p.Run(st)

	if st.Status != particle.CompletedNormal {
		t.Errorf("status %v, want completed", st.Status)
	}
}

func TestOutputCadence(t *testing.T) {
	s := uniformSampler(t, r3.Vec{}, r3.Vec{Z: 1}, grid.PolicyError)
	opt := defaultOptions()
	opt.OutputCadence = 1.0
	p, _ := New(s, opt)

	st := particle.New(0, proton, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
	traj := p.Run(st)

	// Initial sample, one per unit of time, and the terminal sample.
	if len(traj) < 7 || len(traj) > 10 {
		t.Errorf("got %d samples for cadence 1.0 over [0, 2pi]", len(traj))
	}
	for i := 1; i < len(traj); i++ {
		if traj[i].T <= traj[i-1].T {
			t.Fatalf("samples out of order at %d", i)
		}
	}
	if last := traj[len(traj)-1]; last.T != st.Time {
		t.Errorf("final sample at t=%g, particle at t=%g", last.T, st.Time)
	}
}

// Two identical runs produce bit-identical trajectories.
func TestDeterminism(t *testing.T) {
	s := uniformSampler(t, r3.Vec{X: 0.01}, r3.Vec{Z: 1}, grid.PolicyError)

	run := func() (particle.Trajectory, *particle.State) {
		p, _ := New(s, defaultOptions())
		st := particle.New(0, proton, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
		return p.Run(st), st
	}

	t1, s1 := run()
	t2, s2 := run()

	if s1.Status != s2.Status || s1.Steps != s2.Steps || s1.Rejects != s2.Rejects {
		t.Fatalf("run bookkeeping differs: %+v vs %+v", s1, s2)
	}
	if len(t1) != len(t2) {
		t.Fatalf("trajectory lengths differ: %d vs %d", len(t1), len(t2))
	}
	for i := range t1 {
		if t1[i] != t2[i] {
			t.Fatalf("sample %d differs: %+v vs %+v", i, t1[i], t2[i])
		}
	}
}

func TestNormOptions(t *testing.T) {
	if n, err := ParseNorm("rms"); err != nil || n != NormRMS {
		t.Errorf("rms: %v %v", n, err)
	}
	if n, err := ParseNorm(""); err != nil || n != NormMax {
		t.Errorf("default: %v %v", n, err)
	}
	if _, err := ParseNorm("l1"); err == nil {
		t.Error("expected error for unknown norm")
	}

	// Both norms must integrate the gyration scenario successfully.
	s := uniformSampler(t, r3.Vec{}, r3.Vec{Z: 1}, grid.PolicyError)
	for _, norm := range []Norm{NormMax, NormRMS} {
		opt := defaultOptions()
		opt.ErrNorm = norm
		p, _ := New(s, opt)
		st := particle.New(0, proton, r3.Vec{X: 5, Y: 5, Z: 5}, r3.Vec{X: 1}, 0)
		p.Run(st)
		if st.Status != particle.CompletedTimeout {
			t.Errorf("norm %v: status %v", norm, st.Status)
		}
		if d := r3.Norm(r3.Sub(st.Pos, r3.Vec{X: 5, Y: 5, Z: 5})); d > 1e-4 {
			t.Errorf("norm %v: closure error %g", norm, d)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no tolerances", func(o *Options) { o.TolAbs, o.TolRel = 0, 0 }},
		{"negative tol", func(o *Options) { o.TolAbs = -1 }},
		{"zero step_min", func(o *Options) { o.StepMin = 0 }},
		{"step_max below step_min", func(o *Options) { o.StepMin, o.StepMax = 1e-3, 1e-6 }},
		{"zero max_steps", func(o *Options) { o.MaxSteps = 0 }},
		{"empty span", func(o *Options) { o.T1 = o.T0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := defaultOptions()
			tt.mutate(&opt)
			if err := opt.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
