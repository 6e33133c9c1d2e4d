package particle

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestStatusTerminal(t *testing.T) {
	if Active.Terminal() {
		t.Error("Active must not be terminal")
	}
	for _, s := range []Status{CompletedNormal, CompletedBoundary, CompletedTimeout, FailedIntegration} {
		if !s.Terminal() {
			t.Errorf("%v must be terminal", s)
		}
	}
}

func TestFinishIsMonotone(t *testing.T) {
	s := New(1, Species{Charge: 1, Mass: 1}, r3.Vec{}, r3.Vec{X: 1}, 0)
	if s.Status != Active {
		t.Fatalf("initial status %v", s.Status)
	}

	s.Finish(CompletedBoundary)
	s.Finish(FailedIntegration)
	if s.Status != CompletedBoundary {
		t.Errorf("terminal status overwritten: %v", s.Status)
	}
}

func TestSpeciesValidate(t *testing.T) {
	if err := (Species{Charge: -1, Mass: 1836}).Validate(); err != nil {
		t.Errorf("valid species rejected: %v", err)
	}
	for _, sp := range []Species{
		{Charge: 1, Mass: 0},
		{Charge: 1, Mass: -1},
		{Charge: math.NaN(), Mass: 1},
		{Charge: 1, Mass: math.Inf(1)},
	} {
		if err := sp.Validate(); err == nil {
			t.Errorf("species %+v accepted", sp)
		}
	}
}

func TestPitchDecomp(t *testing.T) {
	p := Point{Vel: r3.Vec{X: 3, Z: 4}}
	b := r3.Vec{Z: 2}

	vperp, vpara, pitch := p.PitchDecomp(b)
	if math.Abs(vperp-3) > 1e-12 || math.Abs(vpara-4) > 1e-12 {
		t.Errorf("decomp (%g, %g), want (3, 4)", vperp, vpara)
	}
	want := math.Atan2(3, 4) * 180 / math.Pi
	if math.Abs(pitch-want) > 1e-12 {
		t.Errorf("pitch %g, want %g", pitch, want)
	}

	// Zero field: everything counts as perpendicular.
	vperp, vpara, pitch = p.PitchDecomp(r3.Vec{})
	if math.Abs(vperp-5) > 1e-12 || vpara != 0 || pitch != 90 {
		t.Errorf("zero-field decomp (%g, %g, %g)", vperp, vpara, pitch)
	}
}

func TestEnergy(t *testing.T) {
	p := Point{Vel: r3.Vec{X: 2}}
	if e := p.Energy(Species{Mass: 3}); math.Abs(e-6) > 1e-12 {
		t.Errorf("energy %g, want 6", e)
	}
}
