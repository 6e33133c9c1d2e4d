// Package metrics provides per-particle integration diagnostics collected
// as step observers. Each metric belongs to one worker and is reset
// between particles; none of them are safe for concurrent use.
package metrics

import (
	"math"

	"github.com/solwind/ptrace/internal/particle"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Metric observes accepted steps and reduces them to a single value.
type Metric interface {
	Name() string
	Observe(st *particle.State)
	Value() float64
	Reset()
}

// SpeedDrift tracks the worst relative change in particle speed over the
// run. In a pure magnetic field the speed is conserved, so this is a
// direct measure of integrator quality.
type SpeedDrift struct {
	initial float64
	worst   float64
}

func NewSpeedDrift() *SpeedDrift { return &SpeedDrift{initial: -1} }

func (m *SpeedDrift) Name() string { return "speed_drift" }

func (m *SpeedDrift) Observe(st *particle.State) {
	speed := r3.Norm(st.Vel)
	if m.initial < 0 {
		m.initial = speed
		return
	}
	if m.initial == 0 {
		return
	}
	if d := math.Abs(speed-m.initial) / m.initial; d > m.worst {
		m.worst = d
	}
}

func (m *SpeedDrift) Value() float64 { return m.worst }

func (m *SpeedDrift) Reset() { m.initial, m.worst = -1, 0 }

// StepStats records the committed step sizes of accepted steps and
// reports their mean; Min and Max expose the extremes.
type StepStats struct {
	steps []float64
}

func NewStepStats() *StepStats { return &StepStats{} }

func (m *StepStats) Name() string { return "step_mean" }

func (m *StepStats) Observe(st *particle.State) {
	m.steps = append(m.steps, st.Step)
}

func (m *StepStats) Value() float64 {
	if len(m.steps) == 0 {
		return 0
	}
	return floats.Sum(m.steps) / float64(len(m.steps))
}

// Min returns the smallest committed step size, or 0 before any step.
func (m *StepStats) Min() float64 {
	if len(m.steps) == 0 {
		return 0
	}
	return floats.Min(m.steps)
}

// Max returns the largest committed step size, or 0 before any step.
func (m *StepStats) Max() float64 {
	if len(m.steps) == 0 {
		return 0
	}
	return floats.Max(m.steps)
}

func (m *StepStats) Reset() { m.steps = m.steps[:0] }
