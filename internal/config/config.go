// Package config loads, validates and persists run configuration. A
// Config is resolved once at startup and treated as immutable afterwards;
// every consumer receives it by reference and never writes it.
package config

import (
	"fmt"
	"os"

	"github.com/solwind/ptrace/internal/grid"
	"github.com/solwind/ptrace/internal/particle"
	"github.com/solwind/ptrace/internal/pusher"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTolAbs   = 1e-9
	DefaultTolRel   = 1e-9
	DefaultStepMin  = 1e-12
	DefaultMaxSteps = 1_000_000
)

// Integration holds the adaptive-stepper controls.
type Integration struct {
	TolAbs      float64 `yaml:"tol_abs"`
	TolRel      float64 `yaml:"tol_rel"`
	StepMin     float64 `yaml:"step_min"`
	StepMax     float64 `yaml:"step_max"`
	StepInitial float64 `yaml:"step_initial"`
	MaxSteps    int     `yaml:"max_steps"`
	ErrorNorm   string  `yaml:"error_norm"`
}

// TimeSpan bounds the integration in simulation time.
type TimeSpan struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// Config is the full set of recognized run options.
type Config struct {
	Species       particle.Species `yaml:"species"`
	Integration   Integration      `yaml:"integration"`
	TimeSpan      TimeSpan         `yaml:"time_span"`
	Direction     string           `yaml:"direction"`
	Boundary      string           `yaml:"boundary"`
	OutputCadence float64          `yaml:"output_cadence"`
	Workers       int              `yaml:"workers"`
	FieldsFile    string           `yaml:"fields_file"`
	ParticlesFile string           `yaml:"particles_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Species: particle.Species{Charge: 1, Mass: 1},
		Integration: Integration{
			TolAbs:    DefaultTolAbs,
			TolRel:    DefaultTolRel,
			StepMin:   DefaultStepMin,
			MaxSteps:  DefaultMaxSteps,
			ErrorNorm: "max",
		},
		TimeSpan:  TimeSpan{Start: 0, End: 1},
		Direction: "forward",
		Boundary:  "error",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first invalid or inconsistent option. It is run
// before any integration starts; an error here is fatal to the run.
func (c *Config) Validate() error {
	if err := c.Species.Validate(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	switch c.Direction {
	case "forward":
		if c.TimeSpan.End <= c.TimeSpan.Start {
			return fmt.Errorf("config: forward tracing needs time_span.end > time_span.start, got [%g, %g]",
				c.TimeSpan.Start, c.TimeSpan.End)
		}
	case "backward":
		if c.TimeSpan.End >= c.TimeSpan.Start {
			return fmt.Errorf("config: backward tracing needs time_span.end < time_span.start, got [%g, %g]",
				c.TimeSpan.Start, c.TimeSpan.End)
		}
	default:
		return fmt.Errorf("config: unknown direction %q", c.Direction)
	}
	if c.OutputCadence < 0 {
		return fmt.Errorf("config: output_cadence must not be negative, got %g", c.OutputCadence)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	// The remaining integration checks live with the stepper.
	opts, err := c.PusherOptions()
	if err != nil {
		return err
	}
	return opts.Validate()
}

// Policy returns the parsed boundary policy.
func (c *Config) Policy() (grid.Policy, error) {
	return grid.ParsePolicy(c.Boundary)
}

// PusherOptions translates the configuration into stepper options.
func (c *Config) PusherOptions() (pusher.Options, error) {
	norm, err := pusher.ParseNorm(c.Integration.ErrorNorm)
	if err != nil {
		return pusher.Options{}, err
	}
	return pusher.Options{
		TolAbs:        c.Integration.TolAbs,
		TolRel:        c.Integration.TolRel,
		StepMin:       c.Integration.StepMin,
		StepMax:       c.Integration.StepMax,
		StepInitial:   c.Integration.StepInitial,
		MaxSteps:      c.Integration.MaxSteps,
		ErrNorm:       norm,
		T0:            c.TimeSpan.Start,
		T1:            c.TimeSpan.End,
		OutputCadence: c.OutputCadence,
	}, nil
}
