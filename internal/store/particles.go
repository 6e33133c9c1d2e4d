package store

import (
	"fmt"
	"os"

	"github.com/solwind/ptrace/internal/particle"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// particleEntry is one initial-condition record in a particles file.
type particleEntry struct {
	ID     *int       `yaml:"id"`
	Pos    [3]float64 `yaml:"pos"`
	Vel    [3]float64 `yaml:"vel"`
	T0     float64    `yaml:"t0"`
	Charge *float64   `yaml:"charge"`
	Mass   *float64   `yaml:"mass"`
}

// ReadParticles loads initial conditions from a YAML list. Each entry
// needs pos and vel; id defaults to the entry's position in the list and
// charge/mass default to the run species. IDs must be unique.
func ReadParticles(path string, defaults particle.Species) ([]*particle.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []particleEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("particles file %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("particles file %s: no particles", path)
	}

	states := make([]*particle.State, len(entries))
	seen := make(map[int]bool, len(entries))
	for i, e := range entries {
		id := i
		if e.ID != nil {
			id = *e.ID
		}
		if seen[id] {
			return nil, fmt.Errorf("particles file %s: duplicate particle id %d", path, id)
		}
		seen[id] = true

		sp := defaults
		if e.Charge != nil {
			sp.Charge = *e.Charge
		}
		if e.Mass != nil {
			sp.Mass = *e.Mass
		}
		if err := sp.Validate(); err != nil {
			return nil, fmt.Errorf("particle %d: %w", id, err)
		}

		states[i] = particle.New(id, sp, vec(e.Pos), vec(e.Vel), e.T0)
	}
	return states, nil
}

func vec(v [3]float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}
