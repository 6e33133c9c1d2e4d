// Package store persists runs and loads field and particle inputs. It is
// the I/O boundary of the tracer: everything here happens before
// integration starts or after particles have reached a terminal status.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/solwind/ptrace/internal/config"
	"github.com/solwind/ptrace/internal/particle"
	"github.com/solwind/ptrace/internal/sim"
	"gonum.org/v1/gonum/spatial/r3"
)

// Store manages run directories under one base directory.
type Store struct {
	baseDir string
}

// New builds a store rooted at baseDir.
func New(baseDir string) *Store { return &Store{baseDir: baseDir} }

// Init creates the base directory.
func (s *Store) Init() error { return os.MkdirAll(s.baseDir, 0755) }

// ParticleSummary is the per-particle entry in the run metadata.
type ParticleSummary struct {
	ID       int                `json:"id"`
	Status   string             `json:"status"`
	Steps    int                `json:"steps"`
	Rejects  int                `json:"rejects"`
	FinalT   float64            `json:"final_t"`
	FailStep int                `json:"fail_step,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// RunMetadata describes one completed run.
type RunMetadata struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Config    *config.Config    `json:"config"`
	Statuses  map[string]int    `json:"statuses"`
	Particles []ParticleSummary `json:"particles"`
	Elapsed   float64           `json:"elapsed_seconds"`
}

// Save writes one run directory: metadata.json plus one trajectory CSV
// per particle. It must only be called once all particles are terminal.
func (s *Store) Save(cfg *config.Config, results []sim.Result, elapsed time.Duration) (string, error) {
	runID := fmt.Sprintf("run_%d", time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		Timestamp: time.Now(),
		Config:    cfg,
		Statuses:  make(map[string]int),
		Elapsed:   elapsed.Seconds(),
	}
	for st, n := range sim.Summarize(results) {
		meta.Statuses[st.String()] = n
	}
	for _, res := range results {
		if res.State == nil {
			continue
		}
		meta.Particles = append(meta.Particles, ParticleSummary{
			ID:       res.State.ID,
			Status:   res.State.Status.String(),
			Steps:    res.State.Steps,
			Rejects:  res.State.Rejects,
			FinalT:   res.State.Time,
			FailStep: res.State.FailStep,
			Metrics:  res.Metrics,
		})
		if err := writeTrajectory(filepath.Join(runDir, trajName(res.State.ID)), res.Traj); err != nil {
			return "", err
		}
	}
	sort.Slice(meta.Particles, func(i, j int) bool { return meta.Particles[i].ID < meta.Particles[j].ID })

	f, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}
	return runID, nil
}

func trajName(id int) string { return fmt.Sprintf("particle_%04d.csv", id) }

func writeTrajectory(path string, traj particle.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"time", "x", "y", "z", "vx", "vy", "vz"}); err != nil {
		return err
	}
	for _, pt := range traj {
		row := make([]string, 0, 7)
		for _, v := range []float64{pt.T, pt.Pos.X, pt.Pos.Y, pt.Pos.Z, pt.Vel.X, pt.Vel.Y, pt.Vel.Z} {
			row = append(row, strconv.FormatFloat(v, 'g', 17, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// List returns the metadata of every run under the base directory, most
// recent last.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

// Load reads one run's metadata.
func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadTrajectory reads one particle's trajectory back from a run.
func (s *Store) LoadTrajectory(runID string, id int) (particle.Trajectory, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, trajName(id)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return particle.Trajectory{}, nil
	}

	traj := make(particle.Trajectory, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != 7 {
			return nil, fmt.Errorf("store: trajectory row has %d columns, want 7", len(rec))
		}
		var vals [7]float64
		for i, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("store: bad trajectory value %q: %w", field, err)
			}
			vals[i] = v
		}
		traj = append(traj, particle.Point{
			T:   vals[0],
			Pos: r3.Vec{X: vals[1], Y: vals[2], Z: vals[3]},
			Vel: r3.Vec{X: vals[4], Y: vals[5], Z: vals[6]},
		})
	}
	return traj, nil
}
