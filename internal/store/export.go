package store

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/solwind/ptrace/internal/field"
	"github.com/solwind/ptrace/internal/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

// ExportHeader names the trajectory export columns. Velocities are
// decomposed against the local magnetic field when a sampler is
// available; with no sampler (or zero field) the velocity counts as
// fully perpendicular.
const ExportHeader = "TIME XPOS YPOS ZPOS VPERP VPARA ENERGY PITCHANGLE"

// ExportASCII writes trajectories in the classic column format: one
// section per particle opened by `# <id> <status>`, one row per sample.
// sampler may be nil.
func ExportASCII(w io.Writer, summaries []ParticleSummary, trajs []particle.Trajectory, species particle.Species, sampler *field.Sampler) error {
	if len(summaries) != len(trajs) {
		return fmt.Errorf("store: %d summaries for %d trajectories", len(summaries), len(trajs))
	}

	if _, err := fmt.Fprintf(w, "%s\n", ExportHeader); err != nil {
		return err
	}
	for i, traj := range trajs {
		if _, err := fmt.Fprintf(w, "# %d %s\n", summaries[i].ID, summaries[i].Status); err != nil {
			return err
		}
		for _, pt := range traj {
			var b r3.Vec
			if sampler != nil {
				if f, err := sampler.Sample(pt.Pos, pt.T); err == nil {
					b = f.B
				}
			}
			vperp, vpara, pitch := pt.PitchDecomp(b)
			if _, err := fmt.Fprintf(w, "%.10e %.10e %.10e %.10e %.10e %.10e %.10e %.6f\n",
				pt.T, pt.Pos.X, pt.Pos.Y, pt.Pos.Z,
				vperp, vpara, pt.Energy(species), pitch); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExportRun exports one saved run to path, reading the trajectories back
// from the run directory.
func (s *Store) ExportRun(runID, path string, sampler *field.Sampler) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}

	trajs := make([]particle.Trajectory, len(meta.Particles))
	for i, ps := range meta.Particles {
		if trajs[i], err = s.LoadTrajectory(runID, ps.ID); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := ExportASCII(w, meta.Particles, trajs, meta.Config.Species, sampler); err != nil {
		return err
	}
	return w.Flush()
}
