package sim_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/solwind/ptrace/internal/field"
	"github.com/solwind/ptrace/internal/grid"
	"github.com/solwind/ptrace/internal/particle"
	"github.com/solwind/ptrace/internal/pusher"
	"github.com/solwind/ptrace/internal/sim"
	"gonum.org/v1/gonum/spatial/r3"
)

var _ = Describe("Runner", func() {
	var (
		sampler *field.Sampler
		opt     pusher.Options
	)

	newParticles := func(n int) []*particle.State {
		sp := particle.Species{Charge: 1, Mass: 1}
		states := make([]*particle.State, n)
		for i := range states {
			// Spread the starts so the particles follow distinct orbits.
			pos := r3.Vec{X: 3 + 0.2*float64(i%10), Y: 5, Z: 2 + 0.3*float64(i%5)}
			vel := r3.Vec{X: 1, Y: 0.1 * float64(i%3)}
			states[i] = particle.New(i, sp, pos, vel, 0)
		}
		return states
	}

	BeforeEach(func() {
		g, err := grid.Uniform(10, 10, 10, r3.Vec{}, r3.Vec{X: 9, Y: 9, Z: 9})
		Expect(err).NotTo(HaveOccurred())
		snap := field.UniformSnapshot(g, r3.Vec{}, r3.Vec{Z: 1})
		sampler, err = field.NewSampler(g, nil, []field.Snapshot{snap}, grid.PolicyError)
		Expect(err).NotTo(HaveOccurred())

		opt = pusher.Options{
			TolAbs:   1e-9,
			TolRel:   1e-9,
			StepMin:  1e-12,
			MaxSteps: 1_000_000,
			T0:       0,
			T1:       2 * math.Pi,
		}
	})

	It("drives every particle to exactly one terminal status", func() {
		r, err := sim.NewRunner(sampler, opt, sim.WithWorkers(4))
		Expect(err).NotTo(HaveOccurred())

		states := newParticles(20)
		results, err := r.Run(context.Background(), states)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(20))

		for _, res := range results {
			Expect(res.State).NotTo(BeNil())
			Expect(res.State.Status.Terminal()).To(BeTrue())
			Expect(res.Traj).NotTo(BeEmpty())
		}

		counts := sim.Summarize(results)
		total := 0
		for _, n := range counts {
			total += n
		}
		Expect(total).To(Equal(20))
		Expect(counts[particle.Active]).To(BeZero())
	})

	It("produces identical results for any worker count", func() {
		run := func(workers int) []sim.Result {
			r, err := sim.NewRunner(sampler, opt, sim.WithWorkers(workers))
			Expect(err).NotTo(HaveOccurred())
			results, err := r.Run(context.Background(), newParticles(12))
			Expect(err).NotTo(HaveOccurred())
			return results
		}

		serial := run(1)
		parallel := run(7)

		for i := range serial {
			Expect(parallel[i].State.Status).To(Equal(serial[i].State.Status))
			Expect(parallel[i].State.Steps).To(Equal(serial[i].State.Steps))
			Expect(parallel[i].Traj).To(HaveLen(len(serial[i].Traj)))
			for j := range serial[i].Traj {
				Expect(parallel[i].Traj[j]).To(Equal(serial[i].Traj[j]))
			}
		}
	})

	It("collects per-particle diagnostics", func() {
		r, err := sim.NewRunner(sampler, opt, sim.WithWorkers(2))
		Expect(err).NotTo(HaveOccurred())

		results, err := r.Run(context.Background(), newParticles(4))
		Expect(err).NotTo(HaveOccurred())

		for _, res := range results {
			Expect(res.Metrics).To(HaveKey("speed_drift"))
			Expect(res.Metrics).To(HaveKey("step_mean"))
			// In a pure magnetic field the speed is conserved to tolerance.
			Expect(res.Metrics["speed_drift"]).To(BeNumerically("<", 1e-6))
			Expect(res.Metrics["step_min"]).To(BeNumerically(">", 0))
		}
	})

	It("reports each completion through the progress callback", func() {
		seen := 0
		r, err := sim.NewRunner(sampler, opt,
			sim.WithWorkers(3),
			sim.WithProgress(func(sim.Result) { seen++ }),
		)
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Run(context.Background(), newParticles(9))
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal(9))
	})

	It("stops dispatching when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r, err := sim.NewRunner(sampler, opt, sim.WithWorkers(2))
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Run(ctx, newParticles(50))
		Expect(err).To(MatchError(context.Canceled))
	})

	It("rejects invalid integration options", func() {
		bad := opt
		bad.MaxSteps = 0
		_, err := sim.NewRunner(sampler, bad)
		Expect(err).To(HaveOccurred())
	})
})
