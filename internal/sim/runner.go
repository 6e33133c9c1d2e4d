// Package sim fans a set of particles out over a worker pool and collects
// their trajectories.
//
// Each particle is integrated start-to-finish by exactly one worker; the
// only shared state is the read-only field sampler. Results are published
// into a slice indexed by particle, so the outcome is identical for any
// worker count. Context cancellation is honored between particles, never
// inside an in-flight integration.
package sim

import (
	"context"
	"runtime"
	"sync"

	"github.com/solwind/ptrace/internal/field"
	"github.com/solwind/ptrace/internal/metrics"
	"github.com/solwind/ptrace/internal/particle"
	"github.com/solwind/ptrace/internal/pusher"
)

// Result is the completed outcome of one particle: its terminal state,
// its trajectory, and the diagnostics gathered along the way. A Result is
// only published after the particle reached a terminal status.
type Result struct {
	State   *particle.State
	Traj    particle.Trajectory
	Metrics map[string]float64
}

// Runner integrates particle sets against one shared sampler.
type Runner struct {
	sampler *field.Sampler
	opt     pusher.Options
	workers int

	// onDone, when set, is invoked once per completed particle, from
	// worker goroutines, serialized by an internal mutex.
	onDone func(Result)
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the worker-pool size; values below 1 select
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithProgress registers a completion callback used for live reporting.
func WithProgress(fn func(Result)) Option {
	return func(r *Runner) { r.onDone = fn }
}

// NewRunner validates the integration options and builds a runner.
func NewRunner(sampler *field.Sampler, opt pusher.Options, opts ...Option) (*Runner, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{sampler: sampler, opt: opt}
	for _, o := range opts {
		o(r)
	}
	if r.workers < 1 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	return r, nil
}

// Run integrates every particle and returns one Result per input, in
// input order. On cancellation the already-finished results are returned
// together with ctx.Err(); unstarted particles stay Active.
func (r *Runner) Run(ctx context.Context, states []*particle.State) ([]Result, error) {
	results := make([]Result, len(states))

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex

	workers := r.workers
	if workers > len(states) && len(states) > 0 {
		workers = len(states)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Worker-local pusher and metrics; nothing here is shared.
			drift := metrics.NewSpeedDrift()
			steps := metrics.NewStepStats()
			p, err := pusher.New(r.sampler, r.opt, drift, steps)
			if err != nil {
				return
			}

			for idx := range jobs {
				drift.Reset()
				steps.Reset()

				st := states[idx]
				traj := p.Run(st)

				res := Result{
					State: st,
					Traj:  traj,
					Metrics: map[string]float64{
						drift.Name(): drift.Value(),
						steps.Name(): steps.Value(),
						"step_min":   steps.Min(),
						"step_max":   steps.Max(),
					},
				}
				results[idx] = res

				if r.onDone != nil {
					mu.Lock()
					r.onDone(res)
					mu.Unlock()
				}
			}
		}()
	}

	var runErr error
dispatch:
	for i := range states {
		select {
		case jobs <- i:
		case <-ctx.Done():
			runErr = ctx.Err()
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	return results, runErr
}

// Summarize counts terminal statuses over a result set.
func Summarize(results []Result) map[particle.Status]int {
	counts := make(map[particle.Status]int)
	for _, res := range results {
		if res.State != nil {
			counts[res.State.Status]++
		}
	}
	return counts
}
