package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"roller/internal/report"
)

// Scheduler fans the pipeline out across repositories under a bounded
// worker pool.
//
// Isolation is by construction: every repository gets its own workspace
// directory and operator, so the only shared mutable structure is the
// outcome slice, and each worker writes exactly one element of it.
type Scheduler struct {
	concurrency int

	// run executes the pipeline for one descriptor. The index is the
	// descriptor's position in the run, used for progress attribution.
	run func(ctx context.Context, index int, desc RepositoryDescriptor) report.RepositoryOutcome
}

func NewScheduler(concurrency int, run func(ctx context.Context, index int, desc RepositoryDescriptor) report.RepositoryOutcome) (*Scheduler, error) {
	if run == nil {
		return nil, errors.New("scheduler run func is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{concurrency: concurrency, run: run}, nil
}

// Execute runs the pipeline for every descriptor and returns one outcome
// per descriptor, in descriptor order.
//
// Semantics:
//   - At most s.concurrency pipelines are active at once.
//   - With exitOnFirstFailure, a failed or test-failed outcome stops the
//     dispatch of descriptors that have not started yet; in-flight
//     pipelines finish. Pipelines never started are recorded NotAttempted.
//   - Context cancellation likewise stops future dispatch only; there is
//     no hard kill of running external processes.
func (s *Scheduler) Execute(ctx context.Context, descs []RepositoryDescriptor, exitOnFirstFailure bool) []report.RepositoryOutcome {
	// Index-addressed slots: each worker owns exactly one element, so no
	// lock is needed and descriptor order is preserved for the report.
	outcomes := make([]report.RepositoryOutcome, len(descs))

	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup
	var stop atomic.Bool

	for i, desc := range descs {
		if stop.Load() || ctx.Err() != nil {
			outcomes[i] = notAttempted(desc)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = notAttempted(desc)
			continue
		}
		// A failure may have been observed while we were waiting for a
		// worker slot; skipped descriptors must not start late.
		if stop.Load() {
			sem.Release(1)
			outcomes[i] = notAttempted(desc)
			continue
		}

		wg.Add(1)
		go func(i int, desc RepositoryDescriptor) {
			defer wg.Done()
			defer sem.Release(1)

			out := s.run(ctx, i, desc)
			outcomes[i] = out
			if exitOnFirstFailure && out.Failed() {
				stop.Store(true)
			}
		}(i, desc)
	}

	wg.Wait()
	return outcomes
}

func notAttempted(desc RepositoryDescriptor) report.RepositoryOutcome {
	return report.RepositoryOutcome{
		Repo:   desc.Name,
		Status: report.StatusNotAttempted,
	}
}
