// Package workerpool drives a fixed pool of goroutines across a
// scheduler's ready queue, round-robin dispatching released reach ids
// into per-worker inboxes, as described in spec.md §4.5.
package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"router/internal/scheduler"
	"router/pkg/metrics"
)

// Runner executes the per-reach work (spec.md §4.6) for a released
// reach id. Implementations must make their contribution to the
// downstream inflow buffer visible before returning, so that the
// scheduler's release-after-write ordering holds once Complete is
// called.
type Runner interface {
	Run(ctx context.Context, reachID uint32) error
}

// Pool is a fixed set of workers, each with its own inbox channel, fed
// by a single dispatcher goroutine round-robining reach ids off the
// scheduler's ready queue.
type Pool struct {
	size    int
	inboxes []chan uint32
	sched   *scheduler.Scheduler
	runner  Runner
	tracker *metrics.WorkerTracker
}

// New builds a Pool with the given worker count. size <= 0 defaults to
// runtime.NumCPU(), matching spec.md §4.5's "sized to available
// hardware parallelism".
func New(size int, sched *scheduler.Scheduler, runner Runner) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	inboxes := make([]chan uint32, size)
	for i := range inboxes {
		inboxes[i] = make(chan uint32, 1)
	}

	return &Pool{size: size, inboxes: inboxes, sched: sched, runner: runner, tracker: metrics.Get().WorkerTracker()}
}

// Run starts all workers, dispatches the scheduler's ready queue into
// their inboxes round-robin, and blocks until every reach has been
// processed or the context is canceled. A runner error skips Complete
// for that reach — which would otherwise leave the scheduler's ready
// queue open forever, since a downstream reach's pending-parent count
// would never reach zero — so the first error also cancels the run's
// context, unblocking dispatch's ctx.Done() case and unwinding cleanly.
// The first worker error is returned after all workers have exited.
func (p *Pool) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, p.size)

	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(worker string, inbox <-chan uint32) {
			defer wg.Done()
			for reachID := range inbox {
				p.tracker.Start(worker)
				err := p.runner.Run(ctx, reachID)
				p.tracker.End(worker)

				if err != nil {
					select {
					case errs <- err:
					default:
					}
					cancel()
					continue
				}
				p.sched.Complete(reachID)
			}
		}(fmt.Sprintf("worker-%d", i), p.inboxes[i])
	}

	p.dispatch(ctx)

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// dispatch reads the scheduler's ready queue and round-robins reach ids
// into the worker inboxes until the queue closes or ctx is canceled,
// then closes every inbox so the workers' range loops terminate.
func (p *Pool) dispatch(ctx context.Context) {
	defer func() {
		for _, inbox := range p.inboxes {
			close(inbox)
		}
	}()

	ready := p.sched.Ready()
	next := 0

	for {
		select {
		case <-ctx.Done():
			return
		case reachID, ok := <-ready:
			if !ok {
				return
			}
			p.inboxes[next] <- reachID
			next = (next + 1) % p.size
		}
	}
}
