// Package scheduler tracks each reach's outstanding upstream parents and
// releases it to a FIFO ready queue the instant its last parent
// completes, driving the worker pool without a central barrier between
// routing "levels".
package scheduler

import (
	"sync"

	"router/internal/topology"
)

// Scheduler holds the pending-parent counts and FIFO ready queue
// described in spec.md §4.4. It is safe for concurrent use: workers call
// Complete concurrently as they finish reaches.
type Scheduler struct {
	mu         sync.Mutex
	pending    map[uint32]int    // non-root reaches only; entry removed once released
	downstream map[uint32]uint32 // reach id -> downstream id, only if it has one
	total      int
	completed  int

	ready chan uint32
	done  chan struct{}
}

// New builds a Scheduler from a built Topology, enqueuing every root
// (reach with no upstream parents) immediately.
func New(topo *topology.Topology) *Scheduler {
	s := &Scheduler{
		pending:    make(map[uint32]int, len(topo.Reaches)),
		downstream: make(map[uint32]uint32, len(topo.Reaches)),
		total:      len(topo.Reaches),
		ready:      make(chan uint32, len(topo.Reaches)),
		done:       make(chan struct{}),
	}

	for id, r := range topo.Reaches {
		if r.HasDownstream {
			s.downstream[id] = r.DownstreamID
		}
		if n := len(r.UpstreamIDs); n > 0 {
			s.pending[id] = n
		}
	}

	for _, id := range topo.RoutingOrder {
		if _, tracked := s.pending[id]; !tracked {
			s.ready <- id
		}
	}

	if s.total == 0 {
		close(s.ready)
		close(s.done)
	}

	return s
}

// Ready is the FIFO of released reach ids. It closes once every reach in
// the network has been completed.
func (s *Scheduler) Ready() <-chan uint32 {
	return s.ready
}

// Done closes once Complete has been called for every reach in the network.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Complete reports that reachID finished routing. If reachID has a
// downstream reach, its pending-parent count is decremented; reaching
// zero releases the downstream reach to the ready queue. The caller
// (typically the per-reach worker, see §4.6) must have already made the
// reach's contribution visible in the downstream inflow buffer before
// calling Complete, so that release-before-read ordering holds.
func (s *Scheduler) Complete(reachID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if downstreamID, ok := s.downstream[reachID]; ok {
		s.pending[downstreamID]--
		if s.pending[downstreamID] == 0 {
			delete(s.pending, downstreamID)
			s.ready <- downstreamID
		}
	}

	s.completed++
	if s.completed == s.total {
		close(s.ready)
		close(s.done)
	}
}

// Total returns the number of reaches tracked by the scheduler.
func (s *Scheduler) Total() int {
	return s.total
}

// Completed returns the number of reaches completed so far.
func (s *Scheduler) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}
