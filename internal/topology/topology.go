// Package topology builds the reach network's DAG from the edge list
// loaded from the geospatial database, inverts downstream links into
// upstream adjacency, and derives a deterministic routing order with
// Kahn's algorithm.
package topology

import (
	"sort"

	"router/internal/domain"
	"router/pkg/apperror"
	"router/pkg/logger"
)

// Topology holds the reach set and the routing order derived from it.
type Topology struct {
	Reaches      map[uint32]*domain.Reach
	RoutingOrder domain.RoutingOrder
}

// New returns an empty Topology ready for AddReach calls.
func New() *Topology {
	return &Topology{
		Reaches: make(map[uint32]*domain.Reach),
	}
}

// AddReach registers a reach. Reaches must be added before Build is called.
func (t *Topology) AddReach(reach domain.Reach) error {
	if _, exists := t.Reaches[reach.ID]; exists {
		return apperror.New(apperror.CodeDuplicateReach, "duplicate reach id").
			WithDetails("reach_id", reach.ID)
	}
	r := reach
	t.Reaches[r.ID] = &r
	return nil
}

// Build inverts downstream links into upstream adjacency and computes the
// routing order. A downstream id that references no known reach is logged
// and the reach is rewritten as an outlet, per spec.
func (t *Topology) Build() error {
	if len(t.Reaches) == 0 {
		return apperror.ErrEmptyNetwork
	}

	t.rewriteUnknownDownstreams()
	t.buildUpstreamConnections()
	return t.topologicalSort()
}

func (t *Topology) rewriteUnknownDownstreams() {
	for _, r := range t.Reaches {
		if !r.HasDownstream {
			continue
		}
		if _, ok := t.Reaches[r.DownstreamID]; !ok {
			logger.Log.Warn("downstream reach not found in network, treating as outlet",
				"reach_id", r.ID, "downstream_id", r.DownstreamID)
			r.HasDownstream = false
			r.DownstreamID = 0
		}
	}
}

func (t *Topology) buildUpstreamConnections() {
	upstreamOf := make(map[uint32][]uint32, len(t.Reaches))
	for id, r := range t.Reaches {
		if r.HasDownstream {
			upstreamOf[r.DownstreamID] = append(upstreamOf[r.DownstreamID], id)
		}
	}
	for id, upstreams := range upstreamOf {
		sort.Slice(upstreams, func(i, j int) bool { return upstreams[i] < upstreams[j] })
		t.Reaches[id].UpstreamIDs = upstreams
	}
}

// topologicalSort implements Kahn's algorithm, processing headwater
// (in-degree zero) reaches first and releasing a downstream reach the
// moment its last upstream parent has been processed. Roots are sorted
// by id and each later reach is queued when its last parent is popped,
// so the routing order is reproducible regardless of map iteration order.
func (t *Topology) topologicalSort() error {
	inDegree := make(map[uint32]int, len(t.Reaches))
	for id := range t.Reaches {
		inDegree[id] = 0
	}
	for _, r := range t.Reaches {
		if r.HasDownstream {
			inDegree[r.DownstreamID]++
		}
	}

	var roots []uint32
	for id, degree := range inDegree {
		if degree == 0 {
			roots = append(roots, id)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	if len(roots) == 0 {
		return apperror.ErrCycleDetected
	}

	q := newQueue(len(t.Reaches))
	for _, id := range roots {
		q.push(id)
	}

	order := make(domain.RoutingOrder, 0, len(t.Reaches))
	for !q.empty() {
		id := q.pop()
		order = append(order, id)

		r := t.Reaches[id]
		if !r.HasDownstream {
			continue
		}
		inDegree[r.DownstreamID]--
		if inDegree[r.DownstreamID] == 0 {
			q.push(r.DownstreamID)
		}
	}

	if len(order) != len(t.Reaches) {
		return apperror.New(apperror.CodeCycleDetected, "cycle detected in network topology").
			WithDetails("processed", len(order)).
			WithDetails("total", len(t.Reaches))
	}

	t.RoutingOrder = order
	return nil
}

// Outlets returns the ids of reaches with no downstream connection.
func (t *Topology) Outlets() []uint32 {
	var outlets []uint32
	for id, r := range t.Reaches {
		if !r.HasDownstream {
			outlets = append(outlets, id)
		}
	}
	sort.Slice(outlets, func(i, j int) bool { return outlets[i] < outlets[j] })
	return outlets
}
