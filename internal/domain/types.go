// Package domain holds the core types shared across the routing engine:
// the network node, its channel geometry, per-timestep routing state, and
// the summary records produced at the end of a run.
package domain

import "time"

// NodeStatus tracks a reach's position in the scheduler's dependency graph.
type NodeStatus int

const (
	// NodeNotReady indicates the reach is still waiting on one or more upstream reaches.
	NodeNotReady NodeStatus = iota
	// NodeReady indicates all upstream reaches have completed and the reach can be dispatched.
	NodeReady
	// NodeRunning indicates a worker is currently driving the reach through its timesteps.
	NodeRunning
	// NodeDone indicates the reach has been fully routed.
	NodeDone
	// NodeSkipped indicates the reach was skipped, e.g. because its channel geometry
	// could not be fetched.
	NodeSkipped
)

// String returns the human-readable name of a NodeStatus.
func (s NodeStatus) String() string {
	switch s {
	case NodeNotReady:
		return "NOT_READY"
	case NodeReady:
		return "READY"
	case NodeRunning:
		return "RUNNING"
	case NodeDone:
		return "DONE"
	case NodeSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// Reach is a single network edge (catchment outlet to catchment outlet)
// in the routing topology, as parsed from the flowpaths table.
type Reach struct {
	ID           uint32
	DownstreamID uint32 // Meaningful only when HasDownstream is true; 0 for an outlet.
	HasDownstream bool
	UpstreamIDs  []uint32
	AreaSqKM     float64
	LateralFile  string
}

// ChannelGeometry holds the Muskingum-Cunge channel parameters for a single
// reach, as loaded from the flowpath-attributes table (or its cache).
type ChannelGeometry struct {
	LengthM     float64 // channel length, meters
	Manning     float64 // Manning's n, main channel
	ManningCC   float64 // Manning's n, compound/floodplain channel
	Slope       float64 // bed slope, dimensionless
	BottomWidth float64 // trapezoidal bottom width, meters
	TopWidth    float64 // main channel top width, meters
	TopWidthCC  float64 // compound channel top width, meters
	SideSlope   float64 // channel side slope, horizontal:vertical
}

// RoutingState carries the previous-timestep values a reach's kernel needs
// to compute the next timestep: upstream/downstream flow and depth history.
type RoutingState struct {
	QUp   float64 // upstream flow at the previous timestep
	QCurr float64 // upstream flow at the current timestep
	QDown float64 // downstream (outflow) at the previous timestep
	DepthPrev float64
}

// Update advances the routing state after a timestep has been solved.
func (s *RoutingState) Update(qCurrNext, qDownNext, depthNext float64) {
	s.QUp = s.QCurr
	s.QCurr = qCurrNext
	s.QDown = qDownNext
	s.DepthPrev = depthNext
}

// RoutingOrder is the reach-processing sequence produced by the topological
// sort: upstream reaches always precede their downstream reach.
type RoutingOrder []uint32

// ReachResult is the per-reach outcome after a complete run: the routed
// outflow time series and how many internal timesteps the kernel failed to
// converge on within its secant iteration budget, bracket expansions included.
type ReachResult struct {
	ReachID        uint32
	Outflow        []float64 // one value per external timestep
	Velocity       []float64
	Depth          []float64
	NonConvergence int // count of timesteps that exceeded the secant iteration budget
	Skipped        bool
	SkipReason     string
}

// PeakDischarge returns the largest outflow value in the result, or 0 for
// an empty or skipped result.
func (r ReachResult) PeakDischarge() float64 {
	return maxOf(r.Outflow)
}

// PeakVelocity returns the largest velocity value in the result, or 0 for
// an empty or skipped result.
func (r ReachResult) PeakVelocity() float64 {
	return maxOf(r.Velocity)
}

// PeakDepth returns the largest depth value in the result, or 0 for an
// empty or skipped result.
func (r ReachResult) PeakDepth() float64 {
	return maxOf(r.Depth)
}

func maxOf(values []float64) float64 {
	var m float64
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

// RunMetadata describes a single invocation of the engine: its inputs,
// configuration fingerprint, and timing.
type RunMetadata struct {
	RunID         string
	RouteDir      string
	StartedAt     time.Time
	FinishedAt    time.Time
	InternalStep  time.Duration
	ExternalStep  time.Duration
	ReachCount    int
}

// EngineStats aggregates run-wide counters surfaced in logs, metrics, and
// the optional Excel summary report.
type EngineStats struct {
	ReachesCompleted int
	ReachesSkipped   int
	KernelFallbacks  int
	BlocksWritten    int
	Duration         time.Duration
}
