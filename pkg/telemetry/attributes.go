package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard attribute keys attached to engine spans.
const (
	AttrRunID       = "run.id"
	AttrReachCount  = "topology.reach_count"
	AttrEdgeCount   = "topology.edge_count"
	AttrWorkerCount = "engine.worker_count"

	AttrReachID     = "reach.id"
	AttrParentCount = "reach.parent_count"

	AttrIterations = "kernel.iterations"
	AttrConverged  = "kernel.converged"
)

// TopologyAttributes returns attributes describing the routing network.
func TopologyAttributes(reachCount, edgeCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrReachCount, reachCount),
		attribute.Int(AttrEdgeCount, edgeCount),
	}
}

// ReachAttributes returns attributes describing a single reach's execution.
func ReachAttributes(reachID string, parentCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrReachID, reachID),
		attribute.Int(AttrParentCount, parentCount),
	}
}

// KernelAttributes returns attributes describing one kernel solve.
func KernelAttributes(iterations int, converged bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrIterations, iterations),
		attribute.Bool(AttrConverged, converged),
	}
}
