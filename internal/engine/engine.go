// Package engine is the top-level orchestrator: it wires topology,
// scheduler, worker pool, inflow buffers, the lateral inflow loader, and
// the output archive together into a single run, and owns the run's
// RunMetadata/EngineStats.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"router/internal/archive"
	"router/internal/domain"
	"router/internal/inflow"
	"router/internal/kernel"
	"router/internal/lateral"
	"router/internal/report"
	"router/internal/scheduler"
	"router/internal/topology"
	"router/internal/workerpool"
	"router/pkg/apperror"
	"router/pkg/audit"
	"router/pkg/config"
	"router/pkg/logger"
	"router/pkg/metrics"
	"router/pkg/telemetry"
)

// Engine drives one complete routing run over a network of reaches.
type Engine struct {
	cfg      *config.Config
	runID    string
	routeDir string

	topo  *topology.Topology
	sched *scheduler.Scheduler

	geometries map[uint32]domain.ChannelGeometry
	lateralSeries map[uint32]lateral.Series

	inflowStore *inflow.Store
	archiveW    *archive.Writer

	internalSteps int
	externalSteps int
	dt            float64

	resultsMu sync.Mutex
	results   map[uint32]domain.ReachResult
	warnings  []report.Warning

	metrics *metrics.Metrics
	stats   domain.EngineStats
}

// New builds an Engine ready to route the given reaches. geometries maps
// a reach id to its channel parameters; a reach with no entry is skipped
// rather than failing the run. lateralLoader reads each reach's
// "cat-<id>.csv" forcing file; its absence is likewise not fatal.
func New(cfg *config.Config, runID, routeDir string, reaches []domain.Reach, geometries map[uint32]domain.ChannelGeometry, lateralLoader *lateral.Loader) (*Engine, error) {
	topo := topology.New()
	for _, r := range reaches {
		if err := topo.AddReach(r); err != nil {
			return nil, err
		}
	}
	if err := topo.Build(); err != nil {
		return nil, err
	}

	lateralSeries := make(map[uint32]lateral.Series, len(reaches))
	externalSteps := 0
	for _, r := range reaches {
		series, err := lateralLoader.Load(r.ID, r.AreaSqKM)
		if err != nil {
			return nil, err
		}
		lateralSeries[r.ID] = series
		if len(series) > externalSteps {
			externalSteps = len(series)
		}
	}
	if externalSteps == 0 {
		externalSteps = 1
	}

	ratio := 1
	if cfg.Engine.InternalTimestepSeconds > 0 {
		ratio = cfg.Engine.ExternalTimestepSeconds / cfg.Engine.InternalTimestepSeconds
	}
	if ratio <= 0 {
		ratio = 1
	}

	e := &Engine{
		cfg:           cfg,
		runID:         runID,
		routeDir:      routeDir,
		topo:          topo,
		sched:         scheduler.New(topo),
		geometries:    geometries,
		lateralSeries: lateralSeries,
		inflowStore:   inflow.NewStore(),
		internalSteps: externalSteps * ratio,
		externalSteps: externalSteps,
		dt:            float64(cfg.Engine.InternalTimestepSeconds),
		results:       make(map[uint32]domain.ReachResult, len(reaches)),
		metrics:       metrics.Get(),
	}

	times := make([]float64, externalSteps)
	for i := range times {
		times[i] = float64(i * cfg.Engine.ExternalTimestepSeconds)
	}

	e.archiveW = archive.NewWriter(times, archive.Attributes{
		Title:         fmt.Sprintf("router run %s", runID),
		ReferenceTime: time.Now(),
		CodeVersion:   cfg.App.Version,
	}, cfg.Engine.WriterQueueDepth)

	return e, nil
}

// Execute drives every reach to completion and returns the run's metadata
// and aggregate statistics. It also persists the gridded archive to
// outputPath and, if cfg.Report.Enabled, an Excel summary workbook.
func (e *Engine) Execute(ctx context.Context, outputPath string) (domain.RunMetadata, domain.EngineStats, error) {
	meta := domain.RunMetadata{
		RunID:        e.runID,
		RouteDir:     e.routeDir,
		StartedAt:    time.Now(),
		InternalStep: time.Duration(e.cfg.Engine.InternalTimestepSeconds) * time.Second,
		ExternalStep: time.Duration(e.cfg.Engine.ExternalTimestepSeconds) * time.Second,
		ReachCount:   len(e.topo.Reaches),
	}

	ctx, span := telemetry.StartSpan(ctx, "engine.run",
		telemetry.WithAttributes(telemetry.TopologyAttributes(len(e.topo.Reaches), edgeCount(e.topo))...))
	defer span.End()

	_ = audit.Log(ctx, audit.NewEntry().
		Service("router").Action(audit.ActionRunStart).Outcome(audit.OutcomeSuccess).
		Meta("run_id", e.runID).Meta("reach_count", len(e.topo.Reaches)).Build())

	pool := workerpool.New(e.cfg.Engine.Workers, e.sched, e)
	runErr := pool.Run(ctx)

	closeErr := e.archiveW.Close(outputPath, true)
	if runErr == nil {
		runErr = closeErr
	}

	meta.FinishedAt = time.Now()
	e.stats.Duration = meta.FinishedAt.Sub(meta.StartedAt)
	e.metrics.RecordRunDuration(e.stats.Duration)

	outcome := audit.OutcomeSuccess
	if runErr != nil {
		outcome = audit.OutcomeFailure
	}
	_ = audit.Log(ctx, audit.NewEntry().
		Service("router").Action(audit.ActionRunComplete).Outcome(outcome).
		Meta("run_id", e.runID).Meta("reaches_completed", e.stats.ReachesCompleted).
		Meta("reaches_skipped", e.stats.ReachesSkipped).Build())

	if runErr != nil {
		return meta, e.stats, runErr
	}

	if e.cfg.Report.Enabled && e.cfg.Report.OutputPath != "" {
		results := make([]domain.ReachResult, 0, len(e.results))
		e.resultsMu.Lock()
		for _, r := range e.results {
			results = append(results, r)
		}
		warnings := e.warnings
		e.resultsMu.Unlock()

		if err := report.Write(e.cfg.Report.OutputPath, meta, e.stats, results, warnings); err != nil {
			logger.Log.Warn("failed to write summary report", "error", err, "run_id", e.runID)
		}
	}

	return meta, e.stats, nil
}

func edgeCount(t *topology.Topology) int {
	n := 0
	for _, r := range t.Reaches {
		if r.HasDownstream {
			n++
		}
	}
	return n
}

// Run implements workerpool.Runner: it drives a single reach through every
// internal timestep, per spec.md §4.6.
func (e *Engine) Run(ctx context.Context, reachID uint32) error {
	reach := e.topo.Reaches[reachID]
	ctx, span := telemetry.StartSpan(ctx, "engine.route_reach",
		telemetry.WithAttributes(telemetry.ReachAttributes(fmt.Sprintf("wb-%d", reachID), len(reach.UpstreamIDs))...))
	defer span.End()

	geom, ok := e.geometries[reachID]
	if !ok {
		return e.skip(ctx, reach, "missing channel geometry")
	}

	if geom.Slope < e.cfg.Engine.SlopeFloor {
		geom.Slope = e.cfg.Engine.SlopeFloor
	}

	series := e.lateralSeries[reachID]
	upsampling := lateral.Upsampling(e.internalSteps, len(series))

	buf := e.inflowStore.Buffer(reachID)

	opts := kernel.Options{
		MaxIterations: e.cfg.Engine.KernelMaxIterations,
		MinDepth:      e.cfg.Engine.KernelMinDepth,
	}

	outflow := make([]float64, e.externalSteps)
	velocity := make([]float64, e.externalSteps)
	depth := make([]float64, e.externalSteps)
	internalOutflow := make([]float64, e.internalSteps)

	var qup, qdp, depthPrev float64
	nonConvergence := 0
	ratio := e.internalSteps / e.externalSteps
	if ratio <= 0 {
		ratio = 1
	}

	for t := 0; t < e.internalSteps; t++ {
		ql := series.At(t, upsampling)
		quc := buf.At(t)

		result, err := kernel.Advance(qup, quc, qdp, ql, e.dt, geom, depthPrev, opts)
		if err != nil {
			telemetry.RecordError(ctx, err)
			switch apperror.Code(err) {
			case apperror.CodeInvalidGeometry, apperror.CodeCourantViolation:
				// Fatal per spec.md §4.1/§7: a geometry precondition
				// violation or a degenerate routing-coefficient solve
				// aborts the run rather than being absorbed as a warning.
				logger.Log.Error("kernel precondition violation, aborting run", "reach_id", reachID, "step", t, "error", err)
				e.inflowStore.Release(reachID)
				return apperror.Wrap(err, apperror.Code(err), "kernel aborted").
					WithDetails("reach_id", reachID).WithDetails("step", t)
			default:
				logger.Log.Error("kernel returned an unexpected error, aborting run", "reach_id", reachID, "step", t, "error", err)
				e.inflowStore.Release(reachID)
				return err
			}
		}
		if !result.Converged {
			nonConvergence++
		}

		qup = quc
		qdp = result.Discharge
		depthPrev = result.Depth
		internalOutflow[t] = result.Discharge

		if extIdx := t / ratio; extIdx < e.externalSteps {
			outflow[extIdx] = result.Discharge
			velocity[extIdx] = result.Velocity
			depth[extIdx] = result.Depth
		}
	}

	if reach.HasDownstream {
		e.inflowStore.Buffer(reach.DownstreamID).Add(internalOutflow)
	}
	e.inflowStore.Release(reachID)

	result := domain.ReachResult{
		ReachID:        reachID,
		Outflow:        outflow,
		Velocity:       velocity,
		Depth:          depth,
		NonConvergence: nonConvergence,
	}

	e.resultsMu.Lock()
	e.results[reachID] = result
	if nonConvergence > 0 {
		e.warnings = append(e.warnings, report.Warning{
			ReachID: reachID,
			Message: fmt.Sprintf("%d of %d timesteps exceeded the secant iteration budget", nonConvergence, e.internalSteps),
		})
	}
	e.resultsMu.Unlock()

	e.archiveW.Submit(archive.Block{FeatureID: reachID, Flow: outflow, Velocity: velocity, Depth: depth})

	e.stats.ReachesCompleted++
	if nonConvergence > 0 {
		e.stats.KernelFallbacks++
		e.metrics.RecordKernelNonConvergence()
	}
	e.stats.BlocksWritten++
	e.metrics.RecordReachCompleted()
	e.metrics.RecordWriterBlock()

	_ = audit.Log(ctx, audit.NewEntry().
		Service("router").Action(audit.ActionRoute).Outcome(audit.OutcomeSuccess).
		Meta("reach_id", reachID).Meta("non_convergence", nonConvergence).Build())
	_ = audit.Log(ctx, audit.NewEntry().
		Service("router").Action(audit.ActionArchiveWrite).Outcome(audit.OutcomeSuccess).
		Meta("reach_id", reachID).Build())

	return nil
}

func (e *Engine) skip(ctx context.Context, reach domain.Reach, reason string) error {
	e.resultsMu.Lock()
	e.results[reach.ID] = domain.ReachResult{ReachID: reach.ID, Skipped: true, SkipReason: reason}
	e.warnings = append(e.warnings, report.Warning{ReachID: reach.ID, Message: "skipped: " + reason})
	e.resultsMu.Unlock()

	e.stats.ReachesSkipped++
	e.metrics.RecordReachSkipped(reason)

	_ = audit.Log(ctx, audit.NewEntry().
		Service("router").Action(audit.ActionReachSkipped).Outcome(audit.OutcomeSuccess).
		Meta("reach_id", reach.ID).Meta("reason", reason).Build())

	logger.Log.Warn("skipping reach", "reach_id", reach.ID, "reason", reason)

	e.inflowStore.Release(reach.ID)
	return nil
}
