// Command router routes lateral inflow through a reach network using the
// Muskingum-Cunge kinematic wave kernel and writes a gridded time-series
// archive of the results, per spec.md §6:
//
//	router <route_dir> [--internal-timestep-seconds N] [--config path]
//	    [--workers N] [--cache-backend memory|redis] [--redis-addr host:port]
//	    [--metrics-addr host:port] [--tracing-endpoint host:port] [--report path]
//
// route_dir must contain a `config/` directory (database connection
// parameters are resolved from the process config/environment rather than
// per-route-dir, matching the teacher's config package) and an
// `outputs/ngen/` directory holding each reach's `cat-<id>.csv` lateral
// inflow file.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"router/internal/domain"
	"router/internal/engine"
	"router/internal/lateral"
	"router/pkg/audit"
	"router/pkg/cache"
	"router/pkg/config"
	"router/pkg/geodb"
	"router/pkg/logger"
	"router/pkg/metrics"
	"router/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		logger.Log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("router", flag.ExitOnError)
	internalTimestep := fs.Int("internal-timestep-seconds", 0, "kinematic kernel timestep in seconds (default from config, spec default 3600)")
	configPath := fs.String("config", "", "path to a config.yaml file, overriding the default search path")
	workers := fs.Int("workers", 0, "worker pool size (0 = use config default / runtime.NumCPU())")
	cacheBackend := fs.String("cache-backend", "", "channel geometry cache backend: memory or redis")
	redisAddr := fs.String("redis-addr", "", "redis address for --cache-backend=redis, host:port")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus /metrics on, enabling metrics if set")
	tracingEndpoint := fs.String("tracing-endpoint", "", "OTLP gRPC collector endpoint, enabling tracing if set")
	reportPath := fs.String("report", "", "path to write an optional Excel run-summary workbook")
	fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: router <route_dir> [flags]")
	}
	routeDir := fs.Arg(0)

	var loaderOpts []config.LoaderOption
	if *configPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigPaths(*configPath))
	}

	cfg, err := config.NewLoader(loaderOpts...).Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyFlagOverrides(cfg, *internalTimestep, *workers, *cacheBackend, *redisAddr, *metricsAddr, *tracingEndpoint, *reportPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("failed to init telemetry", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Log.Warn("failed to shutdown telemetry", "error", err)
				}
			}()
			logger.Log.Info("telemetry initialized", "endpoint", cfg.Tracing.Endpoint)
		}
	}

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	if cfg.Metrics.Enabled {
		port := metricsPort(cfg.Metrics.Addr)
		go func() {
			if err := metrics.StartMetricsServer(port); err != nil {
				logger.Log.Warn("metrics server stopped", "error", err)
			}
		}()
		logger.Log.Info("metrics server listening", "addr", cfg.Metrics.Addr)
	}

	auditLogger, err := audit.New(&audit.Config{
		Enabled:     cfg.Audit.Enabled,
		Backend:     cfg.Audit.Backend,
		FilePath:    cfg.Audit.FilePath,
		BufferSize:  cfg.Audit.BufferSize,
		FlushPeriod: cfg.Audit.FlushPeriod,
	})
	if err != nil {
		return fmt.Errorf("initializing audit logger: %w", err)
	}
	audit.SetGlobal(auditLogger)

	dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
	pool, err := geodb.NewPool(dbCtx, &cfg.Database)
	dbCancel()
	if err != nil {
		return fmt.Errorf("connecting to geospatial database: %w", err)
	}
	defer pool.Close()

	reader := geodb.NewReader(pool)
	reaches, err := reader.LoadTopology(ctx, cfg.Database.Columns)
	if err != nil {
		return fmt.Errorf("loading network topology: %w", err)
	}

	geometries, err := loadGeometries(ctx, cfg, reader, reaches, routeDir)
	if err != nil {
		return fmt.Errorf("loading channel geometry: %w", err)
	}

	lateralDir := filepath.Join(routeDir, "outputs", "ngen")
	lateralLoader := lateral.NewLoader(lateralDir, "")

	runID := time.Now().Format("200601021504")
	eng, err := engine.New(cfg, runID, routeDir, reaches, geometries, lateralLoader)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	if err := os.MkdirAll(cfg.Engine.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	outputPath := filepath.Join(cfg.Engine.OutputDir, fmt.Sprintf("route_output_%s.nc", runID))

	meta, stats, err := eng.Execute(ctx, outputPath)
	if err != nil {
		return fmt.Errorf("executing run: %w", err)
	}

	logger.Log.Info("run complete",
		"run_id", meta.RunID,
		"reach_count", meta.ReachCount,
		"reaches_completed", stats.ReachesCompleted,
		"reaches_skipped", stats.ReachesSkipped,
		"kernel_fallbacks", stats.KernelFallbacks,
		"duration", stats.Duration,
		"output", outputPath,
	)
	return nil
}

// applyFlagOverrides layers explicitly-set CLI flags on top of the loaded
// config, matching the precedence spec.md §6 describes: flags beat
// whatever the config file/environment already resolved.
func applyFlagOverrides(cfg *config.Config, internalTimestep, workers int, cacheBackend, redisAddr, metricsAddr, tracingEndpoint, reportPath string) {
	if internalTimestep > 0 {
		cfg.Engine.InternalTimestepSeconds = internalTimestep
	}
	if workers > 0 {
		cfg.Engine.Workers = workers
	}
	if cacheBackend != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Driver = cacheBackend
	}
	if redisAddr != "" {
		host, port := splitHostPort(redisAddr, 6379)
		cfg.Cache.Host = host
		cfg.Cache.Port = port
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
	if tracingEndpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = tracingEndpoint
	}
	if reportPath != "" {
		cfg.Report.Enabled = true
		cfg.Report.OutputPath = reportPath
	}
}

// splitHostPort parses a "host:port" address, falling back to defaultPort
// when the address carries none.
func splitHostPort(addr string, defaultPort int) (string, int) {
	u, err := url.Parse("//" + addr)
	if err != nil || u.Hostname() == "" {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		port = defaultPort
	}
	return u.Hostname(), port
}

func metricsPort(addr string) int {
	_, port := splitHostPort(addr, 9090)
	return port
}

// loadGeometries fetches channel geometry for every reach, consulting the
// geometry cache first when one is configured; reaches with no geometry
// anywhere are simply absent from the result and are skipped by the engine.
func loadGeometries(ctx context.Context, cfg *config.Config, reader *geodb.Reader, reaches []domain.Reach, routeDir string) (map[uint32]domain.ChannelGeometry, error) {
	ids := make([]uint32, len(reaches))
	for i, r := range reaches {
		ids[i] = r.ID
	}

	if !cfg.Cache.Enabled {
		return reader.LoadGeometry(ctx, ids, cfg.Database.Columns)
	}

	backend, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		logger.Log.Warn("failed to build geometry cache, falling back to direct database reads", "error", err)
		return reader.LoadGeometry(ctx, ids, cfg.Database.Columns)
	}
	defer backend.Close()

	geomCache := cache.NewGeometryCache(backend, cfg.Cache.DefaultTTL)

	result := make(map[uint32]domain.ChannelGeometry, len(ids))
	var misses []uint32
	for _, id := range ids {
		geom, ok, err := geomCache.Get(ctx, routeDir, id, cfg.Database.Columns)
		if err != nil {
			logger.Log.Warn("geometry cache read failed", "reach_id", id, "error", err)
		}
		if ok {
			result[id] = geom
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := reader.LoadGeometry(ctx, misses, cfg.Database.Columns)
	if err != nil {
		return nil, err
	}
	for id, geom := range fetched {
		result[id] = geom
		if err := geomCache.Set(ctx, routeDir, id, cfg.Database.Columns, geom, cfg.Cache.DefaultTTL); err != nil {
			logger.Log.Warn("geometry cache write failed", "reach_id", id, "error", err)
		}
	}

	return result, nil
}
