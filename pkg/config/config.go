// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration for the router engine.
type Config struct {
	App     AppConfig     `koanf:"app"`
	Log     LogConfig     `koanf:"log"`
	Engine  EngineConfig  `koanf:"engine"`
	Database DatabaseConfig `koanf:"database"`
	Cache   CacheConfig   `koanf:"cache"`
	Metrics MetricsConfig `koanf:"metrics"`
	Tracing TracingConfig `koanf:"tracing"`
	Audit   AuditConfig   `koanf:"audit"`
	Report  ReportConfig  `koanf:"report"`
}

// AppConfig holds general application identity.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"` // days
	Compress   bool   `koanf:"compress"`
}

// EngineConfig configures the routing engine itself.
type EngineConfig struct {
	Workers                 int           `koanf:"workers"`                   // worker pool size, 0 = runtime.NumCPU()
	InternalTimestepSeconds int           `koanf:"internal_timestep_seconds"` // dt of the kinematic kernel
	ExternalTimestepSeconds int           `koanf:"external_timestep_seconds"` // cadence of lateral-inflow samples
	WriterQueueDepth        int           `koanf:"writer_queue_depth"`        // bound on worker->writer channel
	KernelMaxIterations     int           `koanf:"kernel_max_iterations"`
	KernelMinDepth          float64       `koanf:"kernel_min_depth"`
	SlopeFloor              float64       `koanf:"slope_floor"` // s0 is clamped to at least this value
	OutputDir               string        `koanf:"output_dir"`
	ShutdownGrace           time.Duration `koanf:"shutdown_grace"`
}

// DatabaseConfig configures the connection to the geospatial network database.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	Columns         ColumnConfig  `koanf:"columns"`
}

// ColumnConfig maps logical channel-geometry fields onto database column
// names, per spec.md §6's column-mapping config.
type ColumnConfig struct {
	Key         string `koanf:"key"`
	Downstream  string `koanf:"downstream"`
	Length      string `koanf:"length"`
	Manning     string `koanf:"manning"`
	ManningCC   string `koanf:"manning_cc"`
	Slope       string `koanf:"slope"`
	BottomWidth string `koanf:"bottom_width"`
	TopWidth    string `koanf:"top_width"`
	TopWidthCC  string `koanf:"top_width_cc"`
	SideSlope   string `koanf:"side_slope"`
}

// DefaultColumnConfig mirrors the defaults named in spec.md §6.
func DefaultColumnConfig() ColumnConfig {
	return ColumnConfig{
		Key:         "id",
		Downstream:  "toid",
		Length:      "Length_m",
		Manning:     "n",
		ManningCC:   "nCC",
		Slope:       "So",
		BottomWidth: "BtmWdth",
		TopWidth:    "TopWdth",
		TopWidthCC:  "TopWdthCC",
		SideSlope:   "ChSlp",
	}
}

// DSN returns the driver-appropriate connection string.
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql", "":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	default:
		return ""
	}
}

// CacheConfig configures the optional channel-geometry cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// Address returns the cache backend's network address.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsConfig configures the optional Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Addr      string `koanf:"addr"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures the optional OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// AuditConfig configures run-level audit logging.
type AuditConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Backend     string        `koanf:"backend"` // stdout, file
	FilePath    string        `koanf:"file_path"`
	BufferSize  int           `koanf:"buffer_size"`
	FlushPeriod time.Duration `koanf:"flush_period"`
}

// ReportConfig configures the optional post-run Excel summary.
type ReportConfig struct {
	Enabled         bool   `koanf:"enabled"`
	OutputPath      string `koanf:"output_path"`
	MaxPeaksInSheet int    `koanf:"max_peaks_in_sheet"`
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Engine.Workers < 0 {
		errs = append(errs, "engine.workers must be non-negative")
	}
	if c.Engine.InternalTimestepSeconds <= 0 {
		errs = append(errs, "engine.internal_timestep_seconds must be positive")
	}
	if c.Engine.ExternalTimestepSeconds <= 0 {
		errs = append(errs, "engine.external_timestep_seconds must be positive")
	}
	if c.Engine.ExternalTimestepSeconds%c.Engine.InternalTimestepSeconds != 0 && c.Engine.InternalTimestepSeconds > 0 {
		errs = append(errs, "engine.external_timestep_seconds must be an integer multiple of engine.internal_timestep_seconds")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the environment is a development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}
