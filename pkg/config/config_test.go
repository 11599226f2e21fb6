package config

import (
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				App:    AppConfig{Name: "router"},
				Log:    LogConfig{Level: "info"},
				Engine: EngineConfig{InternalTimestepSeconds: 300, ExternalTimestepSeconds: 3600},
			},
			wantErr: false,
		},
		{
			name: "missing app name",
			cfg: Config{
				Log:    LogConfig{Level: "info"},
				Engine: EngineConfig{InternalTimestepSeconds: 300, ExternalTimestepSeconds: 3600},
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: Config{
				App:    AppConfig{Name: "router"},
				Log:    LogConfig{Level: "invalid"},
				Engine: EngineConfig{InternalTimestepSeconds: 300, ExternalTimestepSeconds: 3600},
			},
			wantErr: true,
		},
		{
			name: "valid debug level",
			cfg: Config{
				App:    AppConfig{Name: "router"},
				Log:    LogConfig{Level: "debug"},
				Engine: EngineConfig{InternalTimestepSeconds: 300, ExternalTimestepSeconds: 3600},
			},
			wantErr: false,
		},
		{
			name: "negative workers",
			cfg: Config{
				App:    AppConfig{Name: "router"},
				Log:    LogConfig{Level: "info"},
				Engine: EngineConfig{Workers: -1, InternalTimestepSeconds: 300, ExternalTimestepSeconds: 3600},
			},
			wantErr: true,
		},
		{
			name: "zero internal timestep",
			cfg: Config{
				App:    AppConfig{Name: "router"},
				Log:    LogConfig{Level: "info"},
				Engine: EngineConfig{InternalTimestepSeconds: 0, ExternalTimestepSeconds: 3600},
			},
			wantErr: true,
		},
		{
			name: "external timestep not a multiple of internal",
			cfg: Config{
				App:    AppConfig{Name: "router"},
				Log:    LogConfig{Level: "info"},
				Engine: EngineConfig{InternalTimestepSeconds: 300, ExternalTimestepSeconds: 1000},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"dev", true},
		{"production", false},
		{"staging", false},
	}

	for _, tt := range tests {
		cfg := &Config{App: AppConfig{Environment: tt.env}}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment() for %s = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		cfg    DatabaseConfig
		expect string
	}{
		{
			name: "postgres",
			cfg: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				Database: "nwm_routing",
				Username: "user",
				Password: "pass",
				SSLMode:  "disable",
			},
			expect: "host=localhost port=5432 user=user password=pass dbname=nwm_routing sslmode=disable",
		},
		{
			name: "unknown driver",
			cfg: DatabaseConfig{
				Driver: "oracle",
			},
			expect: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.cfg.DSN()
			if dsn != tt.expect {
				t.Errorf("expected DSN %s, got %s", tt.expect, dsn)
			}
		})
	}
}

func TestCacheConfig_Address(t *testing.T) {
	cfg := CacheConfig{
		Host: "redis.local",
		Port: 6379,
	}

	addr := cfg.Address()
	if addr != "redis.local:6379" {
		t.Errorf("expected 'redis.local:6379', got %s", addr)
	}
}

func TestDefaultColumnConfig(t *testing.T) {
	cc := DefaultColumnConfig()
	if cc.Key != "id" || cc.Downstream != "toid" || cc.Length != "Length_m" {
		t.Errorf("unexpected default column mapping: %+v", cc)
	}
}
