package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/llevacuentas/datastore/pkg/stores"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "datastore.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database != "storage" || cfg.Table != "storage_table" {
		t.Errorf("expected default store, got %s/%s", cfg.Database, cfg.Table)
	}
	if cfg.Mode != stores.ModeNoEncryption {
		t.Errorf("expected no-encryption, got %s", cfg.Mode)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
platform: ios
engine: bolt
data_dir: `+dir+`
database: cuentas
table: gastos
sqlite:
  busy_timeout: 2s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Platform != PlatformIOS {
		t.Errorf("expected ios, got %s", cfg.Platform)
	}
	if cfg.EngineName() != stores.DriverBolt {
		t.Errorf("expected bolt, got %s", cfg.EngineName())
	}
	if cfg.Database != "cuentas" || cfg.Table != "gastos" {
		t.Errorf("unexpected store %s/%s", cfg.Database, cfg.Table)
	}
	if cfg.SQLite.BusyTimeout != 2*time.Second {
		t.Errorf("expected 2s busy timeout, got %v", cfg.SQLite.BusyTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging %+v", cfg.Logging)
	}
	// Unset values keep their defaults.
	if cfg.Logging.Output != "stderr" {
		t.Errorf("expected stderr output, got %s", cfg.Logging.Output)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "platform: android\ndatabase: fromfile\n")

	t.Setenv("DATASTORE_DATABASE", "fromenv")
	t.Setenv("DATASTORE_PLATFORM", "web")
	t.Setenv("DATASTORE_LOG_LEVEL", "warn")
	t.Setenv("DATASTORE_METRICS_ENABLED", "true")
	t.Setenv("DATASTORE_SQLITE_CONN_MAX_LIFETIME", "1m")
	t.Setenv("DATASTORE_EVENTS_LOG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database != "fromenv" {
		t.Errorf("expected fromenv, got %s", cfg.Database)
	}
	if !cfg.IsWeb() || cfg.EngineName() != stores.DriverMemory {
		t.Errorf("expected web/memory, got %s/%s", cfg.Platform, cfg.EngineName())
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics enabled")
	}
	if cfg.SQLite.ConnMaxLifetime != time.Minute {
		t.Errorf("expected 1m, got %v", cfg.SQLite.ConnMaxLifetime)
	}
	if !cfg.Events.Log {
		t.Error("expected event logging enabled")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "bad yaml",
			content: "platform: [",
			wantErr: "failed to parse config file",
		},
		{
			name:    "unknown platform",
			content: "platform: desktop\n",
			wantErr: "Platform",
		},
		{
			name:    "unknown engine",
			content: "engine: postgres\n",
			wantErr: "Engine",
		},
		{
			name:    "bad mode",
			content: "mode: rot13\n",
			wantErr: "Mode",
		},
		{
			name:    "encrypted without secret",
			content: "encrypted: true\nmode: secret\n",
			wantErr: "Secret",
		},
		{
			name:    "newsecret without new secret",
			content: "encrypted: true\nmode: newsecret\nsecret: old\n",
			wantErr: "NewSecret",
		},
		{
			name:    "otlp without endpoint",
			content: "tracing:\n  enabled: true\n  exporter: otlp\n",
			wantErr: "Endpoint",
		},
		{
			name:    "bad event level",
			content: "events:\n  min_level: debug\n",
			wantErr: "MinLevel",
		},
		{
			name:    "bad env value",
			content: "platform: android\n",
			env:     map[string]string{"DATASTORE_ENCRYPTED": "maybe"},
			wantErr: "failed to parse environment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, t.TempDir(), tt.content)

			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfig_Mappings(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	cfg.Encrypted = true
	cfg.Mode = stores.ModeSecret
	cfg.Secret = "s3cret"
	cfg.Metrics.Enabled = true
	cfg.Logging.Level = "debug"
	cfg.Events.MinLevel = "warning"
	cfg.Events.Log = true

	opts := cfg.StoreOptions()
	if opts.Database != "storage" || !opts.Encrypted || opts.Mode != stores.ModeSecret {
		t.Errorf("unexpected store options %+v", opts)
	}

	dc := cfg.DriverConfig()
	if dc.Dir != "/data" || dc.Secret != "s3cret" {
		t.Errorf("unexpected driver config %+v", dc)
	}

	tc := cfg.Telemetry("1.2.3")
	if err := tc.Validate(); err != nil {
		t.Fatalf("telemetry config should be valid: %v", err)
	}
	if tc.ServiceVersion != "1.2.3" || tc.Logging.Level != "debug" || !tc.Metrics.Enabled {
		t.Errorf("unexpected telemetry config %+v", tc)
	}
	if !tc.Events.Enabled || tc.Events.MinLevel != "warning" || !tc.Events.Log {
		t.Errorf("unexpected events config %+v", tc.Events)
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(path, zerolog.Nop())
	w.SetDelay(10 * time.Millisecond)

	reloaded := make(chan *Config, 4)
	if err := w.Watch(ctx, func(cfg *Config) { reloaded <- cfg }); err != nil {
		t.Fatalf("failed to watch: %v", err)
	}

	// An unrelated file in the same directory is ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "logging:\n  level: debug\n")

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug, got %s", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
