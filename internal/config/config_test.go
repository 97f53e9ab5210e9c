package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `{
  "server": {"port": 9090, "log_level": "info"},
  "model": {"endpoint": "${SMALLVILLE_TEST_ENDPOINT:http://fallback:11434}", "name": "test-model", "timeout_s": 30},
  "embedding": {"model": "test-embed", "dimension": 128},
  "database": {"postgres": {"dsn": "${SMALLVILLE_TEST_DSN:}"}},
  "simulation": {"population": 8, "total_ticks": 4, "tick_interval_s": 0.5, "max_concurrency": 4, "retrieval_top_k": 5},
  "perception": {"glance_interval_ticks": 5, "change_threshold": 0.1, "view_radius": 3}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("got port %d, want 9090", cfg.Server.Port)
	}
	if cfg.Simulation.Population != 8 {
		t.Errorf("got population %d, want 8", cfg.Simulation.Population)
	}
	if got := cfg.Simulation.TickInterval(); got != 500*time.Millisecond {
		t.Errorf("got tick interval %v, want 500ms", got)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	// Unset: the inline default applies.
	os.Unsetenv("SMALLVILLE_TEST_ENDPOINT")
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Endpoint != "http://fallback:11434" {
		t.Errorf("got endpoint %q, want inline default", cfg.Model.Endpoint)
	}
	if cfg.Database.Postgres.DSN != "" {
		t.Errorf("got dsn %q, want empty default", cfg.Database.Postgres.DSN)
	}

	// Set: the environment wins.
	t.Setenv("SMALLVILLE_TEST_ENDPOINT", "http://real:11434")
	cfg, err = Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if cfg.Model.Endpoint != "http://real:11434" {
		t.Errorf("got endpoint %q, want env value", cfg.Model.Endpoint)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("missing config accepted")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	if _, err := Load(writeConfig(t, "{not json")); err == nil {
		t.Error("invalid JSON accepted")
	}
}
