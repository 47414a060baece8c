package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Empty path returns defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
			t.Errorf("Config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Planner.MaxIterations != 1000 {
			t.Errorf("Expected default max iterations, got %d", cfg.Planner.MaxIterations)
		}
	})

	t.Run("Overrides and env expansion", func(t *testing.T) {
		t.Setenv("GOAP_TEST_REDIS_PASSWORD", "s3cret")
		path := filepath.Join(t.TempDir(), "goap.yaml")
		content := `
planner:
  max_iterations: 50
loop:
  cycle_delay: 50ms
  reasoning_retry:
    max_attempts: 5
sink:
  backend: redis
  redis:
    password: ${GOAP_TEST_REDIS_PASSWORD}
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Planner.MaxIterations != 50 {
			t.Errorf("Expected 50, got %d", cfg.Planner.MaxIterations)
		}
		if cfg.Planner.MaxCost != 1000 {
			t.Errorf("Unset keys should keep defaults, got max cost %f", cfg.Planner.MaxCost)
		}
		if cfg.Loop.CycleDelay != 50*time.Millisecond {
			t.Errorf("Expected 50ms, got %s", cfg.Loop.CycleDelay)
		}
		if cfg.Loop.ReasoningRetry.MaxAttempts != 5 {
			t.Errorf("Expected 5 attempts, got %d", cfg.Loop.ReasoningRetry.MaxAttempts)
		}
		if cfg.Sink.Backend != BackendRedis || cfg.Sink.Redis.Password != "s3cret" {
			t.Errorf("Unexpected sink config %+v", cfg.Sink)
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("planner: [unclosed"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("Expected parse error")
		}
	})
}

func TestSaveConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sink.Backend = BackendBadger
	cfg.Loop.StepTimeout = 90 * time.Second

	path := filepath.Join(t.TempDir(), "nested", "goap.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestExampleConfig(t *testing.T) {
	// The example must parse and describe the defaults, apart from the
	// interpolated secrets.
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("INFLUX_TOKEN", "")

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(ExampleConfig())), cfg); err != nil {
		t.Fatalf("Example config does not parse: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("Example config differs from defaults (-want +got):\n%s", diff)
	}
}
