package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink backends
const (
	BackendNone   = "none"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendInflux = "influx"
)

// Config represents the application configuration
type Config struct {
	Planner PlannerConfig `yaml:"planner"`
	Loop    LoopConfig    `yaml:"loop"`
	Sink    SinkConfig    `yaml:"sink"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// PlannerConfig holds search caps
type PlannerConfig struct {
	MaxCost       float64 `yaml:"max_cost"`
	MaxIterations int     `yaml:"max_iterations"`
}

// LoopConfig holds execution loop cadence
type LoopConfig struct {
	MaxCycles      int           `yaml:"max_cycles"`
	CycleDelay     time.Duration `yaml:"cycle_delay"`
	StepTimeout    time.Duration `yaml:"step_timeout"` // reasoning and combined steps only
	ReasoningRetry RetryConfig   `yaml:"reasoning_retry"`
}

// RetryConfig holds retry behavior settings
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// SinkConfig selects the external event store
type SinkConfig struct {
	Backend   string        `yaml:"backend"` // none, badger, redis, influx
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`
	Badger    BadgerConfig  `yaml:"badger"`
	Redis     RedisConfig   `yaml:"redis"`
	Influx    InfluxConfig  `yaml:"influx"`
}

// BadgerConfig holds embedded store settings
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"` // supports ${ENV_VAR} interpolation
	DB       int    `yaml:"db"`
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"` // supports ${ENV_VAR} interpolation
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Planner: PlannerConfig{
			MaxCost:       1000,
			MaxIterations: 1000,
		},
		Loop: LoopConfig{
			MaxCycles:   100,
			CycleDelay:  10 * time.Millisecond,
			StepTimeout: 2 * time.Minute,
			ReasoningRetry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 500 * time.Millisecond,
			},
		},
		Sink: SinkConfig{
			Backend:   BackendNone,
			Namespace: "goap",
			TTL:       24 * time.Hour,
			Badger: BadgerConfig{
				Dir: "./data/goap",
			},
			Redis: RedisConfig{
				Address: "localhost:6379",
			},
			Influx: InfluxConfig{
				URL:    "http://localhost:8086",
				Bucket: "goap",
			},
		},
		Metrics: MetricsConfig{
			Enabled:     false,
			Pushgateway: "http://localhost:9091",
			Job:         "goap",
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if file doesn't exist
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ExampleConfig returns a commented example config
func ExampleConfig() string {
	return `# GOAP Configuration File
# Priority: CLI flags > environment variables > config file > defaults

planner:
  # Candidate plans whose accumulated cost exceeds this are pruned
  max_cost: 1000

  # Maximum number of search nodes expanded per plan
  max_iterations: 1000

loop:
  # Maximum OODA cycles before a run is stopped
  max_cycles: 100

  # Pause between cycles
  cycle_delay: 10ms

  # Timeout for reasoning and combined steps
  step_timeout: 2m

  reasoning_retry:
    # Attempts per reasoning step (1 disables retries)
    max_attempts: 3
    initial_delay: 500ms

sink:
  # Event store: none, badger, redis, influx
  backend: none
  namespace: goap

  # How long stored events are kept (badger and redis)
  ttl: 24h

  badger:
    dir: ./data/goap
    in_memory: false

  redis:
    address: localhost:6379
    password: ${REDIS_PASSWORD}
    db: 0

  influx:
    url: http://localhost:8086
    token: ${INFLUX_TOKEN}
    org: ""
    bucket: goap

metrics:
  # Push run metrics to a Prometheus Pushgateway
  enabled: false
  pushgateway: http://localhost:9091
  job: goap
`
}
