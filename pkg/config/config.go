// Package config loads the task commander's runtime configuration from a
// YAML file, with environment variable overrides following the
// TASKCOMMANDER_-prefixed convention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide immutable configuration resolved once at
// startup.
type Config struct {
	// TickInterval defaults to 1s and must be positive. The Commander
	// does not read it: its loop always ticks at commander.TickInterval.
	TickInterval time.Duration `yaml:"tick_interval"`

	// WorkDir is the Commander's working directory; recipe and scratch
	// directories are resolved under tmp/ beneath it. It must also be the
	// root of a taskcommander source checkout, since the Image Builder
	// compiles cmd/launcher from it for every containerised image.
	WorkDir string `yaml:"work_dir"`

	// OutDir is the shared artefact directory tasks write into.
	OutDir string `yaml:"out_dir"`

	// ForceRebuild disables the image-cache short-circuit.
	ForceRebuild bool `yaml:"force_rebuild"`

	// DockerHost overrides the engine connection address; empty means
	// use the environment (DOCKER_HOST or the default socket).
	DockerHost string `yaml:"docker_host"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "console"

	MetricsAddr string `yaml:"metrics_addr"`
	StatePath   string `yaml:"state_path"`

	// Tasks lists the registry keys to schedule, in declaration order,
	// each with its own static parameter overrides.
	Tasks []TaskDeclaration `yaml:"tasks"`
}

// TaskDeclaration binds a registry key to the static parameters passed to
// every dispatch of that task, and to the execution mode the Commander
// dispatches it under.
type TaskDeclaration struct {
	Key    string         `yaml:"key"`
	Params map[string]any `yaml:"params"`

	// Containerized selects the containerised dispatch path. When false,
	// the task runs synchronously on the scheduler thread via the
	// Containerless Launcher.
	Containerized bool `yaml:"containerized"`
}

// Default returns a Config with the system's baseline defaults applied.
func Default() Config {
	return Config{
		TickInterval: time.Second,
		WorkDir:      ".",
		OutDir:       "out",
		ForceRebuild: false,
		LogLevel:     "info",
		LogFormat:    "console",
		MetricsAddr:  ":9090",
		StatePath:    "tmp/state.db",
	}
}

// Load reads a YAML config file at path, applies it over Default(), then
// applies environment variable overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TASKCOMMANDER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TASKCOMMANDER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("TASKCOMMANDER_DOCKER_HOST"); v != "" {
		cfg.DockerHost = v
	}
	if v := os.Getenv("TASKCOMMANDER_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("TASKCOMMANDER_FORCE_REBUILD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ForceRebuild = b
		}
	}
	if v := os.Getenv("TASKCOMMANDER_OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
}

// Validate checks invariants Load's caller relies on.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: tick_interval must be positive")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("config: work_dir must be set")
	}
	if c.OutDir == "" {
		return fmt.Errorf("config: out_dir must be set")
	}
	seen := make(map[string]bool, len(c.Tasks))
	for _, decl := range c.Tasks {
		if decl.Key == "" {
			return fmt.Errorf("config: task declaration missing key")
		}
		if seen[decl.Key] {
			return fmt.Errorf("config: duplicate task key %q", decl.Key)
		}
		seen[decl.Key] = true
	}
	return nil
}
