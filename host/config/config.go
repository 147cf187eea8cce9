// Package config loads the host-side simulator and monitor settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"ticktoucan/core"
	"ticktoucan/host/serial"
)

// Config is the root of a ticktoucan YAML file.
type Config struct {
	TickPeriodMs uint32  `yaml:"tick_period_ms"`
	TimeScale    float64 `yaml:"time_scale"`

	// PollInterval is how long the simulated main loop sleeps when
	// Dispatch finds nothing to run.
	PollInterval time.Duration `yaml:"poll_interval"`

	Log       LogConfig     `yaml:"log"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Telemetry serial.Config `yaml:"telemetry"`
	Tasks     []TaskConfig  `yaml:"tasks"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the HTTP endpoint
}

// TaskConfig describes one simulated task. Exactly one of AtMs, AfterMs
// and EveryMs must be set.
type TaskConfig struct {
	Name     string  `yaml:"name"`
	AtMs     *uint32 `yaml:"at_ms"`
	AfterMs  *uint32 `yaml:"after_ms"`
	EveryMs  *uint32 `yaml:"every_ms"`
	OffsetMs uint32  `yaml:"offset_ms"`
	MaxRuns  uint32  `yaml:"max_runs"` // periodic only, 0 = unlimited
	Panic    bool    `yaml:"panic"`    // exercise main-loop panic recovery
}

// TaskKind says which scheduling call a task maps to.
type TaskKind int

const (
	TaskAt TaskKind = iota + 1
	TaskAfter
	TaskEvery
)

// Kind returns the task's scheduling kind, or 0 when the task sets zero
// or several timing fields.
func (t TaskConfig) Kind() TaskKind {
	var kind TaskKind
	n := 0
	if t.AtMs != nil {
		kind = TaskAt
		n++
	}
	if t.AfterMs != nil {
		kind = TaskAfter
		n++
	}
	if t.EveryMs != nil {
		kind = TaskEvery
		n++
	}
	if n != 1 {
		return 0
	}
	return kind
}

// Default returns a configuration that runs a single heartbeat task.
func Default() *Config {
	every := uint32(500)
	return &Config{
		TickPeriodMs: 10,
		TimeScale:    1,
		PollInterval: time.Millisecond,
		Log:          LogConfig{Level: "info", Format: "console"},
		Telemetry:    serial.Config{Baud: 115200, ReadTimeoutMs: 100},
		Tasks: []TaskConfig{
			{Name: "heartbeat", EveryMs: &every},
		},
	}
}

// Load reads and validates the file at path. An empty path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected. A file that lists tasks replaces the default task.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Tasks = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the scheduler would otherwise reject at
// run time.
func (c *Config) Validate() error {
	if c.TickPeriodMs == 0 {
		return fmt.Errorf("tick_period_ms: %w", core.ErrInvalidPeriod)
	}
	if c.TimeScale <= 0 {
		return fmt.Errorf("time_scale must be positive, got %v", c.TimeScale)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if len(c.Tasks) > core.MaxTasks {
		return fmt.Errorf("tasks: %d configured, table holds %d", len(c.Tasks), core.MaxTasks)
	}

	seen := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		if t.Name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tasks[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = true

		switch t.Kind() {
		case TaskAt, TaskAfter:
			if t.MaxRuns != 0 || t.OffsetMs != 0 {
				return fmt.Errorf("task %q: offset_ms and max_runs apply to every_ms tasks only", t.Name)
			}
		case TaskEvery:
		default:
			return fmt.Errorf("task %q: set exactly one of at_ms, after_ms, every_ms", t.Name)
		}
	}
	return nil
}
