// Package config loads the selftest configuration from YAML or TOML files,
// applies defaults and environment overrides, and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/transition"
)

// Environment overrides, applied after the file and before validation.
const (
	EnvLogLevel  = "SELFTEST_LOG_LEVEL"
	EnvStorePath = "SELFTEST_DB"
)

// Console color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config is the complete selftest configuration.
type Config struct {
	Transition transition.Config `yaml:"transition" toml:"transition"`
	Log        Log               `yaml:"log" toml:"log"`
	Store      Store             `yaml:"store" toml:"store"`
	Console    Console           `yaml:"console" toml:"console"`
	Simulator  Simulator         `yaml:"simulator" toml:"simulator"`
}

// Log configures the diagnostic logger.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" toml:"level"`
}

// Store configures the run journal.
type Store struct {
	// Path of the SQLite journal. Empty disables journaling.
	Path string `yaml:"path" toml:"path"`
}

// Console configures the operator console.
type Console struct {
	Color      string `yaml:"color" toml:"color"`
	WaitForKey bool   `yaml:"wait_for_key" toml:"wait_for_key"`
}

// Simulator configures the simulated firmware the CLI runs against.
type Simulator struct {
	MemoryPages  uint64 `yaml:"memory_pages" toml:"memory_pages"`
	StaleCommits int    `yaml:"stale_commits" toml:"stale_commits"`
	// Time pins the real time clock (RFC 3339). Empty uses the host clock.
	Time string `yaml:"time" toml:"time"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transition: transition.DefaultConfig(),
		Log:        Log{Level: "info"},
		Console:    Console{Color: ColorAuto},
		Simulator:  Simulator{MemoryPages: firmware.DefaultSimPages},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates. The format follows the file extension.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			err = decodeYAML(data, &cfg)
		case ".toml":
			err = decodeTOML(data, &cfg)
		default:
			err = fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
		}
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorePath)); v != "" {
		cfg.Store.Path = v
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Transition.Validate(); err != nil {
		return fmt.Errorf("transition: %w", err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch c.Console.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("console: color must be auto, always or never, got %q", c.Console.Color)
	}
	if c.Simulator.MemoryPages == 0 {
		return errors.New("simulator: memory_pages must be positive")
	}
	if c.Simulator.StaleCommits < 0 {
		return fmt.Errorf("simulator: stale_commits must not be negative, got %d", c.Simulator.StaleCommits)
	}
	if _, _, err := c.Simulator.FixedTime(); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	return nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", name)
	}
}

// FixedTime returns the pinned simulator time, if one is set.
func (s Simulator) FixedTime() (time.Time, bool, error) {
	if s.Time == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, s.Time)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("time: %w", err)
	}
	return t, true, nil
}

// Snapshot flattens the settings that affect a run's outcome for the
// journal.
func (c Config) Snapshot() map[string]any {
	m := map[string]any{
		"max_attempts":      c.Transition.MaxAttempts,
		"descriptor_margin": c.Transition.DescriptorMargin,
		"max_resizes":       c.Transition.MaxResizes,
		"memory_pages":      c.Simulator.MemoryPages,
		"stale_commits":     c.Simulator.StaleCommits,
	}
	if c.Simulator.Time != "" {
		m["time"] = c.Simulator.Time
	}
	return m
}
