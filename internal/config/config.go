package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TelemetryConfig holds the OpenTelemetry export settings for the shell.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// AttachConfig bounds the control UI load retry policy. The defaults track
// the expected startup latency of the gateway child, not network congestion,
// which is why the interval is fixed rather than exponential.
type AttachConfig struct {
	MaxRetries int `yaml:"max_retries"`
	IntervalMs int `yaml:"interval_ms"`
}

// Config is the shell's own configuration, persisted as config.yaml in the
// state directory. The gateway's bind/port/auth settings live in the separate
// clawshell.json document (see gateway.go); this file only configures how the
// shell itself behaves.
type Config struct {
	StateDir string `yaml:"-"`

	// GatewayPath is the gateway executable to spawn. Resolved on PATH
	// when not absolute.
	GatewayPath string `yaml:"gateway_path"`

	LogLevel string `yaml:"log_level"`

	// Surface selects the control UI loading primitive: "browser" opens the
	// system browser after a successful loopback probe, "probe" only verifies
	// the UI answers, "none" skips attachment entirely.
	Surface string `yaml:"surface"`

	Attach    AttachConfig    `yaml:"attach"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Fingerprint returns a stable hash of the active shell config.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "gateway=%s|log=%s|surface=%s|retries=%d|interval=%d",
		c.GatewayPath, c.LogLevel, c.Surface, c.Attach.MaxRetries, c.Attach.IntervalMs)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

// AttachInterval returns the retry interval as a duration.
func (c Config) AttachInterval() time.Duration {
	return time.Duration(c.Attach.IntervalMs) * time.Millisecond
}

func defaultConfig() Config {
	return Config{
		GatewayPath: "goclaw",
		LogLevel:    "info",
		Surface:     "browser",
		Attach: AttachConfig{
			MaxRetries: 20,
			IntervalMs: 500,
		},
	}
}

// StateDir resolves the per-user state directory. CLAWSHELL_HOME overrides;
// otherwise the platform application data dir is used, falling back to
// ~/.clawshell when the platform dir cannot be determined.
func StateDir() string {
	if override := os.Getenv("CLAWSHELL_HOME"); override != "" {
		return override
	}
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "clawshell")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".clawshell")
}

// Load reads config.yaml from the state directory, applying defaults and
// CLAWSHELL_* env overrides. A missing file is not an error; first run
// proceeds on defaults and EnsureGateway writes the gateway document.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.StateDir = StateDir()

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create state dir: %w", err)
	}

	configPath := filepath.Join(cfg.StateDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.GatewayPath) == "" {
		cfg.GatewayPath = "goclaw"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.Surface {
	case "browser", "probe", "none":
	default:
		cfg.Surface = "browser"
	}
	if cfg.Attach.MaxRetries <= 0 {
		cfg.Attach.MaxRetries = 20
	}
	if cfg.Attach.IntervalMs <= 0 {
		cfg.Attach.IntervalMs = 500
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("CLAWSHELL_GATEWAY_PATH"); raw != "" {
		cfg.GatewayPath = raw
	}
	if raw := os.Getenv("CLAWSHELL_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("CLAWSHELL_SURFACE"); raw != "" {
		cfg.Surface = raw
	}
	if raw := os.Getenv("CLAWSHELL_ATTACH_MAX_RETRIES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Attach.MaxRetries = v
		}
	}
	if raw := os.Getenv("CLAWSHELL_ATTACH_INTERVAL_MS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Attach.IntervalMs = v
		}
	}
}
