// Package config loads and validates the supervisor's configuration record.
//
// The record is populated from process environment variables (GWSV_ prefix)
// over the defaults; there are no command-line flag overrides. .env loading
// and service-unit packaging are external collaborators, not this package's
// concern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nehonix-edge/gatewaysupervisord/internal/gwerr"
)

// WorkerSpec is one entry parsed from the `workers` configuration key.
type WorkerSpec struct {
	Name      string
	Command   []string
	Essential bool
}

// Config is the fully resolved, validated configuration record passed into
// every component at construction. Nothing downstream reads the environment
// directly.
type Config struct {
	DeviceID   string
	LogLevel   string
	LogPretty  bool

	TelemetryEndpoint string
	FlushInterval     time.Duration
	HeartbeatInterval time.Duration

	CircuitFailureThreshold uint32
	CircuitTimeout          time.Duration

	RetryMaxAttempts int
	RetryInitialDelay time.Duration

	HealthInterval    time.Duration
	TempThreshold     float64
	CPUThreshold      float64
	MemoryThreshold   float64
	HysteresisMargin  float64
	WarnDebounce      time.Duration

	WatchdogInterval time.Duration
	MaxRestarts      int
	StabilityWindow  time.Duration

	Workers []WorkerSpec

	StateDir string
}

const envPrefix = "GWSV_"

// Default returns the configuration record populated with documented
// defaults.
func Default() *Config {
	return &Config{
		DeviceID:          "edge-001",
		LogLevel:          "INFO",
		TelemetryEndpoint: "https://localhost/telemetry",
		FlushInterval:     30 * time.Second,
		HeartbeatInterval: 60 * time.Second,

		CircuitFailureThreshold: 3,
		CircuitTimeout:          60 * time.Second,

		RetryMaxAttempts:  3,
		RetryInitialDelay: 2 * time.Second,

		HealthInterval:   10 * time.Second,
		TempThreshold:    75,
		CPUThreshold:     95,
		MemoryThreshold:  90,
		HysteresisMargin: 5,
		WarnDebounce:     60 * time.Second,

		WatchdogInterval: 5 * time.Second,
		MaxRestarts:      10,
		StabilityWindow:  60 * time.Second,

		StateDir: "/var/lib/gatewaysupervisord",
	}
}

// FromEnviron builds a Config by overlaying process environment variables
// (GWSV_ prefixed) over Default(), then validates it. A malformed value
// yields a gwerr.KindConfig error, fatal at startup.
func FromEnviron() (*Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return gwerr.Wrap("config.FromEnviron", gwerr.KindConfig, fmt.Errorf("%s: %w", key, err))
		}
		*dst = d
		return nil
	}
	flt := func(key string, dst *float64) error {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return gwerr.Wrap("config.FromEnviron", gwerr.KindConfig, fmt.Errorf("%s: %w", key, err))
		}
		*dst = f
		return nil
	}
	u32 := func(key string, dst *uint32) error {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return gwerr.Wrap("config.FromEnviron", gwerr.KindConfig, fmt.Errorf("%s: %w", key, err))
		}
		*dst = uint32(n)
		return nil
	}
	i := func(key string, dst *int) error {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return gwerr.Wrap("config.FromEnviron", gwerr.KindConfig, fmt.Errorf("%s: %w", key, err))
		}
		*dst = n
		return nil
	}

	str("DEVICE_ID", &cfg.DeviceID)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("TELEMETRY_ENDPOINT", &cfg.TelemetryEndpoint)
	str("STATE_DIR", &cfg.StateDir)

	for _, step := range []func() error{
		func() error { return dur("FLUSH_INTERVAL", &cfg.FlushInterval) },
		func() error { return dur("HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval) },
		func() error { return dur("CIRCUIT_TIMEOUT", &cfg.CircuitTimeout) },
		func() error { return dur("RETRY_INITIAL_DELAY", &cfg.RetryInitialDelay) },
		func() error { return dur("HEALTH_INTERVAL", &cfg.HealthInterval) },
		func() error { return dur("WARN_DEBOUNCE", &cfg.WarnDebounce) },
		func() error { return dur("WATCHDOG_INTERVAL", &cfg.WatchdogInterval) },
		func() error { return dur("STABILITY_WINDOW", &cfg.StabilityWindow) },
		func() error { return flt("TEMP_THRESHOLD", &cfg.TempThreshold) },
		func() error { return flt("CPU_THRESHOLD", &cfg.CPUThreshold) },
		func() error { return flt("MEMORY_THRESHOLD", &cfg.MemoryThreshold) },
		func() error { return u32("CIRCUIT_FAILURE_THRESHOLD", &cfg.CircuitFailureThreshold) },
		func() error { return i("RETRY_MAX_ATTEMPTS", &cfg.RetryMaxAttempts) },
		func() error { return i("MAX_RESTARTS", &cfg.MaxRestarts) },
	} {
		if err := step(); err != nil {
			return nil, err
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "WORKERS"); ok && v != "" {
		workers, err := ParseWorkers(v)
		if err != nil {
			return nil, err
		}
		cfg.Workers = workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that ParseWorkers and the duration/float
// parsers above can't catch on their own (cross-field and range checks).
func (c *Config) Validate() error {
	const op = "config.Validate"
	if c.TelemetryEndpoint == "" {
		return gwerr.New(op, gwerr.KindConfig)
	}
	if c.MaxRestarts < 0 {
		return gwerr.Wrap(op, gwerr.KindConfig, fmt.Errorf("max_restarts must be >= 0, got %d", c.MaxRestarts))
	}
	if c.RetryMaxAttempts < 1 {
		return gwerr.Wrap(op, gwerr.KindConfig, fmt.Errorf("retry_max_attempts must be >= 1, got %d", c.RetryMaxAttempts))
	}
	if c.HysteresisMargin < 0 {
		return gwerr.Wrap(op, gwerr.KindConfig, fmt.Errorf("hysteresis margin must be >= 0"))
	}
	seen := make(map[string]struct{}, len(c.Workers))
	for _, w := range c.Workers {
		if _, dup := seen[w.Name]; dup {
			return gwerr.Wrap(op, gwerr.KindConfig, fmt.Errorf("duplicate worker name %q", w.Name))
		}
		seen[w.Name] = struct{}{}
	}
	return nil
}

// ParseWorkers parses the `workers` configuration grammar:
//
//	WORKERS := ENTRY ("," ENTRY)*
//	ENTRY   := NAME ":" COMMAND ":" BOOL
//	BOOL    ∈ {true,false}
//
// COMMAND is split on whitespace into argv; it may not itself contain a
// literal comma since that is the entry separator.
func ParseWorkers(spec string) ([]WorkerSpec, error) {
	const op = "config.ParseWorkers"
	var out []WorkerSpec
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, gwerr.Wrap(op, gwerr.KindConfig, fmt.Errorf("malformed worker entry %q", entry))
		}
		name := strings.TrimSpace(parts[0])
		command := strings.Fields(strings.TrimSpace(parts[1]))
		boolStr := strings.TrimSpace(parts[2])

		if name == "" {
			return nil, gwerr.Wrap(op, gwerr.KindConfig, fmt.Errorf("worker entry %q: empty name", entry))
		}
		if len(command) == 0 {
			return nil, gwerr.Wrap(op, gwerr.KindConfig, fmt.Errorf("worker entry %q: empty command", entry))
		}
		var essential bool
		switch boolStr {
		case "true":
			essential = true
		case "false":
			essential = false
		default:
			return nil, gwerr.Wrap(op, gwerr.KindConfig, fmt.Errorf("worker entry %q: essential must be true/false, got %q", entry, boolStr))
		}

		out = append(out, WorkerSpec{Name: name, Command: command, Essential: essential})
	}
	return out, nil
}
