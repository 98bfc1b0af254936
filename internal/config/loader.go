package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies BAJA_* environment
// overrides, fills defaults, and validates the result. A missing file is not
// an error — the defaults plus environment make a complete configuration.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := &Config{}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if cfg, err = parse(f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Fall through to env + defaults.
	default:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := parse(r)
	if err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil // empty file
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Pool.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("pool.max_bytes must not be negative, got %d", cfg.Pool.MaxBytes))
	}
	if cfg.Reader.SocketSkipBytes > cfg.Reader.HighWaterBytes {
		errs = append(errs, fmt.Errorf("reader.socket_skip_bytes (%d) must not exceed reader.high_water_bytes (%d)",
			cfg.Reader.SocketSkipBytes, cfg.Reader.HighWaterBytes))
	}
	switch cfg.Player.TapeCurve {
	case "", "linear", "exponential", "sinusoidal":
	default:
		errs = append(errs, fmt.Errorf("player.tape_curve %q is invalid; valid values: linear, exponential, sinusoidal", cfg.Player.TapeCurve))
	}
	if cfg.Player.TapeDurationMs < 0 {
		errs = append(errs, fmt.Errorf("player.tape_duration_ms must not be negative, got %d", cfg.Player.TapeDurationMs))
	}

	return errors.Join(errs...)
}
