package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if GMSCAN_CONFIG is set
//  3. env (prefix GMSCAN_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("GMSCAN_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Environment variables: GMSCAN_ADDR, GMSCAN_DEVICE_ID, ...
	// Flat keys keep their underscores to match koanf tags on the struct.
	envProvider := env.Provider("GMSCAN_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "gmscan_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the device cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.DeviceID) == "":
		return fmt.Errorf("%w: device_id must not be empty", ErrInvalidConfig)
	case c.AckTimeoutMS <= 0:
		return fmt.Errorf("%w: ack_timeout_ms must be positive", ErrInvalidConfig)
	case c.BatchAckTimeoutMS <= 0:
		return fmt.Errorf("%w: batch_ack_timeout_ms must be positive", ErrInvalidConfig)
	case c.BacklogCapacity <= 0:
		return fmt.Errorf("%w: backlog_capacity must be positive", ErrInvalidConfig)
	}

	switch c.StorageDriver {
	case DriverBolt, DriverSQLite:
		if c.DataPath == "" {
			return fmt.Errorf("%w: data_path is required for %s", ErrInvalidConfig, c.StorageDriver)
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for redis", ErrInvalidConfig)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownDriver, c.StorageDriver)
	}

	for rating := range c.ValueTiers {
		n, err := strconv.Atoi(rating)
		if err != nil || n < 0 || n > 5 {
			return fmt.Errorf("%w: value_tiers key %q must be a rating 0-5", ErrInvalidConfig, rating)
		}
	}
	return nil
}

// Tiers returns ValueTiers keyed by integer rating.
func (c *Config) Tiers() map[int]int {
	out := make(map[int]int, len(c.ValueTiers))
	for rating, points := range c.ValueTiers {
		if n, err := strconv.Atoi(rating); err == nil {
			out[n] = points
		}
	}
	return out
}
