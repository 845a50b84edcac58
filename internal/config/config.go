// Package config defines device configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and GMSCAN_* env vars.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"time"
)

// Storage drivers understood by the kv package.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogBackend selects the logger implementation: slog or zap.
	LogBackend string `koanf:"log_backend"`

	// Addr configures the local HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DeviceID identifies this scanner to the orchestrator.
	DeviceID string `koanf:"device_id"`

	// StorageDriver selects the durable key-value backend.
	StorageDriver string `koanf:"storage_driver"`

	// DataPath is the bolt or sqlite file path.
	DataPath string `koanf:"data_path"`

	// RedisAddr is used when StorageDriver is redis.
	RedisAddr string `koanf:"redis_addr"`

	// StorageQuotaBytes bounds the total stored bytes; 0 disables the bound.
	StorageQuotaBytes int `koanf:"storage_quota_bytes"`

	// OrchestratorURL is the base URL of the remote authority. Empty runs the device offline.
	OrchestratorURL string `koanf:"orchestrator_url"`

	// WSPath is appended to OrchestratorURL for the live channel.
	WSPath string `koanf:"ws_path"`

	// CatalogPath points at tokens.json; CatalogBackupPath is tried when it is missing.
	CatalogPath       string `koanf:"catalog_path"`
	CatalogBackupPath string `koanf:"catalog_backup_path"`

	// AckTimeoutMS bounds the wait for a transaction:result.
	AckTimeoutMS int `koanf:"ack_timeout_ms"`

	// BatchAckTimeoutMS bounds the wait for a batch:ack.
	BatchAckTimeoutMS int `koanf:"batch_ack_timeout_ms"`

	// ReconnectDelayMS is the pause between live channel dial attempts.
	ReconnectDelayMS int `koanf:"reconnect_delay_ms"`

	// BacklogCapacity bounds the pending-delivery backlog.
	BacklogCapacity int `koanf:"backlog_capacity"`

	// ValueTiers maps a token value rating (1-5) to its base points.
	ValueTiers map[string]int `koanf:"value_tiers"`

	// TypeMultipliers maps a memory type to its point multiplier.
	TypeMultipliers map[string]int `koanf:"type_multipliers"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogBackend:        "slog",
		Addr:              ":9080",
		DeviceID:          "GM_STATION_1",
		StorageDriver:     DriverBolt,
		DataPath:          "gmscan.db",
		RedisAddr:         "localhost:6379",
		OrchestratorURL:   "",
		WSPath:            "/ws",
		CatalogPath:       "data/tokens.json",
		CatalogBackupPath: "tokens.json.backup",
		AckTimeoutMS:      30_000,
		BatchAckTimeoutMS: 60_000,
		ReconnectDelayMS:  2_000,
		BacklogCapacity:   1_000,
		ValueTiers: map[string]int{
			"1": 100,
			"2": 500,
			"3": 1000,
			"4": 5000,
			"5": 10000,
		},
		TypeMultipliers: map[string]int{
			"personal":  1,
			"business":  3,
			"technical": 5,
			"unknown":   0,
		},
	}
}

// AckTimeout returns AckTimeoutMS as a duration.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutMS) * time.Millisecond
}

// BatchAckTimeout returns BatchAckTimeoutMS as a duration.
func (c *Config) BatchAckTimeout() time.Duration {
	return time.Duration(c.BatchAckTimeoutMS) * time.Millisecond
}

// ReconnectDelay returns ReconnectDelayMS as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// Networked reports whether an orchestrator is configured.
func (c *Config) Networked() bool {
	return c.OrchestratorURL != ""
}
