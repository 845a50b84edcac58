package kv

import (
	"context"
	"fmt"

	"github.com/okian/gmscan/internal/config"
)

// Open creates the store selected by cfg.StorageDriver, wrapped with a quota
// when StorageQuotaBytes is positive.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.StorageDriver {
	case config.DriverBolt:
		s, err = NewBolt(cfg.DataPath)
	case config.DriverSQLite:
		s, err = NewSQLite(ctx, cfg.DataPath)
	case config.DriverRedis:
		s, err = NewRedis(ctx, WithAddress(cfg.RedisAddr), WithPrefix(cfg.DeviceID+":"))
	case config.DriverMemory:
		s = NewMemory()
	default:
		return nil, fmt.Errorf("kv: %w %q", config.ErrUnknownDriver, cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}
	if cfg.StorageQuotaBytes > 0 {
		s = NewQuota(s, cfg.StorageQuotaBytes)
	}
	return s, nil
}
