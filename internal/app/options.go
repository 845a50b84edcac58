package service

import (
	"time"

	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/internal/catalog"
	"github.com/okian/gmscan/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore sets the durable key-value store. Defaults to memory.
func WithStore(store kv.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.kv = store
		}
	}
}

// WithCatalog sets the token catalog used to enrich scans and find groups.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithDeviceID sets the device identity stamped on every transaction.
func WithDeviceID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.deviceID = id
		}
	}
}

// WithNetworked marks the device as reporting to an orchestrator. Scans made
// before AttachDelivery are stashed in the orphan slot.
func WithNetworked(networked bool) Option {
	return func(s *Service) {
		s.networked = networked
	}
}

// WithBacklogCapacity bounds the pending-delivery backlog.
func WithBacklogCapacity(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.backlogCapacity = capacity
		}
	}
}

// WithValueTiers replaces the value-rating table.
func WithValueTiers(tiers map[int]int) Option {
	return func(s *Service) {
		if len(tiers) > 0 {
			s.valueTiers = tiers
		}
	}
}

// WithTypeMultipliers replaces the memory-type table.
func WithTypeMultipliers(multipliers map[string]int) Option {
	return func(s *Service) {
		if len(multipliers) > 0 {
			s.typeMultipliers = multipliers
		}
	}
}

// WithClock replaces time.Now for scan timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
