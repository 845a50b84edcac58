package scoring

import (
	"strings"

	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithBaseValues replaces the value-rating table. Empty maps are ignored.
func WithBaseValues(values map[int]int) Option {
	return func(e *Engine) {
		if len(values) == 0 {
			return
		}
		e.baseValues = make(map[int]int, len(values))
		for rating, points := range values {
			e.baseValues[rating] = points
		}
	}
}

// WithTypeMultipliers replaces the memory-type table. Keys are matched
// case-insensitively. Empty maps are ignored.
func WithTypeMultipliers(multipliers map[string]int) Option {
	return func(e *Engine) {
		if len(multipliers) == 0 {
			return
		}
		e.typeMultipliers = make(map[string]int, len(multipliers))
		for memoryType, m := range multipliers {
			e.typeMultipliers[strings.ToLower(strings.TrimSpace(memoryType))] = m
		}
	}
}

// WithLogger sets the logger used for catalog warnings.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCatalog sets the tokens whose groups are eligible for completion bonuses.
func WithCatalog(tokens []model.Token) Option {
	return func(e *Engine) {
		e.catalog = append([]model.Token(nil), tokens...)
	}
}
