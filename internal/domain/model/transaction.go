// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"strings"
	"time"
)

// Mode is the station mode a scan was made in.
type Mode string

const (
	// ModeDetective scans are counted but never scored.
	ModeDetective Mode = "detective"
	// ModeBlackMarket scans are scored.
	ModeBlackMarket Mode = "blackmarket"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDetective || m == ModeBlackMarket
}

// SameScanWindow is the interval inside which two scans of one token by one
// team are treated as the same transaction.
const SameScanWindow = time.Second

// Validation errors.
var (
	ErrMissingToken = errors.New("missing token id")
	ErrMissingTeam  = errors.New("missing team id")
	ErrInvalidMode  = errors.New("invalid mode")
	ErrInvalidValue = errors.New("value rating out of range")
)

// Transaction is the immutable record of one scan.
type Transaction struct {
	ID          string    `json:"id,omitempty"`
	TokenID     string    `json:"tokenId"`
	TeamID      string    `json:"teamId"`
	DeviceID    string    `json:"deviceId"`
	Mode        Mode      `json:"mode"`
	Timestamp   time.Time `json:"timestamp"`
	MemoryType  string    `json:"memoryType"`
	Group       string    `json:"group"`
	ValueRating int       `json:"valueRating"`
	IsUnknown   bool      `json:"isUnknown"`
}

// Validate checks the fields every transaction must carry.
func (t *Transaction) Validate() error {
	switch {
	case strings.TrimSpace(t.TokenID) == "":
		return ErrMissingToken
	case strings.TrimSpace(t.TeamID) == "":
		return ErrMissingTeam
	case !t.Mode.Valid():
		return ErrInvalidMode
	case t.ValueRating < 0 || t.ValueRating > 5:
		return ErrInvalidValue
	}
	return nil
}

// SameScan reports whether t and o describe the same physical scan: same token,
// same team, timestamps less than SameScanWindow apart.
func (t *Transaction) SameScan(o *Transaction) bool {
	if t.TokenID != o.TokenID || t.TeamID != o.TeamID {
		return false
	}
	d := t.Timestamp.Sub(o.Timestamp)
	if d < 0 {
		d = -d
	}
	return d < SameScanWindow
}

// Scored reports whether the transaction contributes points.
func (t *Transaction) Scored() bool {
	return t.Mode == ModeBlackMarket && !t.IsUnknown
}
