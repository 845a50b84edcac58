package repository

import "errors"

// Sentinel kinds for transaction store errors.
var (
	ErrNotFound             = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrMissingTeam          = errors.New("missing team id")
)
