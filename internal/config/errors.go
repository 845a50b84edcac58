package config

import (
	"errors"
)

var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps file, env and decode failures in Load.
	ErrLoadConfig = errors.New("load config failed")
	// ErrUnknownDriver is returned for a storage_driver the kv package cannot open.
	ErrUnknownDriver = errors.New("unknown storage driver")
)
