package config

import (
	"errors"
)

// Sentinel error kinds for this package.
var (
	// ErrInvalidConfig wraps every problem Validate finds.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig is returned when a layer cannot be read or unmarshalled.
	ErrLoadConfig = errors.New("load config failed")
	// ErrUnknownStoreDriver marks a store_driver other than memory, sqlite or postgres.
	ErrUnknownStoreDriver = errors.New("unknown store_driver")
)
