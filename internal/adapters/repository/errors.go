package repository

import (
	"errors"

	"github.com/okian/sphere/internal/domain/alerting"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidProfile = errors.New("invalid profile")
	ErrInvalidRule    = errors.New("invalid alert rule")

	// ErrVersionConflict is the alerting sentinel so the cycle can match it.
	ErrVersionConflict = alerting.ErrVersionConflict
)
