package api

import (
	"errors"
	"net/http"

	"github.com/okian/sphere/internal/adapters/repository"
	service "github.com/okian/sphere/internal/app"
	"github.com/okian/sphere/internal/domain/alerting"
	"github.com/okian/sphere/internal/domain/features"
	"github.com/okian/sphere/internal/domain/registry"
	"github.com/okian/sphere/internal/domain/scoring"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// classify maps a domain error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var missing *features.MissingDataError
	switch {
	case errorIs(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errorIs(err, ErrBadRequest, service.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request"
	case errorIs(err, repository.ErrInvalidRule, repository.ErrInvalidProfile,
		alerting.ErrMalformedSelector, alerting.ErrUnknownMetric, alerting.ErrUnknownOperator,
		alerting.ErrInvalidThreshold, alerting.ErrInvalidCooldown):
		return http.StatusBadRequest, "invalid"
	case errors.As(err, &missing), errorIs(err, features.ErrMissingData):
		return http.StatusUnprocessableEntity, "missing_data"
	case errorIs(err, alerting.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errorIs(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errorIs(err, registry.ErrModelNotLoaded):
		return http.StatusServiceUnavailable, "model_not_loaded"
	case errorIs(err, scoring.ErrFeatureSchemaMismatch):
		return http.StatusInternalServerError, "schema_mismatch"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
