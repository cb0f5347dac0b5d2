// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/sphere/internal/domain/alerting"
	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/internal/domain/types"
	"github.com/okian/sphere/pkg/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Ready() bool
	GetStats() types.Stats

	ComputeMarketValue(ctx context.Context, platformID string) (types.MarketValue, error)
	ComputePLEP(ctx context.Context, platformID string, draft model.ContentDraft) (types.PLEP, error)
	PutProfile(ctx context.Context, p *model.InfluencerProfile) error

	// Enqueue schedules a rescore. Returns false on backpressure.
	Enqueue(ctx context.Context, change model.ProfileChange) bool

	RunStoredCycle(ctx context.Context, snapshot []model.ScoreUpdate) (alerting.Report, error)
	CreateRule(ctx context.Context, rule model.AlertRule) (model.AlertRule, error)
	ListRules(ctx context.Context) ([]model.AlertRule, error)
	GetRule(ctx context.Context, id string) (model.AlertRule, error)
	EditRule(ctx context.Context, id string, edit model.RuleEdit) (model.AlertRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps   Dependencies
	logger logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for unexpected handler errors.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, logger: logger.Get().Named("api")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router with every endpoint attached.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(Metrics)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/influencers/{id}", func(r chi.Router) {
			r.Put("/", s.handlePutProfile)
			r.Get("/market-value", s.handleMarketValue)
			r.Post("/plep", s.handlePLEP)
			r.Post("/rescore", s.handleRescore)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/cycle", s.handleCycle)
			r.Get("/rules", s.handleListRules)
			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules/{id}", s.handleGetRule)
			r.Put("/rules/{id}", s.handleEditRule)
			r.Delete("/rules/{id}", s.handleDeleteRule)
		})
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// fail maps err onto a status and writes it. Server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
	}
	writeError(w, status, code, err)
}

// errorIs reports whether err matches any target.
func errorIs(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
