package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/internal/domain/types"
)

type ackResponse struct {
	Status     string `json:"status"`
	PlatformID string `json:"platform_id"`
}

// handleMarketValue handles GET /v1/influencers/{id}/market-value.
func (s *Server) handleMarketValue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mv, err := s.deps.ComputeMarketValue(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mv.View(id))
}

// handlePLEP handles POST /v1/influencers/{id}/plep.
func (s *Server) handlePLEP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req types.DraftRequest
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.deps.ComputePLEP(r.Context(), id, req.Draft())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.View(id))
}

// handleRescore handles POST /v1/influencers/{id}/rescore.
func (s *Server) handleRescore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		s.fail(w, r, fmt.Errorf("%w: empty platform id", ErrBadRequest))
		return
	}
	if !s.deps.Enqueue(r.Context(), model.ProfileChange{PlatformID: id, Reason: "api"}) {
		s.fail(w, r, fmt.Errorf("%w: rescore queue full", ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "queued", PlatformID: id})
}

// handlePutProfile handles PUT /v1/influencers/{id}. The body may omit
// platform_id; when present it must match the path.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req types.ProfileView
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.PlatformID == "" {
		req.PlatformID = id
	}
	if req.PlatformID != id {
		s.fail(w, r, fmt.Errorf("%w: platform_id %q does not match path", ErrBadRequest, req.PlatformID))
		return
	}
	if err := s.deps.PutProfile(r.Context(), req.Profile()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "stored", PlatformID: id})
}
