package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/sphere/internal/domain/types"
)

// handleCycle handles POST /v1/alerts/cycle. An empty body evaluates the
// pending score stream.
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	var req types.CycleRequest
	if err := decode(r, w, &req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, err)
		return
	}
	rep, err := s.deps.RunStoredCycle(r.Context(), req.Snapshot)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewCycleView(rep))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.deps.ListRules(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]types.RuleView, len(rules))
	for i, rule := range rules {
		out[i] = types.NewRuleView(rule)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req types.RuleRequest
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rule, err := s.deps.CreateRule(r.Context(), req.Rule())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.NewRuleView(rule))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.deps.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewRuleView(rule))
}

// handleEditRule applies a partial edit. The edited rule is re-armed.
func (s *Server) handleEditRule(w http.ResponseWriter, r *http.Request) {
	var req types.RuleEditRequest
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	rule, err := s.deps.EditRule(r.Context(), chi.URLParam(r, "id"), req.Edit())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewRuleView(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
