package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pathlight-hq/pathlight/internal/contradiction"
	"github.com/pathlight-hq/pathlight/internal/model"
	"github.com/pathlight-hq/pathlight/internal/recalc"
	"github.com/pathlight-hq/pathlight/internal/scoring"
	"github.com/pathlight-hq/pathlight/internal/survey"
)

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var cc model.ClientContext
	if err := json.NewDecoder(r.Body).Decode(&cc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cc.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	scores, err := s.engine.RankForContext(r.Context(), cc)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"scores": scores})
}

type explorationRequest struct {
	PathSlug       string              `json:"path_slug"`
	Context        model.ClientContext `json:"context"`
	RecipientEmail *string             `json:"recipient_email,omitempty"`
}

func (s *Server) handleCreateExploration(w http.ResponseWriter, r *http.Request) {
	var req explorationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PathSlug == "" {
		respondError(w, http.StatusBadRequest, "path_slug is required")
		return
	}
	if err := req.Context.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.store.GetPathBySlug(r.Context(), req.PathSlug)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	snap := scoring.SnapshotPrediction(p)
	exp, err := s.store.CreateExploration(r.Context(), model.PathExploration{
		ID:                      uuid.NewString(),
		PathID:                  p.ID,
		Context:                 req.Context,
		PredictedTimelineMonths: snap.TimelineMonths,
		PredictedCost:           snap.Cost,
		PredictedSuccessRate:    snap.SuccessRate,
		ModelVersion:            snap.ModelVersion,
		CreatedAt:               time.Now(),
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	sv, err := s.surveys.Create(r.Context(), exp.ID, req.RecipientEmail)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"exploration": exp,
		"survey":      sv,
	})
}

func (s *Server) handleListPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := s.store.ListActivePaths(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"paths": paths})
}

func (s *Server) handleGetPath(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPathBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handlePathVariance(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPathBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	m, err := s.variance.PathVariance(r.Context(), p.ID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	// metrics is null when the path has no completed outcomes yet.
	respondJSON(w, http.StatusOK, map[string]any{
		"slug":    p.Slug,
		"metrics": m,
	})
}

func (s *Server) handleGlobalVariance(w http.ResponseWriter, r *http.Request) {
	gv, err := s.variance.GlobalVariance(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, gv)
}

func (s *Server) handlePathContradictions(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPathBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	found, err := s.detector.DetectForPath(r.Context(), p.ID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if found == nil {
		found = []contradiction.Contradiction{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"slug":           p.Slug,
		"contradictions": found,
	})
}

func (s *Server) handleAllContradictions(w http.ResponseWriter, r *http.Request) {
	summary, err := s.detector.DetectAll(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRefreshFlags(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPathBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	flags, err := s.detector.UpdatePathContradictionFlags(r.Context(), p.ID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"slug":  p.Slug,
		"flags": flags,
	})
}

type recalcRequest struct {
	Force bool   `json:"force"`
	Actor string `json:"actor"`
}

func (s *Server) handleRecalculatePath(w http.ResponseWriter, r *http.Request) {
	var req recalcRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	p, err := s.store.GetPathBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	res, err := s.recalc.Recalculate(r.Context(), p.ID, model.TriggerManual, req.Actor, req.Force)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	var req recalcRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	results, err := s.recalc.RecalculateAll(r.Context(), model.TriggerManual, req.Actor, req.Force)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if results == nil {
		results = []recalc.Result{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleRecalculationHistory(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPathBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := s.store.ListRecalculationRuns(r.Context(), p.ID, limit)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"slug": p.Slug,
		"runs": runs,
	})
}

func (s *Server) handleSubmitSurvey(w http.ResponseWriter, r *http.Request) {
	var sub survey.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sub.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := s.surveys.Submit(r.Context(), chi.URLParam(r, "id"), sub)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, outcome)
}

func (s *Server) handleSkipSurvey(w http.ResponseWriter, r *http.Request) {
	if err := s.surveys.Skip(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
}
