// Package server exposes the analytics engine over HTTP. Handlers stay thin:
// they decode requests, call engine operations, and encode results.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathlight-hq/pathlight/internal/contradiction"
	"github.com/pathlight-hq/pathlight/internal/recalc"
	"github.com/pathlight-hq/pathlight/internal/scoring"
	"github.com/pathlight-hq/pathlight/internal/store"
	"github.com/pathlight-hq/pathlight/internal/survey"
	"github.com/pathlight-hq/pathlight/internal/variance"
)

// Server routes HTTP traffic to the engine components.
type Server struct {
	store    store.Store
	engine   *scoring.Engine
	variance *variance.Calculator
	detector *contradiction.Detector
	recalc   *recalc.Recalculator
	surveys  *survey.Scheduler

	router chi.Router
}

// New wires a Server over the given components.
func New(st store.Store, engine *scoring.Engine, calc *variance.Calculator, det *contradiction.Detector, rec *recalc.Recalculator, surveys *survey.Scheduler) *Server {
	s := &Server{
		store:    st,
		engine:   engine,
		variance: calc,
		detector: det,
		recalc:   rec,
		surveys:  surveys,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Post("/rank", s.handleRank)
	r.Post("/explorations", s.handleCreateExploration)

	r.Get("/paths", s.handleListPaths)
	r.Get("/paths/{slug}", s.handleGetPath)
	r.Get("/paths/{slug}/variance", s.handlePathVariance)
	r.Get("/paths/{slug}/contradictions", s.handlePathContradictions)
	r.Post("/paths/{slug}/flags/refresh", s.handleRefreshFlags)
	r.Post("/paths/{slug}/recalculate", s.handleRecalculatePath)
	r.Get("/paths/{slug}/recalculations", s.handleRecalculationHistory)

	r.Get("/variance", s.handleGlobalVariance)
	r.Get("/contradictions", s.handleAllContradictions)
	r.Post("/recalculate", s.handleRecalculateAll)

	r.Post("/surveys/{id}/submit", s.handleSubmitSurvey)
	r.Post("/surveys/{id}/skip", s.handleSkipSurvey)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondEngineError maps engine error taxonomy onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case eris.Is(err, survey.ErrSurveyClosed):
		respondError(w, http.StatusConflict, "survey already closed")
	case eris.Is(err, store.ErrVersionConflict):
		respondError(w, http.StatusConflict, "concurrent recalculation won the race")
	default:
		zap.L().Error("server: request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
