package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/adlift/publisher/internal/auth"
	"github.com/adlift/publisher/internal/classify"
	"github.com/adlift/publisher/internal/models"
	"github.com/adlift/publisher/internal/publish"
	"github.com/adlift/publisher/internal/store"
)

// Publisher runs one publish attempt.
type Publisher interface {
	Publish(ctx context.Context, campaignID uuid.UUID, userID string) (publish.Result, error)
}

// StatusUpdater flips a remote object between ACTIVE and PAUSED.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, objectID, status string) error
}

type Server struct {
	store     store.Store
	publisher Publisher
	statusAPI StatusUpdater
	verifier  *auth.Verifier
}

func New(st store.Store, publisher Publisher, statusAPI StatusUpdater, verifier *auth.Verifier) *Server {
	return &Server{store: st, publisher: publisher, statusAPI: statusAPI, verifier: verifier}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.verifier.Middleware)
		r.Post("/campaigns", s.handleCreateDraft)
		r.Route("/publish/{campaignID}", func(r chi.Router) {
			r.Post("/", s.handlePublish)
			r.Get("/", s.handleGetAttempt)
			r.Post("/reset", s.handleReset)
			r.Post("/status", s.handleUpdateStatus)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var draft models.CampaignDraft
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if draft.Name == "" {
		respondError(w, http.StatusBadRequest, "campaign name required")
		return
	}
	if userID := auth.UserFromContext(r.Context()); userID != "" {
		draft.UserID = userID
	}
	created, err := s.store.CreateDraft(r.Context(), draft)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	result, err := s.publisher.Publish(r.Context(), campaignID, auth.UserFromContext(r.Context()))
	if err != nil {
		var pubErr *publish.PublishError
		if errors.As(err, &pubErr) {
			respondJSON(w, statusForCategory(pubErr.Code), pubErr)
			return
		}
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	attempt, err := s.store.GetAttempt(r.Context(), campaignID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no publish attempt for campaign")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"attempt":     attempt,
		"resumePoint": publish.ResumePoint(attempt.CreatedObjects),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	m, err := publish.LoadStateMachine(r.Context(), campaignID, s.store)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := m.TransitionTo(r.Context(), models.StageIdle, "reset by user"); err != nil {
		if errors.Is(err, publish.ErrInvalidTransition) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, m.Attempt())
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status != "ACTIVE" && req.Status != "PAUSED" {
		respondError(w, http.StatusBadRequest, "status must be ACTIVE or PAUSED")
		return
	}
	attempt, err := s.store.GetAttempt(r.Context(), campaignID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && attempt.CreatedObjects.CampaignID == "") {
		respondError(w, http.StatusConflict, "campaign has not been published")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.statusAPI.UpdateStatus(r.Context(), attempt.CreatedObjects.CampaignID, req.Status); err != nil {
		c := classify.Classify(err)
		respondJSON(w, statusForCategory(string(c.Category)), map[string]string{
			"error":       err.Error(),
			"userMessage": c.UserMessage,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"campaignId": attempt.CreatedObjects.CampaignID,
		"status":     req.Status,
	})
}

func statusForCategory(category string) int {
	switch classify.Category(category) {
	case classify.CategoryValidation, classify.CategoryBusinessLogic:
		return http.StatusUnprocessableEntity
	case classify.CategoryAuthentication:
		return http.StatusUnauthorized
	case classify.CategoryAuthorization:
		return http.StatusForbidden
	case classify.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
