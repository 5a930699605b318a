// Package httpapi exposes the pathfinder service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-pathfinder/internal/pathfinder"
	"github.com/p-n-ai/pai-pathfinder/internal/progress"
)

const maxBodyBytes = 1 << 20

// Pathfinder is the part of pathfinder.Service the handlers use.
type Pathfinder interface {
	Recommend(ctx context.Context, userID, goalID, currentID string) (pathfinder.Recommendation, error)
	UpdateMastery(ctx context.Context, upd pathfinder.MasteryUpdate) (pathfinder.MasteryResult, error)
	RecordContentView(ctx context.Context, userID, conceptID string, descriptionRead, videoWatched bool) (progress.Record, error)
	ResetProgress(ctx context.Context, userID, conceptID string) (progress.Record, error)
	UnlockReachable(ctx context.Context, userID string) ([]string, error)
}

// Handler serves the recommendation and progress endpoints.
type Handler struct {
	svc      Pathfinder
	auth     *Authenticator
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates the HTTP handlers for svc. Every route requires a token
// accepted by auth.
func NewHandler(svc Pathfinder, auth *Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		svc:      svc,
		auth:     auth,
		validate: validate,
		logger:   logger.With("component", "httpapi"),
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /recommendation/{goalConceptId}", h.auth.Middleware(http.HandlerFunc(h.handleRecommendation)))
	mux.Handle("GET /recommendation/{$}", h.auth.Middleware(http.HandlerFunc(h.handleMissingGoal)))
	mux.Handle("GET /recommendation", h.auth.Middleware(http.HandlerFunc(h.handleMissingGoal)))
	mux.Handle("POST /concepts/{conceptId}/progress", h.auth.Middleware(http.HandlerFunc(h.handleProgress)))
	mux.Handle("POST /concepts/{conceptId}/reset", h.auth.Middleware(http.HandlerFunc(h.handleReset)))
	mux.Handle("GET /concepts/unlocked", h.auth.Middleware(http.HandlerFunc(h.handleUnlocked)))
}

func (h *Handler) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	goalID := strings.TrimSpace(r.PathValue("goalConceptId"))
	currentID := strings.TrimSpace(r.URL.Query().Get("currentConceptId"))
	if goalID == "" {
		respondError(w, http.StatusBadRequest, "goalConceptId is required")
		return
	}
	if currentID == "" {
		respondError(w, http.StatusBadRequest, "currentConceptId is required")
		return
	}

	rec, err := h.svc.Recommend(r.Context(), userID, goalID, currentID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleMissingGoal(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusBadRequest, "goalConceptId is required")
}

type progressRequest struct {
	Score           *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
	CourseID        string   `json:"courseId" validate:"omitempty,max=128"`
	DescriptionRead bool     `json:"descriptionRead"`
	VideoWatched    bool     `json:"videoWatched"`
}

type progressResponse struct {
	ConceptID       string          `json:"conceptId"`
	Mastered        bool            `json:"mastered"`
	MasteryScore    float64         `json:"masteryScore"`
	Attempts        int             `json:"attempts"`
	Status          progress.Status `json:"status"`
	DescriptionRead bool            `json:"descriptionRead"`
	VideoWatched    bool            `json:"videoWatched"`
	NewlyUnlocked   []string        `json:"newlyUnlocked"`
}

func recordResponse(rec progress.Record) progressResponse {
	return progressResponse{
		ConceptID:       rec.ConceptID,
		Mastered:        rec.Mastered,
		MasteryScore:    rec.Percent(),
		Attempts:        rec.Attempts,
		Status:          rec.Status,
		DescriptionRead: rec.DescriptionRead,
		VideoWatched:    rec.VideoWatched,
		NewlyUnlocked:   []string{},
	}
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	conceptID := r.PathValue("conceptId")

	var req progressRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidation(w, err)
		return
	}
	if req.Score == nil && !req.DescriptionRead && !req.VideoWatched {
		respondError(w, http.StatusBadRequest, "score is required")
		return
	}

	// Flags sent with a score are stored in the same write as the score.
	if req.Score == nil {
		rec, err := h.svc.RecordContentView(r.Context(), userID, conceptID, req.DescriptionRead, req.VideoWatched)
		if err != nil {
			respondServiceError(w, h.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, recordResponse(rec))
		return
	}

	res, err := h.svc.UpdateMastery(r.Context(), pathfinder.MasteryUpdate{
		UserID:          userID,
		ConceptID:       conceptID,
		Score:           *req.Score,
		CourseID:        req.CourseID,
		DescriptionRead: req.DescriptionRead,
		VideoWatched:    req.VideoWatched,
	})
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, progressResponse(res))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	rec, err := h.svc.ResetProgress(r.Context(), userID, r.PathValue("conceptId"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, recordResponse(rec))
}

func (h *Handler) handleUnlocked(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	unlocked, err := h.svc.UnlockReachable(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"unlocked": unlocked})
}
