package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-pathfinder/internal/pathfinder"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondValidation reports each failing field with the rule it broke.
func respondValidation(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		respondError(w, http.StatusBadRequest, "invalid input")
		return
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: fields})
}

// respondServiceError maps a pathfinder error to a status code. Unexpected
// errors are logged in full and answered with a generic body.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, pathfinder.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pathfinder.ErrNotFound), errors.Is(err, pathfinder.ErrNoPath):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("request failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "internal server error",
			Details: "unexpected failure",
		})
	}
}
