// Package handlers exposes the generation API over HTTP. Handlers translate
// between the wire shapes and the job service; no business rules live here.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/service"
)

type App struct {
	Jobs   *service.JobService
	Logger infra.Logger
}

func NewApp(jobs *service.JobService, logger infra.Logger) *App {
	return &App{Jobs: jobs, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorBody{Error: kind, Message: message})
}

// fail maps a service error onto the wire. Job errors carry their kind;
// sentinel errors get conventional statuses; everything else is opaque.
func (a *App) fail(w http.ResponseWriter, err error) {
	var jobErr *domain.JobError
	switch {
	case errors.As(err, &jobErr):
		a.json(w, statusForKind(jobErr.Kind), errorBody{
			Error:   string(jobErr.Kind),
			Message: jobErr.Message,
			Details: jobErr.Details,
		})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrUnknownModel):
		a.error(w, http.StatusBadRequest, "unknown_model", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrKindValidation:
		return http.StatusUnprocessableEntity
	case domain.ErrKindAnalyzerStep, domain.ErrKindBackend:
		return http.StatusBadGateway
	case domain.ErrKindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
