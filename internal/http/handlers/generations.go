package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediaforge/internal/domain"
	"mediaforge/internal/service"
)

type createGenerationRequest struct {
	Prompt  string          `json:"prompt,omitempty"`
	Model   string          `json:"model,omitempty"`
	Request json.RawMessage `json:"request,omitempty"`
}

type fileView struct {
	StorageURI string `json:"storage_uri"`
	SignedURL  string `json:"signed_url,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

type jobView struct {
	ID        string              `json:"id"`
	Model     string              `json:"model,omitempty"`
	Status    string              `json:"status"`
	Prompt    string              `json:"prompt,omitempty"`
	Request   json.RawMessage     `json:"request,omitempty"`
	Error     *errorBody          `json:"error,omitempty"`
	Files     map[string]fileView `json:"files,omitempty"`
	Reasoning []string            `json:"reasoning,omitempty"`
	Attempt   int                 `json:"attempt,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func viewOf(job *domain.Job) jobView {
	view := jobView{
		ID:        job.ID,
		Model:     job.Model,
		Status:    string(job.Status),
		Prompt:    job.Prompt,
		Request:   job.Request,
		Reasoning: job.Reasoning,
		Attempt:   job.Attempt,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Error != nil {
		view.Error = &errorBody{
			Error:   string(job.Error.Kind),
			Message: job.Error.Message,
			Details: job.Error.Details,
		}
	}
	if len(job.Files) > 0 {
		view.Files = make(map[string]fileView, len(job.Files))
		for slot, ref := range job.Files {
			view.Files[slot] = fileView{
				StorageURI: ref.StorageURI,
				SignedURL:  ref.SignedURL,
				MIMEType:   ref.MIMEType,
				Size:       ref.Size,
			}
		}
	}
	return view
}

// CreateGeneration accepts a free-form prompt or a structured request and
// answers 202 with the job record. A job that failed during inline start is
// still a created resource; its state tells the story.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req createGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Prompt == "" && (req.Model == "" || len(req.Request) == 0) {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt or model with request required")
		return
	}

	job, err := a.Jobs.Intake(r.Context(), service.IntakeRequest{
		Prompt:  req.Prompt,
		Model:   req.Model,
		Request: req.Request,
	})
	if err != nil && job == nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, viewOf(job))
}

func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, viewOf(job))
}

func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, viewOf(job))
}
