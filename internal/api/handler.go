package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/trybemarket/bulkmail/internal/adhoc"
	"github.com/trybemarket/bulkmail/internal/audience"
	"github.com/trybemarket/bulkmail/internal/bulk"
	"github.com/trybemarket/bulkmail/internal/csvparser"
	"github.com/trybemarket/bulkmail/internal/db"
	"github.com/trybemarket/bulkmail/internal/models"
)

type Submitter interface {
	Submit(ctx context.Context, req bulk.Request) (*bulk.Result, error)
}

type IndexSyncer interface {
	RebuildIndex(ctx context.Context) (int, error)
}

type AdhocSender interface {
	Send(ctx context.Context, req adhoc.Request) (*adhoc.Result, error)
}

// JobReader serves the admin status view; job completion is derived from
// child batches, not stored.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobProgress(ctx context.Context, jobID string) (*db.JobProgress, error)
}

type UserImporter interface {
	UpsertUsers(ctx context.Context, users []models.User) error
}

type Handler struct {
	Submit Submitter
	Sync   IndexSyncer
	Adhoc  AdhocSender
	Jobs   JobReader
	Users  UserImporter
	Log    *zap.Logger
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/email/bulk-send", h.bulkSend)
		r.Post("/email/send-adhoc", h.sendAdhoc)
		r.Post("/sync-users", h.syncUsers)
		r.Post("/users/import", h.importUsers)
		r.Get("/jobs/{jobID}", h.jobStatus)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bulkSend accepts a bulk-send request, queues it durably and returns 202
// immediately; delivery is asynchronous.
func (h *Handler) bulkSend(w http.ResponseWriter, r *http.Request) {
	var req bulk.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.Submit.Submit(r.Context(), req)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, result)
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	var vErr *bulk.ValidationError

	switch {
	case errors.As(err, &vErr):
		respondError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, audience.ErrNoRecipients):
		respondError(w, http.StatusBadRequest, "no recipients resolved for this audience")
	case errors.Is(err, audience.ErrIndexMissing):
		respondError(w, http.StatusBadRequest, "audience index not built yet, run user sync first")
	default:
		h.Log.Error("bulk send submission failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to queue bulk send job")
	}
}

func (h *Handler) sendAdhoc(w http.ResponseWriter, r *http.Request) {
	var req adhoc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.Adhoc.Send(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, adhoc.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, db.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	default:
		h.Log.Error("ad-hoc send failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "email send failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":   req.TemplateID + " email sent successfully",
		"messageId": result.MessageID,
	})
}

func (h *Handler) syncUsers(w http.ResponseWriter, r *http.Request) {
	count, err := h.Sync.RebuildIndex(r.Context())
	if err != nil {
		h.Log.Error("user index sync failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to sync user index")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   count,
	})
}

func (h *Handler) importUsers(w http.ResponseWriter, r *http.Request) {
	users, err := csvparser.ParseUsers(r.Body, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Users.UpsertUsers(r.Context(), users); err != nil {
		h.Log.Error("user import failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to import users")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"imported": len(users),
	})
}

func (h *Handler) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.Jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.Log.Error("job lookup failed", zap.String("job_id", jobID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read job")
		return
	}

	progress, err := h.Jobs.GetJobProgress(r.Context(), jobID)
	if err != nil {
		h.Log.Error("job progress failed", zap.String("job_id", jobID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read job progress")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"job":      job,
		"progress": progress,
		"done":     progress.Done(),
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
