// Package bulk accepts bulk-send requests and turns them into durable job
// and batch records for the worker to drain.
package bulk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trybemarket/bulkmail/internal/metrics"
	"github.com/trybemarket/bulkmail/internal/models"
)

// ValidationError reports a missing required submission field. Surfaced to
// the caller as a 400 and never retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// JobStore persists a job together with all of its batches atomically.
type JobStore interface {
	CreateJobWithBatches(ctx context.Context, job *models.Job, batches []models.Batch) error
}

// RecipientResolver turns an audience selector into concrete recipients.
type RecipientResolver interface {
	Resolve(ctx context.Context, target string, explicit []models.Recipient) ([]models.Recipient, error)
}

// ShellRenderer compiles the reusable HTML shell once per job.
type ShellRenderer interface {
	Newsletter(body, adminName string) (string, error)
}

type Request struct {
	Target     string             `json:"target"`
	Subject    string             `json:"subject"`
	Body       string             `json:"body"`
	AdminName  string             `json:"adminName"`
	Recipients []models.Recipient `json:"selectedRecipients,omitempty"`
}

type Result struct {
	JobID          string `json:"jobId"`
	TotalAttempted int    `json:"totalAttempted"`
}

type Submitter struct {
	Store     JobStore
	Resolver  RecipientResolver
	Renderer  ShellRenderer
	BatchSize int
	Log       *zap.Logger
}

func NewSubmitter(store JobStore, resolver RecipientResolver, renderer ShellRenderer, batchSize int, log *zap.Logger) *Submitter {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Submitter{
		Store:     store,
		Resolver:  resolver,
		Renderer:  renderer,
		BatchSize: batchSize,
		Log:       log,
	}
}

// Submit validates the request, resolves recipients, renders the shell once
// and persists one job plus its batches in a single atomic write. No email
// is sent here; delivery is the worker's job and the caller gets the job ID
// back immediately.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	recipients, err := s.Resolver.Resolve(ctx, req.Target, req.Recipients)
	if err != nil {
		return nil, err
	}

	shell, err := s.Renderer.Newsletter(req.Body, req.AdminName)
	if err != nil {
		return nil, fmt.Errorf("render shell: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:              uuid.NewString(),
		Subject:         req.Subject,
		AdminName:       req.AdminName,
		CompiledHTML:    shell,
		TargetAudience:  req.Target,
		Status:          models.JobQueued,
		TotalRecipients: len(recipients),
		CreatedAt:       now,
	}

	chunks := chunkRecipients(recipients, s.BatchSize)
	job.TotalBatches = len(chunks)

	batches := make([]models.Batch, 0, len(chunks))
	for i, chunk := range chunks {
		batches = append(batches, models.Batch{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			BatchIndex: i,
			Recipients: chunk,
			Status:     models.BatchPending,
			CreatedAt:  now,
		})
	}

	if err := s.Store.CreateJobWithBatches(ctx, job, batches); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	metrics.JobsSubmitted.Inc()

	s.Log.Info("bulk send queued",
		zap.String("job_id", job.ID),
		zap.Int("recipients", len(recipients)),
		zap.Int("batches", len(batches)),
	)

	return &Result{JobID: job.ID, TotalAttempted: len(recipients)}, nil
}

func validate(req Request) error {
	for _, f := range []struct {
		name, value string
	}{
		{"subject", req.Subject},
		{"body", req.Body},
		{"adminName", req.AdminName},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name}
		}
	}
	return nil
}

// chunkRecipients splits recipients into chunks of at most size. The chunks
// cover the input exactly: ceil(len/size) chunks, no duplicates, no
// omissions, never an empty chunk.
func chunkRecipients(recipients []models.Recipient, size int) [][]models.Recipient {
	var chunks [][]models.Recipient
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		chunks = append(chunks, recipients[start:end])
	}
	return chunks
}
