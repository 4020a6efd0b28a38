// Package worker drains pending batches on a fixed polling interval,
// attempting delivery with bounded fan-out and recording per-recipient
// outcomes through an optimistic read-modify-write on the batch row.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/trybemarket/bulkmail/internal/db"
	"github.com/trybemarket/bulkmail/internal/email"
	"github.com/trybemarket/bulkmail/internal/metrics"
	"github.com/trybemarket/bulkmail/internal/models"
	"github.com/trybemarket/bulkmail/internal/render"
)

// Store is the slice of the persistent store the worker needs. UpdateBatch
// must return db.ErrVersionConflict when the conditional write loses the
// race.
type Store interface {
	DuePendingBatches(ctx context.Context, limit int) ([]*models.Batch, error)
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateBatch(ctx context.Context, b *models.Batch, expectedVersion int64) error
}

type Processor struct {
	Store       Store
	Transport   email.Transport
	Limiter     *rate.Limiter
	MaxRetries  int
	Fanout      int
	SendTimeout time.Duration
	Log         *zap.Logger
}

// ProcessBatch runs one read-modify-write over a batch, retrying only on
// optimistic-write conflicts. Losing the race means another worker advanced
// the batch, so the retry re-reads and usually finds nothing left to do.
func (p *Processor) ProcessBatch(ctx context.Context, batchID string) error {
	operation := func() error {
		err := p.processOnce(ctx, batchID)
		if errors.Is(err, db.ErrVersionConflict) {
			metrics.ConflictRetries.Inc()
			p.Log.Debug("batch update conflict, retrying", zap.String("batch_id", batchID))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 15 * time.Second

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (p *Processor) processOnce(ctx context.Context, batchID string) error {
	batch, err := p.Store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("read batch: %w", err)
	}

	// Idempotency guard: a finished batch is skipped untouched, so duplicate
	// polling can never resend.
	if batch.Status == models.BatchSent || batch.ProcessedByWorker {
		p.Log.Debug("batch already processed, skipping", zap.String("batch_id", batch.ID))
		return nil
	}

	job, err := p.Store.GetJob(ctx, batch.JobID)
	if err != nil {
		return fmt.Errorf("read parent job: %w", err)
	}

	var eligible []int
	for i, r := range batch.Recipients {
		if r.Eligible(p.MaxRetries) {
			eligible = append(eligible, i)
		}
	}

	p.sendEligible(ctx, job, batch, eligible)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	batch.RecountTotals(p.MaxRetries)

	terminal := batch.Terminal(p.MaxRetries)
	if terminal {
		batch.Status = models.BatchSent
	} else {
		batch.Status = models.BatchRetryPending
	}
	batch.ProcessedByWorker = terminal

	now := time.Now().UTC()
	batch.LastProcessedAt = &now

	if err := p.Store.UpdateBatch(ctx, batch, batch.Version); err != nil {
		return err
	}

	p.Log.Info("batch processed",
		zap.String("batch_id", batch.ID),
		zap.String("job_id", batch.JobID),
		zap.String("status", string(batch.Status)),
		zap.Int("sent", batch.SentCount),
		zap.Int("failed", batch.FailedCount),
	)

	return nil
}

// sendEligible attempts delivery to each eligible recipient with bounded
// concurrency. Goroutines touch disjoint slice elements, so the final write
// back is a consistent snapshot without extra locking. A failed send only
// marks its own recipient; the failure waits for the next poll cycle rather
// than sleeping in process.
func (p *Processor) sendEligible(ctx context.Context, job *models.Job, batch *models.Batch, eligible []int) {
	g := new(errgroup.Group)
	g.SetLimit(p.Fanout)

	for _, idx := range eligible {
		r := &batch.Recipients[idx]

		g.Go(func() error {
			if err := p.Limiter.Wait(ctx); err != nil {
				return nil
			}

			sendCtx, cancel := context.WithTimeout(ctx, p.SendTimeout)
			defer cancel()

			msg := email.Message{
				To:      r.Email,
				ToName:  r.FullName,
				Subject: job.Subject,
				HTML:    render.Personalize(job.CompiledHTML, r.FullName),
			}

			if err := p.Transport.Send(sendCtx, msg); err != nil {
				r.Retries++
				r.LastError = err.Error()
				metrics.EmailFailures.Inc()

				p.Log.Warn("send failed",
					zap.String("batch_id", batch.ID),
					zap.String("to", r.Email),
					zap.Int("retries", r.Retries),
					zap.Int("max_retries", p.MaxRetries),
					zap.Error(err),
				)
				return nil
			}

			now := time.Now().UTC()
			r.Sent = true
			r.SentAt = &now
			r.LastError = ""
			metrics.EmailsSent.Inc()

			return nil
		})
	}

	_ = g.Wait()
}
