package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/trybemarket/bulkmail/internal/metrics"
)

// Poller drives the processor on a fixed interval. One cycle claims at most
// MaxPerCycle batches, oldest first, and works through them sequentially;
// concurrency lives inside a batch, not across batches.
type Poller struct {
	Proc        *Processor
	Interval    time.Duration
	MaxPerCycle int
	Log         *zap.Logger
}

// Run polls until the context is cancelled. A failed cycle is logged and the
// next tick proceeds normally.
func (p *Poller) Run(ctx context.Context) {
	p.Log.Info("batch worker started",
		zap.Duration("interval", p.Interval),
		zap.Int("max_batches_per_cycle", p.MaxPerCycle),
	)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	// First cycle immediately rather than waiting one interval.
	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.Log.Info("batch worker stopping")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if n, err := p.Cycle(ctx); err != nil {
		p.Log.Error("worker cycle failed", zap.Error(err))
	} else if n > 0 {
		p.Log.Info("worker cycle complete", zap.Int("batches", n))
	}
}

// Cycle runs one poll iteration and returns how many batches it attempted.
func (p *Poller) Cycle(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(metrics.CycleDuration)
	defer timer.ObserveDuration()

	due, err := p.Proc.Store.DuePendingBatches(ctx, p.MaxPerCycle)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, b := range due {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		if err := p.Proc.ProcessBatch(ctx, b.ID); err != nil {
			// One broken batch must not block its siblings.
			metrics.BatchesProcessed.WithLabelValues("error").Inc()
			p.Log.Error("batch processing failed",
				zap.String("batch_id", b.ID),
				zap.Error(err),
			)
			continue
		}

		metrics.BatchesProcessed.WithLabelValues("ok").Inc()
		processed++
	}

	return processed, nil
}
