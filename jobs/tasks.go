package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/docuvault/docuvault/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentExpirySweep moves documents past their expiry to EXPIRED.
	TaskDocumentExpirySweep = "documents:expiry_sweep"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ExpirySweeper expires overdue documents. Implemented by documents.Service.
type ExpirySweeper interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// IdempotencyCleaner prunes processed keys past their retention.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewExpirySweepTask constructs the expiry sweep task.
func NewExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TaskDocumentExpirySweep, nil)
}

// IdempotencyCleanupPayload carries the retention window for cleanup runs.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// HandleExpirySweep returns the handler for TaskDocumentExpirySweep. The
// metrics argument may be nil.
func HandleExpirySweep(sweeper ExpirySweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskDocumentExpirySweep)
		expired, err := sweeper.ExpireOverdue(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("expiry sweep", slog.Any("error", err))
			return tracker.End(err)
		}
		if expired > 0 {
			logger.Info("expiry sweep", slog.Int("expired", expired))
			metrics.AddExpired(expired)
		}
		return tracker.End(nil)
	}
}

// HandleIdempotencyCleanup returns the handler for TaskIdempotencyCleanup. The
// metrics argument may be nil.
func HandleIdempotencyCleanup(cleaner IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskIdempotencyCleanup)
		payload := IdempotencyCleanupPayload{RetentionHours: 24}
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return tracker.End(asynq.SkipRetry)
			}
		}
		if payload.RetentionHours <= 0 {
			payload.RetentionHours = 24
		}
		if err := cleaner.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour); err != nil {
			logger.Error("idempotency cleanup", slog.Any("error", err))
			return tracker.End(err)
		}
		return tracker.End(nil)
	}
}
