// Package worker runs background jobs pulled from the Redis queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/pkg/queue"
)

// SessionSource loads the session an archive describes.
type SessionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// EventSource loads a session's analytics.
type EventSource interface {
	ListForSession(ctx context.Context, sessionID uuid.UUID) ([]models.AnalyticsEvent, error)
	AggregateForSession(ctx context.Context, sessionID uuid.UUID) (*models.SessionAggregate, error)
}

// ArchiveStore writes serialized archives.
type ArchiveStore interface {
	PutAnalyticsExport(ctx context.Context, sessionID string, doc []byte) (string, error)
}

// JobSource hands out jobs and takes back failed ones.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Archive is the document stored for an ended session.
type Archive struct {
	Session    *models.Session          `json:"session"`
	ExportedAt time.Time                `json:"exported_at"`
	Aggregate  *models.SessionAggregate `json:"aggregate"`
	Events     []models.AnalyticsEvent  `json:"events"`
}

// ExportProcessor writes analytics archives for ended sessions.
type ExportProcessor struct {
	sessions SessionSource
	events   EventSource
	store    ArchiveStore
	jobs     JobSource
	logger   *zap.Logger
	backoff  time.Duration
	now      func() time.Time
}

// NewExportProcessor creates an analytics export processor.
func NewExportProcessor(sessions SessionSource, events EventSource, store ArchiveStore, jobs JobSource, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{
		sessions: sessions,
		events:   events,
		store:    store,
		jobs:     jobs,
		logger:   logger,
		backoff:  queue.RetryBackoff,
		now:      time.Now,
	}
}

// Process executes one analytics export job. Jobs for sessions that no longer exist are
// dropped.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAnalyticsExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AnalyticsExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	session, err := p.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		p.logger.Info("export skipped, session gone", zap.String("session_id", payload.SessionID.String()))
		return nil
	}
	if session.Status != models.StatusEnded {
		return fmt.Errorf("session %s is %s, not ended", session.ID, session.Status)
	}

	events, err := p.events.ListForSession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	agg, err := p.events.AggregateForSession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("aggregate events: %w", err)
	}

	doc, err := json.Marshal(Archive{Session: session, ExportedAt: p.now().UTC(), Aggregate: agg, Events: events})
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	key, err := p.store.PutAnalyticsExport(ctx, session.ID.String(), doc)
	if err != nil {
		return fmt.Errorf("store archive: %w", err)
	}

	p.logger.Info("analytics export completed", zap.String("session_id", session.ID.String()), zap.String("s3_key", key), zap.Int("events", len(events)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("analytics export worker stopping")
			return
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
