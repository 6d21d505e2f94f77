// Package coordinator enforces lifecycle and authorization rules across the session
// store, the membership tracker and the analytics collector, and exposes them over HTTP.
package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/internal/analytics"
	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/internal/sessions"
	"github.com/btlivestream/backend/pkg/queue"
)

// SessionStore is the durable session record. Reads return nil, nil when absent.
type SessionStore interface {
	Create(ctx context.Context, p sessions.CreateParams) (*models.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByRoomCode(ctx context.Context, code string) (*models.Session, error)
	ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Session, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.SessionSummary, error)
	Start(ctx context.Context, id, actor uuid.UUID) (*models.Session, error)
	End(ctx context.Context, id, actor uuid.UUID) (*models.Session, error)
	SetRecording(ctx context.Context, id, actor uuid.UUID, recording bool) (*models.Session, error)
}

// MembershipTracker records who is or was present in a session.
type MembershipTracker interface {
	Join(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	Leave(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	ListActive(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	CountActive(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// AnalyticsCollector ingests and aggregates call telemetry.
type AnalyticsCollector interface {
	Record(ctx context.Context, userID *uuid.UUID, in analytics.EventInput) (*models.AnalyticsEvent, error)
	RecordBatch(ctx context.Context, userID *uuid.UUID, events []json.RawMessage) (*analytics.BatchResult, error)
	ListForSession(ctx context.Context, sessionID uuid.UUID) ([]models.AnalyticsEvent, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AnalyticsEvent, error)
	AggregateForSession(ctx context.Context, sessionID uuid.UUID) (*models.SessionAggregate, error)
}

// EventPublisher fans session events out to live viewers.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, event string, data any) error
}

// ExportScheduler queues analytics archive jobs.
type ExportScheduler interface {
	EnqueueAnalyticsExport(ctx context.Context, payload queue.AnalyticsExportPayload) error
}

// ExportLocator resolves download links for analytics archives.
type ExportLocator interface {
	AnalyticsExportURL(ctx context.Context, sessionID string) (url string, ok bool, err error)
}

// Options configures a Service. Publisher, Exports and Archive are optional.
type Options struct {
	DefaultMaxParticipants int
	Publisher              EventPublisher
	Exports                ExportScheduler
	Archive                ExportLocator
	Logger                 *zap.Logger
	Now                    func() time.Time
}

// Service is the session coordinator.
type Service struct {
	sessions   SessionStore
	members    MembershipTracker
	analytics  AnalyticsCollector
	publisher  EventPublisher
	exports    ExportScheduler
	archive    ExportLocator
	maxDefault int
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a coordinator over the three stores.
func NewService(store SessionStore, members MembershipTracker, collector AnalyticsCollector, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultMaxParticipants <= 0 {
		opts.DefaultMaxParticipants = 100
	}
	return &Service{
		sessions:   store,
		members:    members,
		analytics:  collector,
		publisher:  opts.Publisher,
		exports:    opts.Exports,
		archive:    opts.Archive,
		maxDefault: opts.DefaultMaxParticipants,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// publish is best effort: a lost feed event never fails the operation that caused it.
func (s *Service) publish(ctx context.Context, sessionID uuid.UUID, event string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, sessionID, event, data); err != nil {
		s.logger.Warn("session event not published",
			zap.String("session_id", sessionID.String()), zap.String("event", event), zap.Error(err))
	}
}
