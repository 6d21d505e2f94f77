package coordinator

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/btlivestream/backend/internal/analytics"
	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
)

// ExportLink is a time-limited download link for a session's analytics archive.
type ExportLink struct {
	URL string `json:"url"`
}

// Track records one event on behalf of user.
func (s *Service) Track(ctx context.Context, user uuid.UUID, in analytics.EventInput) (*models.AnalyticsEvent, error) {
	return s.analytics.Record(ctx, &user, in)
}

// BatchTrack records each event independently and reports a per-event tally.
func (s *Service) BatchTrack(ctx context.Context, user uuid.UUID, events []json.RawMessage) (*analytics.BatchResult, error) {
	return s.analytics.RecordBatch(ctx, &user, events)
}

// SessionAnalytics returns every event of a session, newest first.
func (s *Service) SessionAnalytics(ctx context.Context, sessionID uuid.UUID) ([]models.AnalyticsEvent, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.analytics.ListForSession(ctx, sessionID)
}

// Stats combines the analytics aggregate with the live participant count, the session
// duration and its status. Duration is absent until the session has started.
func (s *Service) Stats(ctx context.Context, sessionID uuid.UUID) (*models.SessionStats, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	agg, err := s.analytics.AggregateForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	active, err := s.members.CountActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats := &models.SessionStats{
		SessionAggregate:    *agg,
		CurrentParticipants: active,
		SessionStatus:       sess.Status,
	}
	if d, ok := sess.Duration(s.now()); ok {
		secs := int64(d.Seconds())
		stats.SessionDurationSeconds = &secs
	}
	return stats, nil
}

// UserAnalytics returns the caller's most recent events.
func (s *Service) UserAnalytics(ctx context.Context, user uuid.UUID, limit int) ([]models.AnalyticsEvent, error) {
	return s.analytics.ListForUser(ctx, user, limit)
}

// ExportURL returns a download link for an ended session's archive. Host only.
func (s *Service) ExportURL(ctx context.Context, sessionID, actor uuid.UUID) (*ExportLink, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsHost(actor) {
		return nil, apperr.Forbidden("only the host can export analytics")
	}
	if s.archive == nil {
		return nil, apperr.NotFound("analytics export is not enabled")
	}
	url, ok, err := s.archive.AnalyticsExportURL(ctx, sessionID.String())
	if err != nil {
		return nil, apperr.Transient("locate analytics export", err)
	}
	if !ok {
		return nil, apperr.NotFound("analytics export is not ready yet")
	}
	return &ExportLink{URL: url}, nil
}
