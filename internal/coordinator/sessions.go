package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/internal/realtime"
	"github.com/btlivestream/backend/internal/sessions"
	"github.com/btlivestream/backend/pkg/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// CreateInput is a host's request for a new session. Nil fields take defaults.
type CreateInput struct {
	Title           string
	Description     *string
	ScheduledAt     *time.Time
	MaxParticipants *int
}

// Create makes a scheduled session owned by host.
func (s *Service) Create(ctx context.Context, host uuid.UUID, in CreateInput) (*models.Session, error) {
	p := sessions.CreateParams{
		HostID:          host,
		Title:           in.Title,
		MaxParticipants: s.maxDefault,
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.ScheduledAt != nil {
		p.ScheduledAt = in.ScheduledAt
	} else {
		now := s.now().UTC()
		p.ScheduledAt = &now
	}
	if in.MaxParticipants != nil {
		p.MaxParticipants = *in.MaxParticipants
	}

	created, err := s.sessions.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session created",
		zap.String("session_id", created.ID.String()), zap.String("room_code", created.RoomCode), zap.String("host_id", host.String()))
	return created, nil
}

// Get returns a session or NotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.NotFound("session not found")
	}
	return sess, nil
}

// GetByRoomCode returns the session behind a room code or NotFound.
func (s *Service) GetByRoomCode(ctx context.Context, code string) (*models.Session, error) {
	if !sessions.ValidRoomCode(sessions.NormalizeRoomCode(code)) {
		return nil, apperr.NotFound("session not found")
	}
	sess, err := s.sessions.GetByRoomCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.NotFound("session not found")
	}
	return sess, nil
}

// ListAll pages through every session. limit defaults to 50 and is capped at 200.
func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]models.SessionSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.sessions.ListAll(ctx, limit, offset)
}

// ListByHost returns the sessions host owns, newest first.
func (s *Service) ListByHost(ctx context.Context, host uuid.UUID) ([]models.Session, error) {
	return s.sessions.ListByHost(ctx, host)
}

// Start takes a session live. Restarting a live session keeps its started_at.
func (s *Service) Start(ctx context.Context, id, actor uuid.UUID) (*models.Session, error) {
	if err := s.precheck(ctx, id, actor, sessions.TransitionStart); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Start(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session started", zap.String("session_id", id.String()))
	s.publish(ctx, id, realtime.EventSessionStarted, sess)
	return sess, nil
}

// End closes a session for good and schedules its analytics archive.
func (s *Service) End(ctx context.Context, id, actor uuid.UUID) (*models.Session, error) {
	if err := s.precheck(ctx, id, actor, sessions.TransitionEnd); err != nil {
		return nil, err
	}
	sess, err := s.sessions.End(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session ended", zap.String("session_id", id.String()))
	s.publish(ctx, id, realtime.EventSessionEnded, sess)

	if s.exports != nil {
		payload := queue.AnalyticsExportPayload{SessionID: sess.ID, HostID: sess.HostID, EndedAt: s.now().UTC()}
		if sess.EndedAt != nil {
			payload.EndedAt = *sess.EndedAt
		}
		if err := s.exports.EnqueueAnalyticsExport(ctx, payload); err != nil {
			s.logger.Warn("analytics export not scheduled", zap.String("session_id", id.String()), zap.Error(err))
		}
	}
	return sess, nil
}

// SetRecording toggles the recording flag of a live session.
func (s *Service) SetRecording(ctx context.Context, id, actor uuid.UUID, recording bool) (*models.Session, error) {
	if err := s.precheck(ctx, id, actor, sessions.TransitionRecord); err != nil {
		return nil, err
	}
	sess, err := s.sessions.SetRecording(ctx, id, actor, recording)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, id, realtime.EventRecordingChanged, map[string]bool{"is_recording": sess.IsRecording})
	return sess, nil
}

// precheck reports authorization and state errors before any write. The store guards
// the same rules atomically, so a session changed in between is still rejected.
func (s *Service) precheck(ctx context.Context, id, actor uuid.UUID, t sessions.Transition) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return sessions.CheckTransition(sess, actor, t)
}
