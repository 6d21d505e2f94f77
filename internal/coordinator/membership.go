package coordinator

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/internal/realtime"
)

// JoinResult echoes the session next to the caller's membership.
type JoinResult struct {
	Session     *models.Session     `json:"session"`
	Participant *models.Participant `json:"participant"`
}

type presenceEvent struct {
	UserID             uuid.UUID `json:"user_id"`
	Name               *string   `json:"name,omitempty"`
	ActiveParticipants int       `json:"active_participants"`
}

// Join adds user to a scheduled or live session. Joining again while active refreshes
// the membership. A user who is not already active is turned away once the session
// holds max_participants active members.
func (s *Service) Join(ctx context.Context, sessionID, user uuid.UUID) (*JoinResult, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Status.Joinable() {
		return nil, apperr.Conflict("session is not available to join")
	}

	current, err := s.members.Get(ctx, sessionID, user)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.IsActive {
		n, err := s.members.CountActive(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if n >= sess.MaxParticipants {
			return nil, apperr.Conflict("session is full")
		}
	}

	p, err := s.members.Join(ctx, sessionID, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("participant joined", zap.String("session_id", sessionID.String()), zap.String("user_id", user.String()))
	s.publishPresence(ctx, sessionID, realtime.EventParticipantJoined, p)
	return &JoinResult{Session: sess, Participant: p}, nil
}

// Leave soft-closes the user's membership. Leaving without an active membership is a
// no-op and returns nil.
func (s *Service) Leave(ctx context.Context, sessionID, user uuid.UUID) (*models.Participant, error) {
	p, err := s.members.Leave(ctx, sessionID, user)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	s.logger.Info("participant left", zap.String("session_id", sessionID.String()), zap.String("user_id", user.String()))
	s.publishPresence(ctx, sessionID, realtime.EventParticipantLeft, p)
	return p, nil
}

// ListParticipants returns a session's active members, most recently joined first.
func (s *Service) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.members.ListActive(ctx, sessionID)
}

func (s *Service) publishPresence(ctx context.Context, sessionID uuid.UUID, event string, p *models.Participant) {
	if s.publisher == nil {
		return
	}
	n, err := s.members.CountActive(ctx, sessionID)
	if err != nil {
		s.logger.Debug("active count unavailable for feed event", zap.Error(err))
	}
	s.publish(ctx, sessionID, event, presenceEvent{UserID: p.UserID, Name: p.Name, ActiveParticipants: n})
}
