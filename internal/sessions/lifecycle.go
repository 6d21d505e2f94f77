package sessions

import (
	"github.com/google/uuid"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
)

// Transition is a host-only action on a session.
type Transition string

const (
	TransitionStart  Transition = "start"
	TransitionEnd    Transition = "end"
	TransitionRecord Transition = "record"
)

// CheckTransition reports whether actor may apply t to s. The state machine is
// scheduled|live -start-> live, scheduled|live -end-> ended; ended is terminal and the
// recording flag only changes while live. Only the host may act.
func CheckTransition(s *models.Session, actor uuid.UUID, t Transition) error {
	if !s.IsHost(actor) {
		if t == TransitionRecord {
			return apperr.Forbidden("only the host can change recording")
		}
		return apperr.Forbidden("only the host can %s the session", t)
	}
	if s.Status == models.StatusEnded {
		return apperr.Conflict("session has already ended")
	}
	if t == TransitionRecord && s.Status != models.StatusLive {
		return apperr.Conflict("recording can only change while the session is live")
	}
	return nil
}
