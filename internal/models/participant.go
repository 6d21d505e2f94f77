package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a membership row, unique per (session, user). Leaving soft-closes the row.
type Participant struct {
	ID        int64      `json:"id"`
	SessionID uuid.UUID  `json:"session_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Name      *string    `json:"name,omitempty"`
	Email     *string    `json:"email,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
	IsActive  bool       `json:"is_active"`
}
