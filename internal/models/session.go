package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a livestream session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusLive      SessionStatus = "live"
	StatusEnded     SessionStatus = "ended"
)

// Joinable reports whether participants may join a session in this status.
func (s SessionStatus) Joinable() bool {
	return s == StatusScheduled || s == StatusLive
}

// Session is a livestream session. RoomCode is the human-shareable code; ID is internal.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	RoomCode        string        `json:"room_code"`
	HostID          uuid.UUID     `json:"host_id"`
	HostName        *string       `json:"host_name,omitempty"`
	HostEmail       *string       `json:"host_email,omitempty"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Status          SessionStatus `json:"status"`
	ScheduledAt     *time.Time    `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	MaxParticipants int           `json:"max_participants"`
	IsRecording     bool          `json:"is_recording"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsHost reports whether actor owns the session.
func (s *Session) IsHost(actor uuid.UUID) bool {
	return s.HostID == actor
}

// Duration returns ended_at - started_at, or now - started_at while still running.
// ok is false when the session never started.
func (s *Session) Duration(now time.Time) (d time.Duration, ok bool) {
	if s.StartedAt == nil {
		return 0, false
	}
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(*s.StartedAt), true
}

// SessionSummary is a list row: the session plus its current active participant count.
type SessionSummary struct {
	Session
	ActiveParticipants int `json:"active_participants"`
}
