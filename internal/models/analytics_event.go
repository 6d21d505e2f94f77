package models

import (
	"time"

	"github.com/google/uuid"
)

// EventPayload is the free-form document attached to an analytics event.
// Values are whatever JSON decodes to: strings, float64, bool, nil, nested maps and slices.
type EventPayload map[string]any

// QualitySnapshot holds the optional per-event call quality sample. Every field is
// independently nullable.
type QualitySnapshot struct {
	VideoQuality         *string  `json:"video_quality,omitempty"`
	AudioQuality         *string  `json:"audio_quality,omitempty"`
	ConnectionType       *string  `json:"connection_type,omitempty"`
	BandwidthKbps        *int     `json:"bandwidth_kbps,omitempty"`
	LatencyMs            *int     `json:"latency_ms,omitempty"`
	PacketLossPercentage *float64 `json:"packet_loss_percentage,omitempty"`
}

// AnalyticsEvent is one append-only telemetry row.
type AnalyticsEvent struct {
	ID        int64        `json:"id"`
	SessionID uuid.UUID    `json:"session_id"`
	UserID    *uuid.UUID   `json:"user_id,omitempty"`
	UserName  *string      `json:"user_name,omitempty"`
	UserEmail *string      `json:"user_email,omitempty"`
	EventType string       `json:"event_type"`
	EventData EventPayload `json:"event_data,omitempty"`
	QualitySnapshot
	Timestamp time.Time `json:"timestamp"`
}

// SessionAggregate is computed over all events of a session. Averages ignore null
// samples and are nil when no sample exists.
type SessionAggregate struct {
	UniqueUsers   int      `json:"unique_users"`
	AvgBandwidth  *float64 `json:"avg_bandwidth"`
	AvgLatency    *float64 `json:"avg_latency"`
	AvgPacketLoss *float64 `json:"avg_packet_loss"`
	TotalEvents   int      `json:"total_events"`
}

// SessionStats combines the analytics aggregate with live session state.
type SessionStats struct {
	SessionAggregate
	CurrentParticipants    int           `json:"current_participants"`
	SessionDurationSeconds *int64        `json:"session_duration"`
	SessionStatus          SessionStatus `json:"session_status"`
}
