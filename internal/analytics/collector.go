// Package analytics ingests per-event call telemetry and aggregates it per session.
package analytics

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
)

const (
	maxEventTypeLen  = 100
	maxQualityTagLen = 50
)

// EventInput is one tracked event as received from a client. Numeric quality fields are
// left untyped so that strings and numbers are both accepted.
type EventInput struct {
	SessionID            string          `json:"session_id"`
	EventType            string          `json:"event_type"`
	EventData            json.RawMessage `json:"event_data,omitempty"`
	VideoQuality         *string         `json:"video_quality,omitempty"`
	AudioQuality         *string         `json:"audio_quality,omitempty"`
	ConnectionType       *string         `json:"connection_type,omitempty"`
	BandwidthKbps        any             `json:"bandwidth_kbps,omitempty"`
	LatencyMs            any             `json:"latency_ms,omitempty"`
	PacketLossPercentage any             `json:"packet_loss_percentage,omitempty"`
	Timestamp            *time.Time      `json:"timestamp,omitempty"`
}

// EventStore persists and aggregates analytics events.
type EventStore interface {
	Insert(ctx context.Context, e *models.AnalyticsEvent) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AnalyticsEvent, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AnalyticsEvent, error)
	Aggregate(ctx context.Context, sessionID uuid.UUID) (*models.SessionAggregate, error)
}

// Limits bounds user queries and batch sizes.
type Limits struct {
	UserDefault int
	UserMax     int
	BatchMax    int
}

// DefaultLimits are used for any zero field of the Limits passed to NewCollector.
var DefaultLimits = Limits{UserDefault: 100, UserMax: 1000, BatchMax: 500}

// BatchItemResult reports the outcome of one event in a batch.
type BatchItemResult struct {
	Index   int                    `json:"index"`
	Success bool                   `json:"success"`
	Event   *models.AnalyticsEvent `json:"event,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Kind    apperr.Kind            `json:"kind,omitempty"`
}

// BatchResult is the per-event tally of RecordBatch.
type BatchResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BatchItemResult `json:"results"`
}

// Collector validates and records analytics events.
type Collector struct {
	store  EventStore
	limits Limits
	logger *zap.Logger
}

// NewCollector creates a collector over store.
func NewCollector(store EventStore, limits Limits, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.UserDefault <= 0 {
		limits.UserDefault = DefaultLimits.UserDefault
	}
	if limits.UserMax <= 0 {
		limits.UserMax = DefaultLimits.UserMax
	}
	if limits.BatchMax <= 0 {
		limits.BatchMax = DefaultLimits.BatchMax
	}
	return &Collector{store: store, limits: limits, logger: logger}
}

// Record validates in and appends it to the log. userID may be nil.
func (c *Collector) Record(ctx context.Context, userID *uuid.UUID, in EventInput) (*models.AnalyticsEvent, error) {
	e, err := buildEvent(userID, in)
	if err != nil {
		return nil, err
	}
	if err := c.store.Insert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RecordBatch records each raw event independently. A malformed or failing event is
// reported in its result and does not stop the rest of the batch.
func (c *Collector) RecordBatch(ctx context.Context, userID *uuid.UUID, events []json.RawMessage) (*BatchResult, error) {
	if len(events) == 0 {
		return nil, apperr.Validation("events array is required")
	}
	if len(events) > c.limits.BatchMax {
		return nil, apperr.Validation("batch exceeds %d events", c.limits.BatchMax)
	}

	res := &BatchResult{Total: len(events), Results: make([]BatchItemResult, 0, len(events))}
	for i, raw := range events {
		item := BatchItemResult{Index: i}
		var in EventInput
		var err error
		if uerr := json.Unmarshal(raw, &in); uerr != nil {
			err = apperr.Validation("malformed event: %v", uerr)
		} else {
			item.Event, err = c.Record(ctx, userID, in)
		}
		if err != nil {
			item.Error = err.Error()
			item.Kind = apperr.KindOf(err)
			res.Failed++
			c.logger.Debug("batch event rejected", zap.Int("index", i), zap.Error(err))
		} else {
			item.Success = true
			res.Succeeded++
		}
		res.Results = append(res.Results, item)
	}
	return res, nil
}

// ListForSession returns a session's events, newest first.
func (c *Collector) ListForSession(ctx context.Context, sessionID uuid.UUID) ([]models.AnalyticsEvent, error) {
	return c.store.ListBySession(ctx, sessionID)
}

// ListForUser returns a user's most recent events. limit is clamped to [1, UserMax];
// a non-positive limit uses UserDefault.
func (c *Collector) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AnalyticsEvent, error) {
	return c.store.ListByUser(ctx, userID, c.clampLimit(limit))
}

func (c *Collector) clampLimit(limit int) int {
	if limit <= 0 {
		return c.limits.UserDefault
	}
	if limit > c.limits.UserMax {
		return c.limits.UserMax
	}
	return limit
}

// AggregateForSession computes unique users, average quality samples and event count.
func (c *Collector) AggregateForSession(ctx context.Context, sessionID uuid.UUID) (*models.SessionAggregate, error) {
	return c.store.Aggregate(ctx, sessionID)
}

func buildEvent(userID *uuid.UUID, in EventInput) (*models.AnalyticsEvent, error) {
	sid := strings.TrimSpace(in.SessionID)
	eventType := strings.TrimSpace(in.EventType)
	if sid == "" || eventType == "" {
		return nil, apperr.Validation("session_id and event_type are required")
	}
	sessionID, err := uuid.Parse(sid)
	if err != nil {
		return nil, apperr.Validation("invalid session_id")
	}
	if len(eventType) > maxEventTypeLen {
		return nil, apperr.Validation("event_type exceeds %d characters", maxEventTypeLen)
	}
	payload, err := decodePayload(in.EventData)
	if err != nil {
		return nil, apperr.Validation("invalid event_data")
	}

	q := models.QualitySnapshot{
		VideoQuality:         optionalTag(in.VideoQuality),
		AudioQuality:         optionalTag(in.AudioQuality),
		ConnectionType:       optionalTag(in.ConnectionType),
		BandwidthKbps:        coerceInt(in.BandwidthKbps),
		LatencyMs:            coerceInt(in.LatencyMs),
		PacketLossPercentage: coercePercent(in.PacketLossPercentage),
	}
	for name, tag := range map[string]*string{"video_quality": q.VideoQuality, "audio_quality": q.AudioQuality, "connection_type": q.ConnectionType} {
		if tag != nil && len(*tag) > maxQualityTagLen {
			return nil, apperr.Validation("%s exceeds %d characters", name, maxQualityTagLen)
		}
	}

	e := &models.AnalyticsEvent{
		SessionID:       sessionID,
		UserID:          userID,
		EventType:       eventType,
		EventData:       payload,
		QualitySnapshot: q,
	}
	if in.Timestamp != nil {
		e.Timestamp = in.Timestamp.UTC()
	}
	return e, nil
}
