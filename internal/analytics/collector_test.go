package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
)

type memStore struct {
	events    []models.AnalyticsEvent
	failOn    string
	lastLimit int
}

func (m *memStore) Insert(_ context.Context, e *models.AnalyticsEvent) error {
	if m.failOn != "" && e.EventType == m.failOn {
		return apperr.Transient("insert analytics event", errors.New("connection reset"))
	}
	e.ID = int64(len(m.events) + 1)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.AnalyticsEvent, error) {
	var out []models.AnalyticsEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].SessionID == sessionID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *memStore) ListByUser(_ context.Context, _ uuid.UUID, limit int) ([]models.AnalyticsEvent, error) {
	m.lastLimit = limit
	return nil, nil
}

func (m *memStore) Aggregate(context.Context, uuid.UUID) (*models.SessionAggregate, error) {
	return &models.SessionAggregate{}, nil
}

func TestCollectorRecord(t *testing.T) {
	store := &memStore{}
	c := NewCollector(store, Limits{}, nil)
	user := uuid.New()
	session := uuid.New()
	video := " 720p "

	e, err := c.Record(context.Background(), &user, EventInput{
		SessionID:            session.String(),
		EventType:            "quality_sample",
		EventData:            json.RawMessage(`{"codec":"vp8"}`),
		VideoQuality:         &video,
		BandwidthKbps:        "1200",
		LatencyMs:            "not-a-number",
		PacketLossPercentage: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.ID)
	assert.Equal(t, session, e.SessionID)
	assert.Equal(t, &user, e.UserID)
	assert.Equal(t, "720p", *e.VideoQuality)
	assert.Equal(t, 1200, *e.BandwidthKbps)
	assert.Nil(t, e.LatencyMs, "uncoercible samples become null")
	assert.Equal(t, 0.5, *e.PacketLossPercentage)
	assert.Equal(t, "vp8", e.EventData["codec"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestCollectorRecordOutOfRangeSample(t *testing.T) {
	store := &memStore{}
	c := NewCollector(store, Limits{}, nil)

	var in EventInput
	require.NoError(t, json.Unmarshal([]byte(`{
		"session_id": "`+uuid.NewString()+`",
		"event_type": "quality_sample",
		"bandwidth_kbps": 5e9,
		"latency_ms": "040"
	}`), &in))

	e, err := c.Record(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Nil(t, e.BandwidthKbps, "values beyond the integer column become null")
	require.NotNil(t, e.LatencyMs)
	assert.Equal(t, 40, *e.LatencyMs)
	assert.Len(t, store.events, 1)
}

func TestCollectorRecordValidation(t *testing.T) {
	c := NewCollector(&memStore{}, Limits{}, nil)
	long := strings.Repeat("x", 51)
	tests := []struct {
		name string
		in   EventInput
	}{
		{"missing session", EventInput{EventType: "join"}},
		{"missing event type", EventInput{SessionID: uuid.NewString()}},
		{"blank event type", EventInput{SessionID: uuid.NewString(), EventType: "  "}},
		{"bad session id", EventInput{SessionID: "42", EventType: "join"}},
		{"long tag", EventInput{SessionID: uuid.NewString(), EventType: "join", ConnectionType: &long}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Record(context.Background(), nil, tt.in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestCollectorRecordKeepsClientTimestamp(t *testing.T) {
	c := NewCollector(&memStore{}, Limits{}, nil)
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	e, err := c.Record(context.Background(), nil, EventInput{SessionID: uuid.NewString(), EventType: "join", Timestamp: &at})
	require.NoError(t, err)
	assert.True(t, at.Equal(e.Timestamp))
	assert.Nil(t, e.UserID)
}

func TestCollectorRecordBatchPartialSuccess(t *testing.T) {
	store := &memStore{}
	c := NewCollector(store, Limits{}, nil)
	session := uuid.NewString()
	user := uuid.New()

	events := []json.RawMessage{
		json.RawMessage(`{"session_id":"` + session + `","event_type":"join","bandwidth_kbps":100}`),
		json.RawMessage(`{"session_id":"` + session + `"}`),
		json.RawMessage(`{"session_id":"` + session + `","event_type":"leave"}`),
	}
	res, err := c.RecordBatch(context.Background(), &user, events)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	assert.Equal(t, apperr.KindValidation, res.Results[1].Kind)
	assert.NotEmpty(t, res.Results[1].Error)
	assert.True(t, res.Results[2].Success)
	assert.Equal(t, 2, res.Results[2].Index)
	assert.Len(t, store.events, 2)
}

func TestCollectorRecordBatchContinuesAfterStoreFailure(t *testing.T) {
	store := &memStore{failOn: "boom"}
	c := NewCollector(store, Limits{}, nil)
	session := uuid.NewString()

	res, err := c.RecordBatch(context.Background(), nil, []json.RawMessage{
		json.RawMessage(`{"session_id":"` + session + `","event_type":"boom"}`),
		json.RawMessage(`not json`),
		json.RawMessage(`{"session_id":"` + session + `","event_type":"ok"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, apperr.KindTransient, res.Results[0].Kind)
	assert.Equal(t, apperr.KindValidation, res.Results[1].Kind)
	assert.True(t, res.Results[2].Success)
}

func TestCollectorRecordBatchBounds(t *testing.T) {
	c := NewCollector(&memStore{}, Limits{BatchMax: 2}, nil)

	_, err := c.RecordBatch(context.Background(), nil, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = c.RecordBatch(context.Background(), nil, make([]json.RawMessage, 3))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCollectorListForUserClampsLimit(t *testing.T) {
	store := &memStore{}
	c := NewCollector(store, Limits{UserDefault: 100, UserMax: 1000}, nil)
	ctx := context.Background()

	tests := []struct{ in, want int }{{0, 100}, {-3, 100}, {25, 25}, {5000, 1000}}
	for _, tt := range tests {
		_, err := c.ListForUser(ctx, uuid.New(), tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, store.lastLimit, "limit %d", tt.in)
	}
}
