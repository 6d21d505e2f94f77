// Package realtime fans session lifecycle and membership events out to WebSocket viewers.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Event names published on a session channel.
const (
	EventSessionStarted    = "session_started"
	EventSessionEnded      = "session_ended"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventRecordingChanged  = "recording_changed"
)

// Broker carries events between instances.
type Broker interface {
	PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event string, payload []byte) error
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains session_id -> set of feed connections. With a Broker, events are
// published to Redis and every instance (this one included) delivers them from its
// subscription; without one, delivery is local.
type Hub struct {
	sessions map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	broker   Broker
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub. broker may be nil.
func NewHub(broker Broker, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		broker:   broker,
		logger:   logger,
	}
}

// Publish sends an event to every viewer of a session.
func (h *Hub) Publish(ctx context.Context, sessionID uuid.UUID, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if h.broker != nil {
		return h.broker.PublishSessionEvent(ctx, sessionID, event, payload)
	}
	h.Broadcast(sessionID, event, payload)
	return nil
}

// Register adds a client to a session feed. The first client of a session starts the
// broker subscription; the subscribe round-trip runs without holding the hub lock.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	first := h.sessions[c.SessionID] == nil
	if first {
		h.sessions[c.SessionID] = make(map[string]*Client)
	}
	h.sessions[c.SessionID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("viewer attached", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))

	if first && h.broker != nil {
		h.subscribe(c.SessionID)
	}
}

// subscribe opens the broker subscription for a session and keeps it only if the session
// still has viewers and no other subscription won in the meantime.
func (h *Hub) subscribe(sessionID uuid.UUID) {
	cancel, err := h.broker.SubscribeSession(sessionID, func(event string, payload []byte) {
		h.Broadcast(sessionID, event, payload)
	})
	if err != nil {
		h.logger.Warn("session subscription failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}

	h.mu.Lock()
	_, watched := h.sessions[sessionID]
	_, taken := h.subs[sessionID]
	if watched && !taken {
		h.subs[sessionID] = cancel
		cancel = nil
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Unregister removes a client from a session feed. Cancels the subscription when the
// last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.sessions[c.SessionID]
	if !ok {
		return
	}
	if _, ok := m[c.ID]; ok {
		delete(m, c.ID)
		close(c.send)
	}
	if len(m) == 0 {
		delete(h.sessions, c.SessionID)
		if cancel, ok := h.subs[c.SessionID]; ok {
			cancel()
			delete(h.subs, c.SessionID)
		}
	}
	h.logger.Debug("viewer detached", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// Broadcast delivers a message to local clients of a session. Slow clients whose buffer
// is full miss the message.
func (h *Hub) Broadcast(sessionID uuid.UUID, event string, payload []byte) {
	msg := WSMessage{Event: event, Data: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[sessionID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("viewer buffer full", zap.String("client_id", c.ID))
		}
	}
}

// ViewerCount returns the number of connected feed clients of a session on this instance.
func (h *Hub) ViewerCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
