package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/internal/sessions"
	"github.com/btlivestream/backend/pkg/queue"
)

// clock is a manually advanced time source shared by the fakes and the service.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memSessions struct {
	mu    sync.Mutex
	clock *clock
	rows  map[uuid.UUID]*models.Session
	seq   int
}

func newMemSessions(c *clock) *memSessions {
	return &memSessions{clock: c, rows: map[uuid.UUID]*models.Session{}}
}

func (m *memSessions) Create(_ context.Context, p sessions.CreateParams) (*models.Session, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, apperr.Validation("session title is required")
	}
	if p.MaxParticipants < 1 {
		return nil, apperr.Validation("max_participants must be at least 1")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	code, err := sessions.NewRoomCode()
	if err != nil {
		return nil, err
	}
	m.seq++
	now := m.clock.Now().Add(time.Duration(m.seq) * time.Microsecond)
	s := &models.Session{
		ID:              uuid.New(),
		RoomCode:        code,
		HostID:          p.HostID,
		Title:           strings.TrimSpace(p.Title),
		Description:     p.Description,
		Status:          models.StatusScheduled,
		ScheduledAt:     p.ScheduledAt,
		MaxParticipants: p.MaxParticipants,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.rows[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *memSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *memSessions) GetByRoomCode(_ context.Context, code string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = sessions.NormalizeRoomCode(code)
	for _, s := range m.rows {
		if s.RoomCode == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSessions) sorted() []models.Session {
	list := make([]models.Session, 0, len(m.rows))
	for _, s := range m.rows {
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

func (m *memSessions) ListByHost(_ context.Context, host uuid.UUID) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sorted() {
		if s.HostID == host {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessions) ListAll(_ context.Context, limit, offset int) ([]models.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SessionSummary{}
	for i, s := range m.sorted() {
		if i >= offset && len(out) < limit {
			out = append(out, models.SessionSummary{Session: s})
		}
	}
	return out, nil
}

func (m *memSessions) apply(id, actor uuid.UUID, t sessions.Transition, fn func(s *models.Session, now time.Time)) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("session not found")
	}
	if err := sessions.CheckTransition(s, actor, t); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	fn(s, now)
	s.UpdatedAt = now
	cp := *s
	return &cp, nil
}

func (m *memSessions) Start(_ context.Context, id, actor uuid.UUID) (*models.Session, error) {
	return m.apply(id, actor, sessions.TransitionStart, func(s *models.Session, now time.Time) {
		s.Status = models.StatusLive
		if s.StartedAt == nil {
			s.StartedAt = &now
		}
	})
}

func (m *memSessions) End(_ context.Context, id, actor uuid.UUID) (*models.Session, error) {
	return m.apply(id, actor, sessions.TransitionEnd, func(s *models.Session, now time.Time) {
		s.Status = models.StatusEnded
		s.IsRecording = false
		if s.EndedAt == nil {
			s.EndedAt = &now
		}
	})
}

func (m *memSessions) SetRecording(_ context.Context, id, actor uuid.UUID, recording bool) (*models.Session, error) {
	return m.apply(id, actor, sessions.TransitionRecord, func(s *models.Session, _ time.Time) {
		s.IsRecording = recording
	})
}

type memMembers struct {
	mu    sync.Mutex
	clock *clock
	rows  map[[2]uuid.UUID]*models.Participant
	seq   int64
	known func(uuid.UUID) bool
}

func newMemMembers(c *clock, known func(uuid.UUID) bool) *memMembers {
	return &memMembers{clock: c, rows: map[[2]uuid.UUID]*models.Participant{}, known: known}
}

func (m *memMembers) Join(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	if !m.known(sessionID) {
		return nil, apperr.NotFound("session or user not found")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	now := m.clock.Now().Add(time.Duration(m.seq) * time.Microsecond)
	key := [2]uuid.UUID{sessionID, userID}
	p, ok := m.rows[key]
	if !ok {
		p = &models.Participant{ID: m.seq, SessionID: sessionID, UserID: userID}
		m.rows[key] = p
	}
	p.JoinedAt = now
	p.LeftAt = nil
	p.IsActive = true
	cp := *p
	return &cp, nil
}

func (m *memMembers) Leave(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[[2]uuid.UUID{sessionID, userID}]
	if !ok || !p.IsActive {
		return nil, nil
	}
	now := m.clock.Now()
	p.IsActive = false
	p.LeftAt = &now
	cp := *p
	return &cp, nil
}

func (m *memMembers) Get(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[[2]uuid.UUID{sessionID, userID}]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memMembers) ListActive(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Participant{}
	for _, p := range m.rows {
		if p.SessionID == sessionID && p.IsActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	return out, nil
}

func (m *memMembers) CountActive(ctx context.Context, sessionID uuid.UUID) (int, error) {
	list, err := m.ListActive(ctx, sessionID)
	return len(list), err
}

type memEvents struct {
	mu     sync.Mutex
	clock  *clock
	events []models.AnalyticsEvent
	known  func(uuid.UUID) bool
}

func (m *memEvents) Insert(_ context.Context, e *models.AnalyticsEvent) error {
	if !m.known(e.SessionID) {
		return apperr.NotFound("session not found")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	if e.Timestamp.IsZero() {
		e.Timestamp = m.clock.Now().Add(time.Duration(e.ID) * time.Microsecond)
	}
	m.events = append(m.events, *e)
	return nil
}

func (m *memEvents) filter(keep func(models.AnalyticsEvent) bool) []models.AnalyticsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AnalyticsEvent{}
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (m *memEvents) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.AnalyticsEvent, error) {
	return m.filter(func(e models.AnalyticsEvent) bool { return e.SessionID == sessionID }), nil
}

func (m *memEvents) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]models.AnalyticsEvent, error) {
	out := m.filter(func(e models.AnalyticsEvent) bool { return e.UserID != nil && *e.UserID == userID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memEvents) Aggregate(ctx context.Context, sessionID uuid.UUID) (*models.SessionAggregate, error) {
	events, _ := m.ListBySession(ctx, sessionID)
	agg := &models.SessionAggregate{TotalEvents: len(events)}
	users := map[uuid.UUID]bool{}
	var bw, lat, loss []float64
	for _, e := range events {
		if e.UserID != nil {
			users[*e.UserID] = true
		}
		if e.BandwidthKbps != nil {
			bw = append(bw, float64(*e.BandwidthKbps))
		}
		if e.LatencyMs != nil {
			lat = append(lat, float64(*e.LatencyMs))
		}
		if e.PacketLossPercentage != nil {
			loss = append(loss, *e.PacketLossPercentage)
		}
	}
	agg.UniqueUsers = len(users)
	agg.AvgBandwidth, agg.AvgLatency, agg.AvgPacketLoss = avg(bw), avg(lat), avg(loss)
	return agg, nil
}

func avg(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	v := sum / float64(len(xs))
	return &v
}

type published struct {
	SessionID uuid.UUID
	Event     string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, sessionID uuid.UUID, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{sessionID, event})
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Event
	}
	return out
}

type recordingExports struct {
	mu   sync.Mutex
	jobs []queue.AnalyticsExportPayload
}

func (r *recordingExports) EnqueueAnalyticsExport(_ context.Context, p queue.AnalyticsExportPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, p)
	return nil
}

type stubArchive struct {
	ready map[string]string
}

func (a stubArchive) AnalyticsExportURL(_ context.Context, sessionID string) (string, bool, error) {
	url, ok := a.ready[sessionID]
	return url, ok, nil
}
