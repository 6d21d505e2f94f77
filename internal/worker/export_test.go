package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/pkg/queue"
)

type stubSessions map[uuid.UUID]*models.Session

func (s stubSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	return s[id], nil
}

type stubEvents struct{ events []models.AnalyticsEvent }

func (s stubEvents) ListForSession(context.Context, uuid.UUID) ([]models.AnalyticsEvent, error) {
	return s.events, nil
}

func (s stubEvents) AggregateForSession(context.Context, uuid.UUID) (*models.SessionAggregate, error) {
	return &models.SessionAggregate{TotalEvents: len(s.events)}, nil
}

type memArchive struct {
	mu   sync.Mutex
	docs map[string][]byte
	err  error
}

func (m *memArchive) PutAnalyticsExport(_ context.Context, sessionID string, doc []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.docs == nil {
		m.docs = map[string][]byte{}
	}
	m.docs[sessionID] = doc
	return "analytics/" + sessionID + "/events.json", nil
}

type chanJobs struct {
	jobs    chan *queue.Job
	retried chan *queue.Job
}

func (c *chanJobs) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case j := <-c.jobs:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *chanJobs) Retry(_ context.Context, job *queue.Job) error {
	job.Attempt++
	c.retried <- job
	return nil
}

func exportJob(t *testing.T, id uuid.UUID) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeAnalyticsExport, queue.AnalyticsExportPayload{SessionID: id})
	require.NoError(t, err)
	return job
}

func endedSession() *models.Session {
	return &models.Session{ID: uuid.New(), Title: "Standup", Status: models.StatusEnded}
}

func TestProcessWritesArchive(t *testing.T) {
	s := endedSession()
	store := &memArchive{}
	events := stubEvents{events: []models.AnalyticsEvent{{ID: 1, SessionID: s.ID, EventType: "join"}}}
	p := NewExportProcessor(stubSessions{s.ID: s}, events, store, nil, nil)

	require.NoError(t, p.Process(context.Background(), exportJob(t, s.ID)))

	var archive Archive
	require.NoError(t, json.Unmarshal(store.docs[s.ID.String()], &archive))
	assert.Equal(t, s.ID, archive.Session.ID)
	assert.Equal(t, 1, archive.Aggregate.TotalEvents)
	require.Len(t, archive.Events, 1)
	assert.Equal(t, "join", archive.Events[0].EventType)
}

func TestProcessSkipsMissingSession(t *testing.T) {
	store := &memArchive{}
	p := NewExportProcessor(stubSessions{}, stubEvents{}, store, nil, nil)

	require.NoError(t, p.Process(context.Background(), exportJob(t, uuid.New())))
	assert.Empty(t, store.docs)
}

func TestProcessRejectsUnendedSessionAndUnknownJob(t *testing.T) {
	s := endedSession()
	s.Status = models.StatusLive
	p := NewExportProcessor(stubSessions{s.ID: s}, stubEvents{}, &memArchive{}, nil, nil)

	assert.Error(t, p.Process(context.Background(), exportJob(t, s.ID)))
	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: "email"}))
}

func TestRunRetriesFailedJobs(t *testing.T) {
	s := endedSession()
	jobs := &chanJobs{jobs: make(chan *queue.Job, 1), retried: make(chan *queue.Job, 1)}
	p := NewExportProcessor(stubSessions{s.ID: s}, stubEvents{}, &memArchive{err: errors.New("s3 down")}, jobs, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	jobs.jobs <- exportJob(t, s.ID)
	select {
	case job := <-jobs.retried:
		assert.Equal(t, 1, job.Attempt)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not retried")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
