package sessions

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/internal/testutil"
)

func codes(seq ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := seq[i%len(seq)]
		i++
		return c, nil
	}
}

func TestRepositoryCreate(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewRepository(pool, 0)
	ctx := context.Background()
	host := testutil.CreateUser(t, pool, "Host")

	s, err := repo.Create(ctx, CreateParams{HostID: host, Title: "  Standup ", MaxParticipants: 100})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.True(t, ValidRoomCode(s.RoomCode))
	assert.Equal(t, "Standup", s.Title)
	assert.Equal(t, models.StatusScheduled, s.Status)
	assert.Nil(t, s.StartedAt)
	assert.Nil(t, s.EndedAt)
	require.NotNil(t, s.HostName)
	assert.Equal(t, "Host", *s.HostName)

	byCode, err := repo.GetByRoomCode(ctx, " "+strings.ToLower(s.RoomCode)+" ")
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, s.ID, byCode.ID)
}

func TestRepositoryCreateRejectsEmptyTitle(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewRepository(pool, 0)
	host := testutil.CreateUser(t, pool, "Host")

	_, err := repo.Create(context.Background(), CreateParams{HostID: host, Title: "   ", MaxParticipants: 10})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRepositoryCreateRetriesOnRoomCodeCollision(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewRepository(pool, 0)
	ctx := context.Background()
	host := testutil.CreateUser(t, pool, "Host")

	taken, err := NewRoomCode()
	require.NoError(t, err)
	fresh, err := NewRoomCode()
	require.NoError(t, err)

	repo.newCode = codes(taken)
	first, err := repo.Create(ctx, CreateParams{HostID: host, Title: "first", MaxParticipants: 10})
	require.NoError(t, err)
	assert.Equal(t, taken, first.RoomCode)

	repo.newCode = codes(taken, fresh)
	second, err := repo.Create(ctx, CreateParams{HostID: host, Title: "second", MaxParticipants: 10})
	require.NoError(t, err)
	assert.Equal(t, fresh, second.RoomCode)
}

func TestRepositoryCreateGivesUpAfterMaxAttempts(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewRepository(pool, 3)
	ctx := context.Background()
	host := testutil.CreateUser(t, pool, "Host")

	taken, err := NewRoomCode()
	require.NoError(t, err)
	repo.newCode = codes(taken)
	_, err = repo.Create(ctx, CreateParams{HostID: host, Title: "first", MaxParticipants: 10})
	require.NoError(t, err)

	_, err = repo.Create(ctx, CreateParams{HostID: host, Title: "second", MaxParticipants: 10})
	assert.True(t, errors.Is(err, ErrRoomCodeExhausted))
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestRepositoryLifecycle(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewRepository(pool, 0)
	ctx := context.Background()
	host := testutil.CreateUser(t, pool, "Host")
	stranger := testutil.CreateUser(t, pool, "Stranger")

	s, err := repo.Create(ctx, CreateParams{HostID: host, Title: "Standup", MaxParticipants: 10})
	require.NoError(t, err)

	_, err = repo.Start(ctx, s.ID, stranger)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	unchanged, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, unchanged.Status)
	assert.Nil(t, unchanged.StartedAt)

	live, err := repo.Start(ctx, s.ID, host)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLive, live.Status)
	require.NotNil(t, live.StartedAt)
	assert.False(t, live.StartedAt.After(time.Now().Add(time.Second)))

	again, err := repo.Start(ctx, s.ID, host)
	require.NoError(t, err)
	assert.True(t, live.StartedAt.Equal(*again.StartedAt), "started_at is stamped once")

	rec, err := repo.SetRecording(ctx, s.ID, host, true)
	require.NoError(t, err)
	assert.True(t, rec.IsRecording)

	ended, err := repo.End(ctx, s.ID, host)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, ended.Status)
	assert.False(t, ended.IsRecording)
	require.NotNil(t, ended.EndedAt)

	_, err = repo.End(ctx, s.ID, host)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = repo.Start(ctx, s.ID, host)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	final, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ended.EndedAt.Equal(*final.EndedAt), "ended_at is stamped once")
	assert.True(t, live.StartedAt.Equal(*final.StartedAt))
}

func TestRepositoryTransitionMissingSession(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewRepository(pool, 0)

	_, err := repo.End(context.Background(), uuid.New(), uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	s, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestRepositoryListAllCountsActiveParticipants(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := NewRepository(pool, 0)
	ctx := context.Background()
	host := testutil.CreateUser(t, pool, "Host")
	a := testutil.CreateUser(t, pool, "A")
	b := testutil.CreateUser(t, pool, "B")

	s, err := repo.Create(ctx, CreateParams{HostID: host, Title: "Counted", MaxParticipants: 10})
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO session_participants (session_id, user_id, is_active) VALUES ($1, $2, TRUE), ($1, $3, FALSE)`, s.ID, a, b)
	require.NoError(t, err)

	list, err := repo.ListAll(ctx, 1000, 0)
	require.NoError(t, err)
	var found *models.SessionSummary
	for i := range list {
		if list[i].ID == s.ID {
			found = &list[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 1, found.ActiveParticipants)

	hosted, err := repo.ListByHost(ctx, host)
	require.NoError(t, err)
	require.Len(t, hosted, 1)
	assert.Equal(t, s.ID, hosted[0].ID)
}
