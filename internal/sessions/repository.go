package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
)

// DefaultRoomCodeAttempts bounds the room code rejection-sampling loop.
const DefaultRoomCodeAttempts = 10

// ErrRoomCodeExhausted is returned when every drawn room code collided.
var ErrRoomCodeExhausted = errors.New("could not allocate a unique room code")

// sessionColumns selects a session joined with its host (alias s, u).
const sessionColumns = `s.id, s.room_code, s.host_id, u.name, u.email, s.title, s.description, s.status,
	s.scheduled_at, s.started_at, s.ended_at, s.max_participants, s.is_recording, s.created_at, s.updated_at`

// CreateParams is the input for Create.
type CreateParams struct {
	HostID          uuid.UUID
	Title           string
	Description     string
	ScheduledAt     *time.Time
	MaxParticipants int
}

// Repository is the durable session store.
type Repository struct {
	pool        *pgxpool.Pool
	newCode     func() (string, error)
	maxAttempts int
}

// NewRepository creates a session repository. maxAttempts <= 0 uses DefaultRoomCodeAttempts.
func NewRepository(pool *pgxpool.Pool, maxAttempts int) *Repository {
	if maxAttempts <= 0 {
		maxAttempts = DefaultRoomCodeAttempts
	}
	return &Repository{pool: pool, newCode: NewRoomCode, maxAttempts: maxAttempts}
}

func scanSession(row pgx.Row, s *models.Session) error {
	return row.Scan(&s.ID, &s.RoomCode, &s.HostID, &s.HostName, &s.HostEmail, &s.Title, &s.Description, &s.Status,
		&s.ScheduledAt, &s.StartedAt, &s.EndedAt, &s.MaxParticipants, &s.IsRecording, &s.CreatedAt, &s.UpdatedAt)
}

// Create inserts a session with a freshly drawn room code. The unique constraint on
// room_code decides collisions: a conflicting insert returns no row and a new code is drawn.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.Session, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return nil, apperr.Validation("session title is required")
	}
	if p.MaxParticipants < 1 {
		return nil, apperr.Validation("max_participants must be at least 1")
	}

	const q = `WITH ins AS (
			INSERT INTO livestream_sessions (room_code, host_id, title, description, scheduled_at, max_participants)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT ON CONSTRAINT livestream_sessions_room_code_key DO NOTHING
			RETURNING *
		)
		SELECT ` + sessionColumns + ` FROM ins s LEFT JOIN users u ON u.id = s.host_id`

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return nil, fmt.Errorf("room code: %w", err)
		}
		var s models.Session
		err = scanSession(r.pool.QueryRow(ctx, q, code, p.HostID, title, p.Description, p.ScheduledAt, p.MaxParticipants), &s)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, apperr.Transient("insert session", err)
		}
		return &s, nil
	}
	return nil, apperr.Transient("insert session", ErrRoomCodeExhausted)
}

// GetByID returns the session or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM livestream_sessions s LEFT JOIN users u ON u.id = s.host_id WHERE s.id = $1`
	return r.getOne(ctx, "get session", q, id)
}

// GetByRoomCode returns the session or nil when absent. Input is normalized first.
func (r *Repository) GetByRoomCode(ctx context.Context, code string) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM livestream_sessions s LEFT JOIN users u ON u.id = s.host_id WHERE s.room_code = $1`
	return r.getOne(ctx, "get session by room code", q, NormalizeRoomCode(code))
}

func (r *Repository) getOne(ctx context.Context, op, q string, args ...any) (*models.Session, error) {
	var s models.Session
	err := scanSession(r.pool.QueryRow(ctx, q, args...), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Transient(op, err)
	}
	return &s, nil
}

// ListByHost returns the sessions a user hosts, newest first.
func (r *Repository) ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM livestream_sessions s LEFT JOIN users u ON u.id = s.host_id
		WHERE s.host_id = $1 ORDER BY s.created_at DESC`
	rows, err := r.pool.Query(ctx, q, hostID)
	if err != nil {
		return nil, apperr.Transient("list sessions by host", err)
	}
	defer rows.Close()

	list := []models.Session{}
	for rows.Next() {
		var s models.Session
		if err := scanSession(rows, &s); err != nil {
			return nil, apperr.Transient("scan session", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient("list sessions by host", err)
	}
	return list, nil
}

// ListAll returns a page of sessions, newest first, each with its active participant count.
func (r *Repository) ListAll(ctx context.Context, limit, offset int) ([]models.SessionSummary, error) {
	const q = `SELECT ` + sessionColumns + `,
		(SELECT COUNT(*) FROM session_participants p WHERE p.session_id = s.id AND p.is_active) AS active_participants
		FROM livestream_sessions s LEFT JOIN users u ON u.id = s.host_id
		ORDER BY s.created_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, apperr.Transient("list sessions", err)
	}
	defer rows.Close()

	list := []models.SessionSummary{}
	for rows.Next() {
		var s models.SessionSummary
		if err := rows.Scan(&s.ID, &s.RoomCode, &s.HostID, &s.HostName, &s.HostEmail, &s.Title, &s.Description, &s.Status,
			&s.ScheduledAt, &s.StartedAt, &s.EndedAt, &s.MaxParticipants, &s.IsRecording, &s.CreatedAt, &s.UpdatedAt,
			&s.ActiveParticipants); err != nil {
			return nil, apperr.Transient("scan session", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient("list sessions", err)
	}
	return list, nil
}

// Start moves a scheduled or live session to live. started_at is stamped only the first
// time; starting an already-live session returns it unchanged apart from updated_at.
func (r *Repository) Start(ctx context.Context, id, actor uuid.UUID) (*models.Session, error) {
	const q = `WITH upd AS (
			UPDATE livestream_sessions
			SET status = 'live', started_at = COALESCE(started_at, NOW()), updated_at = NOW()
			WHERE id = $1 AND host_id = $2 AND status IN ('scheduled', 'live')
			RETURNING *
		)
		SELECT ` + sessionColumns + ` FROM upd s LEFT JOIN users u ON u.id = s.host_id`
	return r.transition(ctx, TransitionStart, q, id, actor)
}

// End moves a non-ended session to ended and stops recording. Ended is terminal: ending
// again is rejected and ended_at keeps its first value.
func (r *Repository) End(ctx context.Context, id, actor uuid.UUID) (*models.Session, error) {
	const q = `WITH upd AS (
			UPDATE livestream_sessions
			SET status = 'ended', ended_at = COALESCE(ended_at, NOW()), is_recording = FALSE, updated_at = NOW()
			WHERE id = $1 AND host_id = $2 AND status <> 'ended'
			RETURNING *
		)
		SELECT ` + sessionColumns + ` FROM upd s LEFT JOIN users u ON u.id = s.host_id`
	return r.transition(ctx, TransitionEnd, q, id, actor)
}

// SetRecording toggles the recording flag of a live session.
func (r *Repository) SetRecording(ctx context.Context, id, actor uuid.UUID, recording bool) (*models.Session, error) {
	const q = `WITH upd AS (
			UPDATE livestream_sessions
			SET is_recording = $3, updated_at = NOW()
			WHERE id = $1 AND host_id = $2 AND status = 'live'
			RETURNING *
		)
		SELECT ` + sessionColumns + ` FROM upd s LEFT JOIN users u ON u.id = s.host_id`
	return r.transition(ctx, TransitionRecord, q, id, actor, recording)
}

// transition runs a guarded UPDATE. When the guard matches no row, the current row is
// re-read to report why: not found, not the host, or a disallowed state.
func (r *Repository) transition(ctx context.Context, t Transition, q string, id, actor uuid.UUID, extra ...any) (*models.Session, error) {
	args := append([]any{id, actor}, extra...)
	var s models.Session
	err := scanSession(r.pool.QueryRow(ctx, q, args...), &s)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Transient(string(t)+" session", err)
	}

	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, apperr.NotFound("session not found")
	}
	if err := CheckTransition(cur, actor, t); err != nil {
		return nil, err
	}
	return nil, apperr.Conflict("session changed concurrently, reload and retry")
}
