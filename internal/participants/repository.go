package participants

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/pkg/database"
)

const participantColumns = `p.id, p.session_id, p.user_id, u.name, u.email, p.joined_at, p.left_at, p.is_active`

// Repository tracks session membership in session_participants. It does not look at
// session status; callers decide whether a join is allowed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a membership repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanParticipant(row pgx.Row, p *models.Participant) error {
	return row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Name, &p.Email, &p.JoinedAt, &p.LeftAt, &p.IsActive)
}

// Join upserts the (session, user) row: a new row is inserted, an existing one is
// reactivated with a fresh joined_at. Concurrent joins resolve on the unique constraint.
func (r *Repository) Join(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	const q = `WITH up AS (
			INSERT INTO session_participants (session_id, user_id, joined_at, is_active)
			VALUES ($1, $2, clock_timestamp(), TRUE)
			ON CONFLICT ON CONSTRAINT session_participants_session_user_key
			DO UPDATE SET is_active = TRUE, joined_at = clock_timestamp(), left_at = NULL
			RETURNING *
		)
		SELECT ` + participantColumns + ` FROM up p LEFT JOIN users u ON u.id = p.user_id`
	var p models.Participant
	if err := scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID), &p); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, apperr.NotFound("session or user not found")
		}
		return nil, apperr.Transient("join session", err)
	}
	return &p, nil
}

// Leave soft-closes the active row for the pair. It returns nil, nil when the user has no
// active membership.
func (r *Repository) Leave(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	const q = `WITH upd AS (
			UPDATE session_participants
			SET is_active = FALSE, left_at = clock_timestamp()
			WHERE session_id = $1 AND user_id = $2 AND is_active
			RETURNING *
		)
		SELECT ` + participantColumns + ` FROM upd p LEFT JOIN users u ON u.id = p.user_id`
	var p models.Participant
	if err := scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Transient("leave session", err)
	}
	return &p, nil
}

// Get returns the membership row for the pair, active or not, or nil when absent.
func (r *Repository) Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	const q = `SELECT ` + participantColumns + ` FROM session_participants p LEFT JOIN users u ON u.id = p.user_id
		WHERE p.session_id = $1 AND p.user_id = $2`
	var p models.Participant
	if err := scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Transient("get participant", err)
	}
	return &p, nil
}

// ListActive returns current participants, most recently joined first.
func (r *Repository) ListActive(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	const q = `SELECT ` + participantColumns + ` FROM session_participants p LEFT JOIN users u ON u.id = p.user_id
		WHERE p.session_id = $1 AND p.is_active
		ORDER BY p.joined_at DESC, p.id DESC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, apperr.Transient("list participants", err)
	}
	defer rows.Close()

	list := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := scanParticipant(rows, &p); err != nil {
			return nil, apperr.Transient("scan participant", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient("list participants", err)
	}
	return list, nil
}

// CountActive returns the number of active participants in a session.
func (r *Repository) CountActive(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM session_participants WHERE session_id = $1 AND is_active`, sessionID).Scan(&n)
	if err != nil {
		return 0, apperr.Transient("count participants", err)
	}
	return n, nil
}
