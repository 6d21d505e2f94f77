package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/pkg/database"
)

const userColumns = `id, email, password_hash, name, is_active, last_login, created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.IsActive, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID, or nil if absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("get user", err)
	}
	return u, nil
}

// GetByEmail returns a user by email (case-insensitive), or nil if absent.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("get user by email", err)
	}
	return u, nil
}

// Create inserts a new user. A taken email is a conflict.
func (r *Repository) Create(ctx context.Context, email, passwordHash, name string) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, name) VALUES ($1, $2, $3) RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, normalizeEmail(email), passwordHash, strings.TrimSpace(name)))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Transient("create user", err)
	}
	return u, nil
}

// TouchLastLogin stamps last_login with the current time.
func (r *Repository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `UPDATE users SET last_login = NOW(), updated_at = NOW() WHERE id = $1`, id); err != nil {
		return apperr.Transient("update last login", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
