package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btlivestream/backend/internal/apperr"
	"github.com/btlivestream/backend/internal/models"
	"github.com/btlivestream/backend/pkg/database"
)

const eventColumns = `a.id, a.session_id, a.user_id, u.name, u.email, a.event_type, a.event_data,
	a.video_quality, a.audio_quality, a.connection_type, a.bandwidth_kbps, a.latency_ms,
	a.packet_loss_percentage::float8, a.timestamp`

// Repository stores analytics events in call_analytics. Rows are never updated.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends e and fills its ID and Timestamp. A zero Timestamp defaults to now.
func (r *Repository) Insert(ctx context.Context, e *models.AnalyticsEvent) error {
	const q = `INSERT INTO call_analytics
		(session_id, user_id, event_type, event_data, video_quality, audio_quality, connection_type,
		 bandwidth_kbps, latency_ms, packet_loss_percentage, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))
		RETURNING id, timestamp`
	var data any
	if e.EventData != nil {
		data = e.EventData
	}
	var ts any
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp
	}
	err := r.pool.QueryRow(ctx, q, e.SessionID, e.UserID, e.EventType, data,
		e.VideoQuality, e.AudioQuality, e.ConnectionType, e.BandwidthKbps, e.LatencyMs, e.PacketLossPercentage, ts).
		Scan(&e.ID, &e.Timestamp)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.NotFound("session not found")
		}
		return apperr.Transient("insert analytics event", err)
	}
	return nil
}

// ListBySession returns all events of a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.AnalyticsEvent, error) {
	const q = `SELECT ` + eventColumns + ` FROM call_analytics a LEFT JOIN users u ON u.id = a.user_id
		WHERE a.session_id = $1 ORDER BY a.timestamp DESC, a.id DESC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, apperr.Transient("list session analytics", err)
	}
	return collectEvents(rows, "list session analytics")
}

// ListByUser returns up to limit events recorded by a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AnalyticsEvent, error) {
	const q = `SELECT ` + eventColumns + ` FROM call_analytics a LEFT JOIN users u ON u.id = a.user_id
		WHERE a.user_id = $1 ORDER BY a.timestamp DESC, a.id DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, apperr.Transient("list user analytics", err)
	}
	return collectEvents(rows, "list user analytics")
}

func collectEvents(rows pgx.Rows, op string) ([]models.AnalyticsEvent, error) {
	defer rows.Close()
	list := []models.AnalyticsEvent{}
	for rows.Next() {
		var e models.AnalyticsEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserID, &e.UserName, &e.UserEmail, &e.EventType, &e.EventData,
			&e.VideoQuality, &e.AudioQuality, &e.ConnectionType, &e.BandwidthKbps, &e.LatencyMs,
			&e.PacketLossPercentage, &e.Timestamp); err != nil {
			return nil, apperr.Transient("scan analytics event", err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient(op, err)
	}
	return list, nil
}

// Aggregate computes per-session statistics. AVG skips NULL samples and is NULL when
// there are none.
func (r *Repository) Aggregate(ctx context.Context, sessionID uuid.UUID) (*models.SessionAggregate, error) {
	const q = `SELECT
		COUNT(DISTINCT user_id),
		AVG(bandwidth_kbps)::float8,
		AVG(latency_ms)::float8,
		AVG(packet_loss_percentage)::float8,
		COUNT(*)
		FROM call_analytics WHERE session_id = $1`
	var a models.SessionAggregate
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&a.UniqueUsers, &a.AvgBandwidth, &a.AvgLatency, &a.AvgPacketLoss, &a.TotalEvents)
	if err != nil {
		return nil, apperr.Transient("aggregate session analytics", err)
	}
	return &a, nil
}
