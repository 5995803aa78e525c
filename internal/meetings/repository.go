package meetings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/database"
)

const meetingColumns = `id, host_member_id, title, location, start_time, status,
	total_estimated_seconds, total_actual_seconds, started_at, ended_at, created_at, updated_at`

// Repository handles meeting persistence. Queries run against the
// transaction on ctx when one is open.
type Repository struct {
	db *database.Runner
}

// NewRepository creates a meeting repository.
func NewRepository(db *database.Runner) *Repository {
	return &Repository{db: db}
}

// Create inserts a new meeting.
func (r *Repository) Create(ctx context.Context, m *models.Meeting) error {
	const q = `INSERT INTO meetings (id, host_member_id, title, location, start_time, status, total_estimated_seconds, total_actual_seconds)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.db.Querier(ctx).QueryRow(ctx, q,
		m.HostMemberID, m.Title, m.Location, m.StartTime, string(m.Status),
		int64(m.TotalEstimated/time.Second), int64(m.TotalActual/time.Second)).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

// GetByID returns a meeting by ID, or nil when no such meeting exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	const q = `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1`
	return r.scanOne(r.db.Querier(ctx).QueryRow(ctx, q, id))
}

// GetByIDForUpdate returns a meeting with its row locked for the duration
// of the surrounding transaction.
func (r *Repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	const q = `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.db.Querier(ctx).QueryRow(ctx, q, id))
}

// Update persists the mutable meeting fields.
func (r *Repository) Update(ctx context.Context, m *models.Meeting) error {
	const q = `UPDATE meetings SET host_member_id = $1, status = $2,
		total_estimated_seconds = $3, total_actual_seconds = $4,
		started_at = $5, ended_at = $6, updated_at = NOW()
		WHERE id = $7`
	_, err := r.db.Querier(ctx).Exec(ctx, q,
		m.HostMemberID, string(m.Status),
		int64(m.TotalEstimated/time.Second), int64(m.TotalActual/time.Second),
		m.StartedAt, m.EndedAt, m.ID)
	return err
}

func (r *Repository) scanOne(row pgx.Row) (*models.Meeting, error) {
	var (
		m        models.Meeting
		status   string
		est, act int64
	)
	err := row.Scan(&m.ID, &m.HostMemberID, &m.Title, &m.Location, &m.StartTime, &status,
		&est, &act, &m.StartedAt, &m.EndedAt, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Status = models.MeetingStatus(status)
	m.TotalEstimated = time.Duration(est) * time.Second
	m.TotalActual = time.Duration(act) * time.Second
	return &m, nil
}
