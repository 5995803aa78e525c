package agendas

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/database"
)

const agendaColumns = `id, meeting_id, title, type, status, order_num,
	allocated_seconds, actual_seconds, accumulated_seconds,
	started_at, resumed_at, completed_at, created_at, updated_at`

// Repository handles agenda persistence. Queries run against the
// transaction on ctx when one is open.
type Repository struct {
	db *database.Runner
}

// NewRepository creates an agenda repository.
func NewRepository(db *database.Runner) *Repository {
	return &Repository{db: db}
}

// Create inserts a new agenda.
func (r *Repository) Create(ctx context.Context, a *models.Agenda) error {
	const q = `INSERT INTO agendas (id, meeting_id, title, type, status, order_num, allocated_seconds, actual_seconds, accumulated_seconds)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.db.Querier(ctx).QueryRow(ctx, q,
		a.MeetingID, a.Title, string(a.Type), string(a.Status), a.OrderNum,
		int64(a.Allocated/time.Second), int64(a.Actual/time.Second), int64(a.Accumulated/time.Second)).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID returns an agenda belonging to a meeting, or nil when no such
// agenda exists in that meeting.
func (r *Repository) GetByID(ctx context.Context, meetingID, agendaID uuid.UUID) (*models.Agenda, error) {
	const q = `SELECT ` + agendaColumns + ` FROM agendas WHERE id = $1 AND meeting_id = $2`
	a, err := scanAgenda(r.db.Querier(ctx).QueryRow(ctx, q, agendaID, meetingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ByMeeting returns all agendas of a meeting ordered by order_num.
func (r *Repository) ByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Agenda, error) {
	const q = `SELECT ` + agendaColumns + ` FROM agendas WHERE meeting_id = $1 ORDER BY order_num, id`
	rows, err := r.db.Querier(ctx).Query(ctx, q, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Agenda
	for rows.Next() {
		a, err := scanAgenda(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// CountByMeeting returns the number of agendas a meeting has.
func (r *Repository) CountByMeeting(ctx context.Context, meetingID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM agendas WHERE meeting_id = $1`
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx, q, meetingID).Scan(&count)
	return count, err
}

// Update persists the mutable agenda fields.
func (r *Repository) Update(ctx context.Context, a *models.Agenda) error {
	const q = `UPDATE agendas SET title = $1, status = $2, order_num = $3,
		allocated_seconds = $4, actual_seconds = $5, accumulated_seconds = $6,
		started_at = $7, resumed_at = $8, completed_at = $9, updated_at = NOW()
		WHERE id = $10`
	_, err := r.db.Querier(ctx).Exec(ctx, q,
		a.Title, string(a.Status), a.OrderNum,
		int64(a.Allocated/time.Second), int64(a.Actual/time.Second), int64(a.Accumulated/time.Second),
		a.StartedAt, a.ResumedAt, a.CompletedAt, a.ID)
	return err
}

func scanAgenda(row pgx.Row) (*models.Agenda, error) {
	var (
		a                models.Agenda
		typ, status      string
		alloc, act, accu int64
	)
	err := row.Scan(&a.ID, &a.MeetingID, &a.Title, &typ, &status, &a.OrderNum,
		&alloc, &act, &accu, &a.StartedAt, &a.ResumedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Type = models.AgendaType(typ)
	a.Status = models.AgendaStatus(status)
	a.Allocated = time.Duration(alloc) * time.Second
	a.Actual = time.Duration(act) * time.Second
	a.Accumulated = time.Duration(accu) * time.Second
	return &a, nil
}
