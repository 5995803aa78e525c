package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
)

const memberColumns = `id, email, password, nickname, created_at, updated_at`

// Repository handles member persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanMember(row pgx.Row) (*models.Member, error) {
	var m models.Member
	err := row.Scan(&m.ID, &m.Email, &m.Password, &m.Nickname, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByID returns a member by ID, or nil when no such member exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	return scanMember(r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
}

// GetByEmail returns a member by email, or nil when no such member exists.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	return scanMember(r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = $1`, email))
}

// Create inserts a new member.
func (r *Repository) Create(ctx context.Context, email, passwordHash, nickname string) (*models.Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx,
		`INSERT INTO members (id, email, password, nickname)
		 VALUES (gen_random_uuid(), $1, $2, $3)
		 RETURNING `+memberColumns,
		email, passwordHash, nickname))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("insert member: no row returned")
	}
	return m, nil
}
