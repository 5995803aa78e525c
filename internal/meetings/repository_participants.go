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

// ParticipantRepository handles participant persistence.
type ParticipantRepository struct {
	db *database.Runner
}

// NewParticipantRepository creates a participant repository.
func NewParticipantRepository(db *database.Runner) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Add registers a member in a meeting. Joining again is a no-op for an
// active participant and re-activates one who left, keeping the original
// joined_at.
func (r *ParticipantRepository) Add(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Participant, error) {
	const q = `INSERT INTO participants (id, meeting_id, member_id)
		VALUES (gen_random_uuid(), $1, $2)
		ON CONFLICT (meeting_id, member_id) DO UPDATE SET left_at = NULL
		RETURNING id, meeting_id, member_id, joined_at, left_at`
	var p models.Participant
	err := r.db.Querier(ctx).QueryRow(ctx, q, meetingID, memberID).
		Scan(&p.ID, &p.MeetingID, &p.MemberID, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns the participant row for a member in a meeting regardless of
// removal state, or nil when the member never joined.
func (r *ParticipantRepository) Get(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Participant, error) {
	const q = `SELECT id, meeting_id, member_id, joined_at, left_at
		FROM participants WHERE meeting_id = $1 AND member_id = $2`
	var p models.Participant
	err := r.db.Querier(ctx).QueryRow(ctx, q, meetingID, memberID).
		Scan(&p.ID, &p.MeetingID, &p.MemberID, &p.JoinedAt, &p.LeftAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ActiveByMeeting returns the active participants of a meeting with their
// member details, ordered by join time then id for deterministic host
// selection.
func (r *ParticipantRepository) ActiveByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Participant, error) {
	const q = `SELECT p.id, p.meeting_id, p.member_id, p.joined_at, p.left_at,
		m.id, m.email, m.nickname, m.created_at, m.updated_at
		FROM participants p JOIN members m ON m.id = p.member_id
		WHERE p.meeting_id = $1 AND p.left_at IS NULL
		ORDER BY p.joined_at, p.id`
	rows, err := r.db.Querier(ctx).Query(ctx, q, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Participant
	for rows.Next() {
		var (
			p models.Participant
			m models.Member
		)
		if err := rows.Scan(&p.ID, &p.MeetingID, &p.MemberID, &p.JoinedAt, &p.LeftAt,
			&m.ID, &m.Email, &m.Nickname, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		p.Member = &m
		list = append(list, p)
	}
	return list, rows.Err()
}

// MarkLeft soft-removes a participant.
func (r *ParticipantRepository) MarkLeft(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE participants SET left_at = $1 WHERE id = $2`
	_, err := r.db.Querier(ctx).Exec(ctx, q, at, id)
	return err
}
