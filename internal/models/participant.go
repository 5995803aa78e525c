package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant links a member to a meeting. Leaving marks the row removed via
// LeftAt instead of deleting it, so past membership stays queryable.
type Participant struct {
	ID        uuid.UUID  `json:"id"`
	MeetingID uuid.UUID  `json:"meeting_id"`
	MemberID  uuid.UUID  `json:"member_id"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`

	// Member is populated by joined queries; nil otherwise.
	Member *Member `json:"member,omitempty"`
}

// Removed reports whether the participant has left the meeting.
func (p *Participant) Removed() bool {
	return p.LeftAt != nil
}
