package models

import (
	"time"

	"github.com/google/uuid"
)

// Member is a platform account. Members join meetings as participants and one
// of them hosts each meeting.
type Member struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemberPublic is Member without sensitive fields for API responses.
type MemberPublic struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Nickname string    `json:"nickname"`
}

// ToPublic converts Member to MemberPublic.
func (m *Member) ToPublic() MemberPublic {
	return MemberPublic{
		ID:       m.ID,
		Email:    m.Email,
		Nickname: m.Nickname,
	}
}
