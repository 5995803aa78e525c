package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextMemberID is the gin context key for the authenticated member ID.
	ContextMemberID = "member_id"
	// ContextMemberEmail is the gin context key for the member email.
	ContextMemberEmail = "member_email"
	// ContextMemberNickname is the gin context key for the member nickname.
	ContextMemberNickname = "member_nickname"
)

// MemberID returns the authenticated member ID set by the JWT middleware.
// It panics when called on a route without the middleware.
func MemberID(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextMemberID).(uuid.UUID)
}
