package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/FacerAin/dnd-10th-2-backend/internal/auth"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/response"
)

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// JWT returns a middleware that validates the bearer token and stores the
// member claims on the request context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "missing or malformed authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(auth.ContextMemberID, claims.MemberID)
		c.Set(auth.ContextMemberEmail, claims.Email)
		c.Set(auth.ContextMemberNickname, claims.Nickname)
		c.Next()
	}
}
