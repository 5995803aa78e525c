package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/response"
)

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Nickname string `json:"nickname" binding:"required,max=30"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token  string              `json:"token"`
	Member models.MemberPublic `json:"member"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   *Repository
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

// normalizeEmail lowers and trims so lookups match regardless of how the
// address was typed at registration.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *Handler) issueToken(c *gin.Context, member *models.Member, created bool) {
	token, err := h.jwt.Generate(member.ID, member.Email, member.Nickname)
	if err != nil {
		h.logger.Error("token generation failed", zap.String("member_id", member.ID.String()), zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	body := TokenResponse{Token: token, Member: member.ToPublic()}
	if created {
		response.Created(c, body)
		return
	}
	response.OK(c, body)
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	email := normalizeEmail(req.Email)

	existing, err := h.repo.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("email lookup failed", zap.Error(err))
		response.Internal(c, "failed to look up email")
		return
	}
	if existing != nil {
		response.Conflict(c, "email already registered")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	member, err := h.repo.Create(c.Request.Context(), email, hash, strings.TrimSpace(req.Nickname))
	if err != nil {
		h.logger.Error("member insert failed", zap.Error(err))
		response.Internal(c, "failed to create member")
		return
	}
	h.issueToken(c, member, true)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	member, err := h.repo.GetByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if err != nil {
		h.logger.Error("email lookup failed", zap.Error(err))
		response.Internal(c, "failed to look up email")
		return
	}
	// same response whether the email or the password was wrong
	if member == nil || !VerifyPassword(member.Password, req.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	h.issueToken(c, member, false)
}

// Me handles GET /auth/me and returns the authenticated member.
func (h *Handler) Me(c *gin.Context) {
	member, err := h.repo.GetByID(c.Request.Context(), MemberID(c))
	if err != nil {
		h.logger.Error("member lookup failed", zap.Error(err))
		response.Internal(c, "failed to load member")
		return
	}
	if member == nil {
		response.NotFound(c, "member not found")
		return
	}
	response.OK(c, member.ToPublic())
}
