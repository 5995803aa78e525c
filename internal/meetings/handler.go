package meetings

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FacerAin/dnd-10th-2-backend/internal/auth"
	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/internal/realtime"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/apperror"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/queue"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/response"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/storage"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/timeutil"
)

// CreateRequest is the body for POST /meetings.
type CreateRequest struct {
	Title             string `json:"title" binding:"required"`
	Location          string `json:"location"`
	StartTime         string `json:"start_time" binding:"required"`
	EstimatedDuration string `json:"estimated_total_duration" binding:"required"`
}

// MeetingResponse is the API shape of a meeting with formatted durations.
type MeetingResponse struct {
	ID                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Location          string     `json:"location"`
	HostMemberID      *uuid.UUID `json:"host_member_id"`
	StartTime         time.Time  `json:"start_time"`
	Status            string     `json:"status"`
	EstimatedDuration string     `json:"estimated_total_duration"`
	ActualDuration    string     `json:"actual_total_duration"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toMeetingResponse(m *models.Meeting) MeetingResponse {
	return MeetingResponse{
		ID:                m.ID,
		Title:             m.Title,
		Location:          m.Location,
		HostMemberID:      m.HostMemberID,
		StartTime:         m.StartTime,
		Status:            string(m.Status),
		EstimatedDuration: timeutil.FormatClock(m.TotalEstimated),
		ActualDuration:    timeutil.FormatClock(m.TotalActual),
		StartedAt:         m.StartedAt,
		EndedAt:           m.EndedAt,
		CreatedAt:         m.CreatedAt,
	}
}

// Handler handles meeting HTTP endpoints. s3 may be nil when report
// archiving is disabled.
type Handler struct {
	svc    *Service
	hub    *realtime.Hub
	queue  *queue.Queue
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates a meeting handler.
func NewHandler(svc *Service, hub *realtime.Hub, q *queue.Queue, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, hub: hub, queue: q, s3: s3, logger: logger}
}

func meetingParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /meetings.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		response.BadRequest(c, "invalid start_time")
		return
	}
	estimated, err := timeutil.ParseClock(req.EstimatedDuration)
	if err != nil {
		response.DomainError(c, apperror.Validation("estimatedTotalDuration", "invalid time format"))
		return
	}

	m, err := h.svc.Create(c.Request.Context(), auth.MemberID(c), CreateMeetingInput{
		Title:          req.Title,
		Location:       req.Location,
		StartTime:      startTime,
		EstimatedTotal: estimated,
	})
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.Created(c, toMeetingResponse(m))
}

// GetByID handles GET /meetings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	m, err := h.svc.FindByID(c.Request.Context(), id)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.OK(c, toMeetingResponse(m))
}

// End handles PATCH /meetings/:id/end (host only).
func (h *Handler) End(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	m, err := h.svc.End(c.Request.Context(), id, auth.MemberID(c))
	if err != nil {
		response.DomainError(c, err)
		return
	}
	h.hub.BroadcastToMeetingAndPublish(id, "meeting_ended", toMeetingResponse(m))
	if h.queue != nil {
		if err := h.queue.EnqueueReportArchive(c.Request.Context(), queue.ReportArchivePayload{MeetingID: id}); err != nil {
			h.logger.Error("enqueue report archive failed", zap.Error(err), zap.String("meeting_id", id.String()))
		}
	}
	response.OK(c, toMeetingResponse(m))
}

// Cancel handles PATCH /meetings/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), id); err != nil {
		response.DomainError(c, err)
		return
	}
	response.NoContent(c)
}

// Join handles POST /meetings/:id/attendance.
func (h *Handler) Join(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	memberID := auth.MemberID(c)
	p, err := h.svc.AddParticipant(c.Request.Context(), id, memberID)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	h.hub.BroadcastToMeetingAndPublish(id, "participant_joined", gin.H{"member_id": memberID})
	response.Created(c, p)
}

// Leave handles DELETE /meetings/:id/attendance.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	memberID := auth.MemberID(c)
	if err := h.svc.Leave(c.Request.Context(), id, memberID); err != nil {
		response.DomainError(c, err)
		return
	}
	h.hub.BroadcastToMeetingAndPublish(id, "participant_left", gin.H{"member_id": memberID})
	response.NoContent(c)
}

// StepDownHost handles PATCH /meetings/:id/host: the current host hands the
// role to another active participant without leaving the meeting.
func (h *Handler) StepDownHost(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	if err := h.svc.RemoveParticipant(c.Request.Context(), id, auth.MemberID(c)); err != nil {
		response.DomainError(c, err)
		return
	}
	response.NoContent(c)
}

// Members handles GET /meetings/:id/users.
func (h *Handler) Members(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	members, err := h.svc.Members(c.Request.Context(), id)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.OK(c, members)
}

// Report handles GET /meetings/:id/report.
func (h *Handler) Report(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	report, err := h.svc.CreateReport(c.Request.Context(), id)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.OK(c, report)
}

// ReportArchive handles GET /meetings/:id/report/archive and returns a
// presigned download link for the archived report document.
func (h *Handler) ReportArchive(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "report archive storage is not configured")
		return
	}
	m, err := h.svc.FindByID(c.Request.Context(), id)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	if m.Status != models.MeetingEnded {
		response.DomainError(c, apperror.Validation("meetingStatus", "report is archived after the meeting ends"))
		return
	}
	exists, err := h.s3.ReportExists(c.Request.Context(), id.String())
	if err != nil {
		h.logger.Error("archive lookup failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to check report archive")
		return
	}
	if !exists {
		response.DomainError(c, apperror.NotFound("meetingId", "report archive not ready"))
		return
	}
	url, err := h.s3.PresignReport(c.Request.Context(), id.String())
	if err != nil {
		h.logger.Error("presign failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to presign report archive")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// RemainingTime handles GET /meetings/:id/remaining-time.
func (h *Handler) RemainingTime(c *gin.Context) {
	id, ok := meetingParam(c)
	if !ok {
		return
	}
	remaining, err := h.svc.RemainingTime(c.Request.Context(), id)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.OK(c, gin.H{"remaining_time": timeutil.FormatClock(remaining)})
}
