package agendas

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/FacerAin/dnd-10th-2-backend/internal/auth"
	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/internal/realtime"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/apperror"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/response"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/timeutil"
)

// CreateAgendaRequest is the body for POST /meetings/:id/agendas.
type CreateAgendaRequest struct {
	Title             string `json:"title" binding:"required"`
	Type              string `json:"type"`
	AllocatedDuration string `json:"allocated_duration" binding:"required"`
}

// ActionRequest is the body for PATCH /meetings/:id/agendas/:agendaId/action.
type ActionRequest struct {
	Action           string `json:"action" binding:"required"`
	ModifiedDuration string `json:"modified_duration"`
}

// OrderRequest is the body for PATCH /meetings/:id/agendas/order.
type OrderRequest struct {
	AgendaIDs []string `json:"agenda_ids" binding:"required"`
}

// AgendaResponse is the API shape of an agenda with formatted durations.
type AgendaResponse struct {
	ID                uuid.UUID  `json:"id"`
	MeetingID         uuid.UUID  `json:"meeting_id"`
	Title             string     `json:"title"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	OrderNum          int        `json:"order_num"`
	AllocatedDuration string     `json:"allocated_duration"`
	ActualDuration    string     `json:"actual_duration"`
	CurrentDuration   string     `json:"current_duration"`
	RemainingDuration string     `json:"remaining_duration"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toAgendaResponse(a *models.Agenda, now time.Time) AgendaResponse {
	return AgendaResponse{
		ID:                a.ID,
		MeetingID:         a.MeetingID,
		Title:             a.Title,
		Type:              string(a.Type),
		Status:            string(a.Status),
		OrderNum:          a.OrderNum,
		AllocatedDuration: timeutil.FormatClock(a.Allocated),
		ActualDuration:    timeutil.FormatClock(a.Actual),
		CurrentDuration:   timeutil.FormatClock(a.CurrentDuration(now)),
		RemainingDuration: timeutil.FormatClock(a.RemainingDuration(now)),
		StartedAt:         a.StartedAt,
		CompletedAt:       a.CompletedAt,
		CreatedAt:         a.CreatedAt,
	}
}

// meetingSummary is the meeting header bundled with agenda listings.
type meetingSummary struct {
	ID                uuid.UUID `json:"id"`
	Title             string    `json:"title"`
	Status            string    `json:"status"`
	StartTime         time.Time `json:"start_time"`
	EstimatedDuration string    `json:"estimated_total_duration"`
	ActualDuration    string    `json:"actual_total_duration"`
}

func toBundleResponse(b *Bundle, now time.Time) gin.H {
	agendas := make([]AgendaResponse, 0, len(b.Agendas))
	for i := range b.Agendas {
		agendas = append(agendas, toAgendaResponse(&b.Agendas[i], now))
	}
	return gin.H{
		"meeting": meetingSummary{
			ID:                b.Meeting.ID,
			Title:             b.Meeting.Title,
			Status:            string(b.Meeting.Status),
			StartTime:         b.Meeting.StartTime,
			EstimatedDuration: timeutil.FormatClock(b.Meeting.TotalEstimated),
			ActualDuration:    timeutil.FormatClock(b.Meeting.TotalActual),
		},
		"agendas": agendas,
	}
}

var actionEvents = map[models.AgendaAction]string{
	models.ActionStart:  "agenda_started",
	models.ActionPause:  "agenda_paused",
	models.ActionResume: "agenda_resumed",
	models.ActionEnd:    "agenda_completed",
	models.ActionModify: "agenda_modified",
}

// Handler handles agenda HTTP endpoints.
type Handler struct {
	svc *Service
	hub *realtime.Hub
}

// NewHandler creates an agenda handler.
func NewHandler(svc *Service, hub *realtime.Hub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

func meetingParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return uuid.Nil, false
	}
	return id, true
}

func agendaParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("agendaId"))
	if err != nil {
		response.BadRequest(c, "invalid agenda id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /meetings/:id/agendas.
func (h *Handler) Create(c *gin.Context) {
	meetingID, ok := meetingParam(c)
	if !ok {
		return
	}
	var req CreateAgendaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	agendaType := models.AgendaTypeAgenda
	switch req.Type {
	case "", string(models.AgendaTypeAgenda):
	case string(models.AgendaTypeBreak):
		agendaType = models.AgendaTypeBreak
	default:
		response.DomainError(c, apperror.Validation("agendaType", "invalid agenda type"))
		return
	}
	allocated, err := timeutil.ParseClock(req.AllocatedDuration)
	if err != nil {
		response.DomainError(c, apperror.Validation("allocatedDuration", "invalid time format"))
		return
	}

	a, err := h.svc.Create(c.Request.Context(), meetingID, auth.MemberID(c), CreateAgendaInput{
		Title:     req.Title,
		Type:      agendaType,
		Allocated: allocated,
	})
	if err != nil {
		response.DomainError(c, err)
		return
	}
	resp := toAgendaResponse(a, time.Now())
	h.hub.BroadcastToMeetingAndPublish(meetingID, "agenda_created", resp)
	response.Created(c, resp)
}

// List handles GET /meetings/:id/agendas.
func (h *Handler) List(c *gin.Context) {
	meetingID, ok := meetingParam(c)
	if !ok {
		return
	}
	bundle, err := h.svc.FindAgendas(c.Request.Context(), meetingID)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	response.OK(c, toBundleResponse(bundle, time.Now()))
}

// Action handles PATCH /meetings/:id/agendas/:agendaId/action.
func (h *Handler) Action(c *gin.Context) {
	meetingID, ok := meetingParam(c)
	if !ok {
		return
	}
	agendaID, ok := agendaParam(c)
	if !ok {
		return
	}
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.svc.ChangeStatus(c.Request.Context(), meetingID, agendaID, req.Action, req.ModifiedDuration)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	resp := toAgendaResponse(result.Agenda, time.Now())
	resp.CurrentDuration = timeutil.FormatClock(result.Current)
	resp.RemainingDuration = timeutil.FormatClock(result.Remaining)

	if action, err := models.ParseAgendaAction(req.Action); err == nil {
		h.hub.BroadcastToMeetingAndPublish(meetingID, actionEvents[action], resp)
	}
	response.OK(c, resp)
}

// ChangeOrder handles PATCH /meetings/:id/agendas/order.
func (h *Handler) ChangeOrder(c *gin.Context) {
	meetingID, ok := meetingParam(c)
	if !ok {
		return
	}
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ids := make([]uuid.UUID, 0, len(req.AgendaIDs))
	for _, s := range req.AgendaIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid agenda id: "+s)
			return
		}
		ids = append(ids, id)
	}

	bundle, err := h.svc.ChangeOrder(c.Request.Context(), meetingID, ids)
	if err != nil {
		response.DomainError(c, err)
		return
	}
	resp := toBundleResponse(bundle, time.Now())
	h.hub.BroadcastToMeetingAndPublish(meetingID, "agenda_order", resp)
	response.OK(c, resp)
}

// Cancel handles DELETE /meetings/:id/agendas/:agendaId.
func (h *Handler) Cancel(c *gin.Context) {
	meetingID, ok := meetingParam(c)
	if !ok {
		return
	}
	agendaID, ok := agendaParam(c)
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), meetingID, agendaID); err != nil {
		response.DomainError(c, err)
		return
	}
	h.hub.BroadcastToMeetingAndPublish(meetingID, "agenda_cancelled", gin.H{"agenda_id": agendaID})
	response.NoContent(c)
}
