package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FacerAin/dnd-10th-2-backend/pkg/apperror"
)

// AgendaStatus is the lifecycle state of an agenda item.
type AgendaStatus string

const (
	AgendaPending    AgendaStatus = "pending"
	AgendaInProgress AgendaStatus = "in_progress"
	AgendaPaused     AgendaStatus = "paused"
	AgendaCompleted  AgendaStatus = "completed"
	AgendaCancelled  AgendaStatus = "cancelled"
)

// AgendaType distinguishes regular agenda items from breaks. Only regular
// items appear in the end-of-meeting report.
type AgendaType string

const (
	AgendaTypeAgenda AgendaType = "agenda"
	AgendaTypeBreak  AgendaType = "break"
)

// AgendaAction is a caller-requested agenda operation.
type AgendaAction string

const (
	ActionStart  AgendaAction = "START"
	ActionPause  AgendaAction = "PAUSE"
	ActionResume AgendaAction = "RESUME"
	ActionEnd    AgendaAction = "END"
	ActionModify AgendaAction = "MODIFY"
)

// ParseAgendaAction parses a caller-supplied action token, case-insensitive.
func ParseAgendaAction(s string) (AgendaAction, error) {
	switch action := AgendaAction(strings.ToUpper(s)); action {
	case ActionStart, ActionPause, ActionResume, ActionEnd, ActionModify:
		return action, nil
	default:
		return "", apperror.Validation("action", "invalid action")
	}
}

// agendaTransitions is the exhaustive transition table: for each status, the
// actions it admits and the status they produce. MODIFY is a self-loop on
// every non-terminal status; completed and cancelled admit nothing.
var agendaTransitions = map[AgendaStatus]map[AgendaAction]AgendaStatus{
	AgendaPending: {
		ActionStart:  AgendaInProgress,
		ActionModify: AgendaPending,
	},
	AgendaInProgress: {
		ActionPause:  AgendaPaused,
		ActionEnd:    AgendaCompleted,
		ActionModify: AgendaInProgress,
	},
	AgendaPaused: {
		ActionResume: AgendaInProgress,
		ActionEnd:    AgendaCompleted,
		ActionModify: AgendaPaused,
	},
	AgendaCompleted: {},
	AgendaCancelled: {},
}

// Next returns the status that action produces from s, or an error when the
// transition table does not admit it.
func (s AgendaStatus) Next(action AgendaAction) (AgendaStatus, error) {
	if next, ok := agendaTransitions[s][action]; ok {
		return next, nil
	}
	return "", apperror.BadTransition("agendaStatus",
		"cannot "+string(action)+" agenda in "+string(s)+" status")
}

// Agenda is a timed work item within a meeting. Allocated is the planned
// duration; Accumulated collects finished running segments, with ResumedAt
// marking the start of the current one; Actual is fixed on completion.
// OrderNum is 1-based and contiguous within the meeting.
type Agenda struct {
	ID          uuid.UUID     `json:"id"`
	MeetingID   uuid.UUID     `json:"meeting_id"`
	Title       string        `json:"title"`
	Type        AgendaType    `json:"type"`
	Status      AgendaStatus  `json:"status"`
	OrderNum    int           `json:"order_num"`
	Allocated   time.Duration `json:"-"`
	Actual      time.Duration `json:"-"`
	Accumulated time.Duration `json:"-"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	ResumedAt   *time.Time    `json:"-"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Start begins a pending agenda and opens its first running segment.
func (a *Agenda) Start(now time.Time) error {
	next, err := a.Status.Next(ActionStart)
	if err != nil {
		return err
	}
	a.Status = next
	a.StartedAt = &now
	a.ResumedAt = &now
	return nil
}

// Pause closes the current running segment and accumulates its elapsed time.
func (a *Agenda) Pause(now time.Time) error {
	next, err := a.Status.Next(ActionPause)
	if err != nil {
		return err
	}
	a.Status = next
	a.closeSegment(now)
	return nil
}

// Resume opens a new running segment on a paused agenda.
func (a *Agenda) Resume(now time.Time) error {
	next, err := a.Status.Next(ActionResume)
	if err != nil {
		return err
	}
	a.Status = next
	a.ResumedAt = &now
	return nil
}

// Complete finishes a running or paused agenda and fixes its actual duration.
func (a *Agenda) Complete(now time.Time) error {
	next, err := a.Status.Next(ActionEnd)
	if err != nil {
		return err
	}
	a.Status = next
	a.closeSegment(now)
	a.Actual = a.Accumulated
	a.CompletedAt = &now
	return nil
}

// Cancel withdraws a pending agenda. Anything past pending must be completed
// instead of cancelled.
func (a *Agenda) Cancel() error {
	if a.Status != AgendaPending {
		return apperror.BadTransition("agendaStatus", "agenda is not pending")
	}
	a.Status = AgendaCancelled
	return nil
}

// ExtendDuration adjusts the planned duration by delta, never below zero.
// The agenda must still admit MODIFY.
func (a *Agenda) ExtendDuration(delta time.Duration) error {
	if _, err := a.Status.Next(ActionModify); err != nil {
		return err
	}
	a.Allocated += delta
	if a.Allocated < 0 {
		a.Allocated = 0
	}
	return nil
}

// CurrentDuration is the elapsed time so far: accumulated segments plus the
// open one when the agenda is running.
func (a *Agenda) CurrentDuration(now time.Time) time.Duration {
	if a.Status == AgendaInProgress && a.ResumedAt != nil {
		return a.Accumulated + now.Sub(*a.ResumedAt)
	}
	return a.Accumulated
}

// RemainingDuration is the planned time left, floored at zero once the agenda
// runs over its allocation.
func (a *Agenda) RemainingDuration(now time.Time) time.Duration {
	remaining := a.Allocated - a.CurrentDuration(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (a *Agenda) closeSegment(now time.Time) {
	if a.ResumedAt != nil {
		a.Accumulated += now.Sub(*a.ResumedAt)
		a.ResumedAt = nil
	}
}
