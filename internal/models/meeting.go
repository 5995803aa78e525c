package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/FacerAin/dnd-10th-2-backend/pkg/apperror"
)

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingScheduled  MeetingStatus = "scheduled"
	MeetingInProgress MeetingStatus = "in_progress"
	MeetingEnded      MeetingStatus = "ended"
	MeetingCancelled  MeetingStatus = "cancelled"
)

// Meeting is the aggregate root for a timed meeting: the host, the scheduled
// start, and the running duration totals accumulated from agenda allocations.
// TotalEstimated is fixed at creation; TotalActual grows and shrinks as
// agendas are created, extended and cancelled.
type Meeting struct {
	ID             uuid.UUID     `json:"id"`
	Title          string        `json:"title"`
	Location       string        `json:"location"`
	HostMemberID   *uuid.UUID    `json:"host_member_id,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	Status         MeetingStatus `json:"status"`
	TotalEstimated time.Duration `json:"-"`
	TotalActual    time.Duration `json:"-"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsHost reports whether memberID currently hosts the meeting.
func (m *Meeting) IsHost(memberID uuid.UUID) bool {
	return m.HostMemberID != nil && *m.HostMemberID == memberID
}

// Start transitions a scheduled meeting to in_progress.
func (m *Meeting) Start(now time.Time) error {
	if m.Status != MeetingScheduled {
		return apperror.BadTransition("meetingStatus", "meeting is not scheduled")
	}
	m.Status = MeetingInProgress
	m.StartedAt = &now
	return nil
}

// End transitions a scheduled or running meeting to ended.
func (m *Meeting) End(now time.Time) error {
	if m.Status != MeetingScheduled && m.Status != MeetingInProgress {
		return apperror.BadTransition("meetingStatus", "meeting is already closed")
	}
	m.Status = MeetingEnded
	m.EndedAt = &now
	return nil
}

// Cancel transitions a scheduled meeting to cancelled. Running or closed
// meetings cannot be cancelled.
func (m *Meeting) Cancel() error {
	if m.Status != MeetingScheduled {
		return apperror.BadTransition("meetingStatus", "meeting is not scheduled")
	}
	m.Status = MeetingCancelled
	return nil
}

// AddActualDuration adjusts the running total of agenda allocations by delta,
// which may be negative. The total never goes below zero.
func (m *Meeting) AddActualDuration(delta time.Duration) {
	m.TotalActual += delta
	if m.TotalActual < 0 {
		m.TotalActual = 0
	}
}

// RemainingTime derives how much planned time is left. Before the start it is
// the whole planned total; while running it counts down from the start time;
// closed meetings have none left.
func (m *Meeting) RemainingTime(now time.Time) time.Duration {
	switch m.Status {
	case MeetingScheduled:
		return m.TotalActual
	case MeetingInProgress:
		start := m.StartTime
		if m.StartedAt != nil {
			start = *m.StartedAt
		}
		remaining := m.TotalActual - now.Sub(start)
		if remaining < 0 {
			return 0
		}
		return remaining
	default:
		return 0
	}
}

// NextHost picks the replacement host when the current host leaves: the
// earliest-joined remaining active participant, ties broken by smallest
// participant id. Returns nil when nobody remains.
func NextHost(participants []Participant, leavingMemberID uuid.UUID) *Participant {
	var next *Participant
	for i := range participants {
		p := &participants[i]
		if p.MemberID == leavingMemberID || p.Removed() {
			continue
		}
		if next == nil {
			next = p
			continue
		}
		if p.JoinedAt.Before(next.JoinedAt) ||
			(p.JoinedAt.Equal(next.JoinedAt) && p.ID.String() < next.ID.String()) {
			next = p
		}
	}
	return next
}
