package models

import "github.com/google/uuid"

// AgendaReportItem is one completed regular agenda in a meeting report.
// Durations are pre-formatted clock strings, Diff carries an explicit sign.
type AgendaReportItem struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Allocated string    `json:"allocated_duration"`
	Actual    string    `json:"actual_duration"`
	Diff      string    `json:"diff"`
}

// MeetingReport is the end-of-meeting summary: the signed difference between
// the accumulated and the originally estimated total, per-agenda differences
// and the minutes placeholder.
type MeetingReport struct {
	TotalDiff string             `json:"total_diff"`
	Agendas   []AgendaReportItem `json:"agendas"`
	Memos     string             `json:"memos"`
}

// MeetingMembers lists the active participants of a meeting with the host
// singled out. Host is nil when the meeting has no host left.
type MeetingMembers struct {
	Host    *MemberPublic  `json:"host"`
	Members []MemberPublic `json:"members"`
}
