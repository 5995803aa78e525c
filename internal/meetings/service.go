package meetings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/apperror"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/timeutil"
)

// MeetingStore is the meeting persistence the service depends on.
type MeetingStore interface {
	Create(ctx context.Context, m *models.Meeting) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	Update(ctx context.Context, m *models.Meeting) error
}

// ParticipantStore is the participant persistence the service depends on.
type ParticipantStore interface {
	Add(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Participant, error)
	Get(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Participant, error)
	ActiveByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Participant, error)
	MarkLeft(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AgendaStore is the slice of agenda persistence the meeting lifecycle
// needs: the end cascade and report building.
type AgendaStore interface {
	ByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Agenda, error)
	Update(ctx context.Context, a *models.Agenda) error
}

// MemberStore resolves member identities.
type MemberStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

// Scheduler registers future meeting-start triggers.
type Scheduler interface {
	ScheduleMeetingStart(ctx context.Context, meetingID uuid.UUID, startAt time.Time) error
	UnscheduleMeetingStart(ctx context.Context, meetingID uuid.UUID) error
}

// TxRunner runs a function inside one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service owns the meeting lifecycle: creation, participant membership,
// host transfer, termination, cancellation and reporting.
type Service struct {
	run          TxRunner
	meetings     MeetingStore
	participants ParticipantStore
	agendas      AgendaStore
	members      MemberStore
	scheduler    Scheduler
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a meeting service.
func NewService(run TxRunner, meetings MeetingStore, participants ParticipantStore,
	agendas AgendaStore, members MemberStore, scheduler Scheduler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		run:          run,
		meetings:     meetings,
		participants: participants,
		agendas:      agendas,
		members:      members,
		scheduler:    scheduler,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateMeetingInput carries the fields for a new meeting.
type CreateMeetingInput struct {
	Title          string
	Location       string
	StartTime      time.Time
	EstimatedTotal time.Duration
}

// Create persists a new meeting hosted by hostMemberID, registers the host
// as its first participant and hands the start time to the scheduler.
// Scheduling is fire and forget: a failure is logged, not returned.
func (s *Service) Create(ctx context.Context, hostMemberID uuid.UUID, in CreateMeetingInput) (*models.Meeting, error) {
	m := &models.Meeting{
		Title:          in.Title,
		Location:       in.Location,
		HostMemberID:   &hostMemberID,
		StartTime:      in.StartTime,
		Status:         models.MeetingScheduled,
		TotalEstimated: in.EstimatedTotal,
	}
	err := s.run.WithTx(ctx, func(ctx context.Context) error {
		if err := s.meetings.Create(ctx, m); err != nil {
			return fmt.Errorf("create meeting: %w", err)
		}
		if _, err := s.participants.Add(ctx, m.ID, hostMemberID); err != nil {
			return fmt.Errorf("add host participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.scheduler.ScheduleMeetingStart(ctx, m.ID, m.StartTime); err != nil {
		s.logger.Warn("failed to schedule meeting start",
			zap.String("meeting_id", m.ID.String()), zap.Error(err))
	}
	return m, nil
}

// End closes a meeting. Only the host may end it. Running and paused
// agendas are force-completed and pending ones cancelled in the same
// transaction; completed and cancelled agendas are untouched.
func (s *Service) End(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Meeting, error) {
	var meeting *models.Meeting
	err := s.run.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.meetings.GetByIDForUpdate(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("get meeting: %w", err)
		}
		if m == nil {
			return apperror.NotFound("meetingId", "meeting not found")
		}
		if !m.IsHost(memberID) {
			return apperror.Forbidden("memberId", "member is not the host of the meeting")
		}
		now := s.now()
		if err := m.End(now); err != nil {
			return err
		}
		if err := s.meetings.Update(ctx, m); err != nil {
			return fmt.Errorf("update meeting: %w", err)
		}

		agendas, err := s.agendas.ByMeeting(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("list agendas: %w", err)
		}
		for i := range agendas {
			a := &agendas[i]
			switch a.Status {
			case models.AgendaInProgress, models.AgendaPaused:
				if err := a.Complete(now); err != nil {
					return err
				}
			case models.AgendaPending:
				if err := a.Cancel(); err != nil {
					return err
				}
			default:
				continue
			}
			if err := s.agendas.Update(ctx, a); err != nil {
				return fmt.Errorf("update agenda: %w", err)
			}
		}
		meeting = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meeting, nil
}

// AddParticipant joins memberID into a meeting. Joining twice is a no-op
// and a member who left is re-activated.
func (s *Service) AddParticipant(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Participant, error) {
	var participant *models.Participant
	err := s.run.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.meetings.GetByID(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("get meeting: %w", err)
		}
		if m == nil {
			return apperror.NotFound("meetingId", "meeting not found")
		}
		p, err := s.participants.Add(ctx, meetingID, memberID)
		if err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

// RemoveParticipant hands the host role to another active participant when
// the departing member hosts the meeting. The participant row itself is
// left alone; Leave is the full removal path.
func (s *Service) RemoveParticipant(ctx context.Context, meetingID, memberID uuid.UUID) error {
	return s.run.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.meetings.GetByIDForUpdate(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("get meeting: %w", err)
		}
		if m == nil {
			return apperror.NotFound("meetingId", "meeting not found")
		}
		if !m.IsHost(memberID) {
			return nil
		}
		return s.reassignHost(ctx, m, memberID)
	})
}

// Leave removes memberID from a meeting: the participant is marked left
// and, when the leaver hosts the meeting, the host role moves to another
// active participant first. Both writes commit together.
func (s *Service) Leave(ctx context.Context, meetingID, memberID uuid.UUID) error {
	return s.run.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.meetings.GetByIDForUpdate(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("get meeting: %w", err)
		}
		if m == nil {
			return apperror.NotFound("meetingId", "meeting not found")
		}
		member, err := s.members.GetByID(ctx, memberID)
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if member == nil {
			return apperror.NotFound("memberId", "member not found")
		}
		p, err := s.participants.Get(ctx, meetingID, memberID)
		if err != nil {
			return fmt.Errorf("get participant: %w", err)
		}
		if p == nil || p.Removed() {
			return apperror.NotFound("participantId", "participant not found")
		}

		if m.IsHost(memberID) {
			if err := s.reassignHost(ctx, m, memberID); err != nil {
				return err
			}
		}
		if err := s.participants.MarkLeft(ctx, p.ID, s.now()); err != nil {
			return fmt.Errorf("mark participant left: %w", err)
		}
		return nil
	})
}

// reassignHost moves the host role to the earliest-joined remaining active
// participant, or clears it when nobody remains. Caller holds the meeting
// row lock.
func (s *Service) reassignHost(ctx context.Context, m *models.Meeting, leavingMemberID uuid.UUID) error {
	participants, err := s.participants.ActiveByMeeting(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	next := models.NextHost(participants, leavingMemberID)
	if next == nil {
		m.HostMemberID = nil
	} else {
		hostID := next.MemberID
		m.HostMemberID = &hostID
	}
	if err := s.meetings.Update(ctx, m); err != nil {
		return fmt.Errorf("update meeting host: %w", err)
	}
	return nil
}

// Cancel withdraws a scheduled meeting and drops its start trigger.
// Agendas are left untouched.
func (s *Service) Cancel(ctx context.Context, meetingID uuid.UUID) error {
	err := s.run.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.meetings.GetByIDForUpdate(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("get meeting: %w", err)
		}
		if m == nil {
			return apperror.NotFound("meetingId", "meeting not found")
		}
		if err := m.Cancel(); err != nil {
			return err
		}
		if err := s.meetings.Update(ctx, m); err != nil {
			return fmt.Errorf("update meeting: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.scheduler.UnscheduleMeetingStart(ctx, meetingID); err != nil {
		s.logger.Warn("failed to unschedule meeting start",
			zap.String("meeting_id", meetingID.String()), zap.Error(err))
	}
	return nil
}

// CreateReport builds the end-of-meeting summary from the completed
// regular agendas and the meeting duration totals.
func (s *Service) CreateReport(ctx context.Context, meetingID uuid.UUID) (*models.MeetingReport, error) {
	m, err := s.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	if m == nil {
		return nil, apperror.NotFound("meetingId", "meeting not found")
	}
	agendas, err := s.agendas.ByMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list agendas: %w", err)
	}

	items := make([]models.AgendaReportItem, 0, len(agendas))
	for _, a := range agendas {
		if a.Type != models.AgendaTypeAgenda || a.Status != models.AgendaCompleted {
			continue
		}
		items = append(items, models.AgendaReportItem{
			ID:        a.ID,
			Title:     a.Title,
			Allocated: timeutil.FormatClock(a.Allocated),
			Actual:    timeutil.FormatClock(a.Actual),
			Diff:      timeutil.FormatSigned(a.Actual - a.Allocated),
		})
	}
	return &models.MeetingReport{
		TotalDiff: timeutil.FormatSigned(m.TotalActual - m.TotalEstimated),
		Agendas:   items,
		Memos:     "Meeting minutes.",
	}, nil
}

// FindByID returns a meeting or NotFound.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	m, err := s.meetings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	if m == nil {
		return nil, apperror.NotFound("meetingId", "meeting not found")
	}
	return m, nil
}

// Members returns the host detail and the non-host active participants of
// a meeting. A meeting without participants yields an empty response, not
// an error.
func (s *Service) Members(ctx context.Context, meetingID uuid.UUID) (*models.MeetingMembers, error) {
	m, err := s.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	if m == nil {
		return nil, apperror.NotFound("meetingId", "meeting not found")
	}
	participants, err := s.participants.ActiveByMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if len(participants) == 0 {
		return &models.MeetingMembers{Members: []models.MemberPublic{}}, nil
	}

	var host *models.MemberPublic
	if m.HostMemberID != nil {
		hostMember, err := s.members.GetByID(ctx, *m.HostMemberID)
		if err != nil {
			return nil, fmt.Errorf("get host member: %w", err)
		}
		if hostMember == nil {
			return nil, apperror.NotFound("hostMemberId", "host member not found")
		}
		hp := hostMember.ToPublic()
		host = &hp
	}

	members := make([]models.MemberPublic, 0, len(participants))
	for _, p := range participants {
		if m.IsHost(p.MemberID) || p.Member == nil {
			continue
		}
		members = append(members, p.Member.ToPublic())
	}
	return &models.MeetingMembers{Host: host, Members: members}, nil
}

// RemainingTime derives how much planned time the meeting has left.
func (s *Service) RemainingTime(ctx context.Context, meetingID uuid.UUID) (time.Duration, error) {
	m, err := s.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return 0, fmt.Errorf("get meeting: %w", err)
	}
	if m == nil {
		return 0, apperror.NotFound("meetingId", "meeting not found")
	}
	return m.RemainingTime(s.now()), nil
}

// StartScheduled starts a meeting whose scheduled time has arrived. It is
// invoked by the worker; a meeting no longer in scheduled state is skipped
// without error so stale triggers stay harmless.
func (s *Service) StartScheduled(ctx context.Context, meetingID uuid.UUID) (*models.Meeting, bool, error) {
	var (
		meeting *models.Meeting
		started bool
	)
	err := s.run.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.meetings.GetByIDForUpdate(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("get meeting: %w", err)
		}
		if m == nil {
			return apperror.NotFound("meetingId", "meeting not found")
		}
		meeting = m
		if m.Status != models.MeetingScheduled {
			return nil
		}
		if err := m.Start(s.now()); err != nil {
			return err
		}
		if err := s.meetings.Update(ctx, m); err != nil {
			return fmt.Errorf("update meeting: %w", err)
		}
		started = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return meeting, started, nil
}
