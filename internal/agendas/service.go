package agendas

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/apperror"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/timeutil"
)

// AgendaStore is the agenda persistence the service depends on.
type AgendaStore interface {
	Create(ctx context.Context, a *models.Agenda) error
	GetByID(ctx context.Context, meetingID, agendaID uuid.UUID) (*models.Agenda, error)
	ByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Agenda, error)
	CountByMeeting(ctx context.Context, meetingID uuid.UUID) (int, error)
	Update(ctx context.Context, a *models.Agenda) error
}

// MeetingStore is the slice of meeting persistence agenda operations need:
// lookups and the duration total they write back to.
type MeetingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	Update(ctx context.Context, m *models.Meeting) error
}

// ParticipantStore checks meeting membership.
type ParticipantStore interface {
	Get(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Participant, error)
}

// TxRunner runs a function inside one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service owns the agenda lifecycle within a meeting: creation, status
// transitions, ordering and the propagation of duration deltas back to the
// owning meeting.
type Service struct {
	run          TxRunner
	meetings     MeetingStore
	agendas      AgendaStore
	participants ParticipantStore
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates an agenda service.
func NewService(run TxRunner, meetings MeetingStore, agendas AgendaStore,
	participants ParticipantStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		run:          run,
		meetings:     meetings,
		agendas:      agendas,
		participants: participants,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateAgendaInput carries the fields for a new agenda.
type CreateAgendaInput struct {
	Title     string
	Type      models.AgendaType
	Allocated time.Duration
}

// StatusResult is the outcome of a status-changing action: the updated
// agenda with its elapsed and remaining time at that moment.
type StatusResult struct {
	Agenda    *models.Agenda
	Current   time.Duration
	Remaining time.Duration
}

// Bundle is a meeting with its agendas in display order.
type Bundle struct {
	Meeting *models.Meeting
	Agendas []models.Agenda
}

// Create appends a new pending agenda to a meeting and adds its allocation
// to the meeting's running total, in one transaction. Only current
// participants may create agendas.
func (s *Service) Create(ctx context.Context, meetingID, memberID uuid.UUID, in CreateAgendaInput) (*models.Agenda, error) {
	var agenda *models.Agenda
	err := s.run.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.meetings.GetByID(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("get meeting: %w", err)
		}
		if m == nil {
			return apperror.NotFound("meetingId", "meeting not found")
		}
		p, err := s.participants.Get(ctx, meetingID, memberID)
		if err != nil {
			return fmt.Errorf("get participant: %w", err)
		}
		if p == nil || p.Removed() {
			return apperror.Validation("memberId", "member is not a participant of the meeting")
		}

		count, err := s.agendas.CountByMeeting(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("count agendas: %w", err)
		}
		a := &models.Agenda{
			MeetingID: meetingID,
			Title:     in.Title,
			Type:      in.Type,
			Status:    models.AgendaPending,
			OrderNum:  count + 1,
			Allocated: in.Allocated,
		}
		if err := s.agendas.Create(ctx, a); err != nil {
			return fmt.Errorf("create agenda: %w", err)
		}
		if err := s.applyMeetingDurationDelta(ctx, meetingID, in.Allocated); err != nil {
			return err
		}
		agenda = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agenda, nil
}

// ChangeStatus applies one state-machine action to an agenda. MODIFY parses
// modifiedDuration as a clock value and extends both the agenda allocation
// and the meeting total by it, in the same transaction.
func (s *Service) ChangeStatus(ctx context.Context, meetingID, agendaID uuid.UUID, action, modifiedDuration string) (*StatusResult, error) {
	var result *StatusResult
	err := s.run.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.agendas.GetByID(ctx, meetingID, agendaID)
		if err != nil {
			return fmt.Errorf("get agenda: %w", err)
		}
		if a == nil {
			return apperror.NotFound("agendaId", "agenda not found")
		}

		act, err := models.ParseAgendaAction(action)
		if err != nil {
			return err
		}
		now := s.now()
		switch act {
		case models.ActionStart:
			err = a.Start(now)
		case models.ActionPause:
			err = a.Pause(now)
		case models.ActionResume:
			err = a.Resume(now)
		case models.ActionEnd:
			err = a.Complete(now)
		case models.ActionModify:
			delta, perr := timeutil.ParseClock(modifiedDuration)
			if perr != nil {
				return apperror.Validation("modifiedDuration", "invalid time format")
			}
			if err = a.ExtendDuration(delta); err == nil {
				err = s.applyMeetingDurationDelta(ctx, meetingID, delta)
			}
		}
		if err != nil {
			return err
		}

		if err := s.agendas.Update(ctx, a); err != nil {
			return fmt.Errorf("update agenda: %w", err)
		}
		result = &StatusResult{
			Agenda:    a,
			Current:   a.CurrentDuration(now),
			Remaining: a.RemainingDuration(now),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel withdraws a pending agenda and subtracts its allocation from the
// meeting total, in one transaction.
func (s *Service) Cancel(ctx context.Context, meetingID, agendaID uuid.UUID) error {
	return s.run.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.agendas.GetByID(ctx, meetingID, agendaID)
		if err != nil {
			return fmt.Errorf("get agenda: %w", err)
		}
		if a == nil {
			return apperror.NotFound("agendaId", "agenda not found")
		}
		if err := a.Cancel(); err != nil {
			return err
		}
		if err := s.agendas.Update(ctx, a); err != nil {
			return fmt.Errorf("update agenda: %w", err)
		}
		return s.applyMeetingDurationDelta(ctx, meetingID, -a.Allocated)
	})
}

// FindAll returns the agendas of a meeting.
func (s *Service) FindAll(ctx context.Context, meetingID uuid.UUID) ([]models.Agenda, error) {
	return s.agendas.ByMeeting(ctx, meetingID)
}

// FindAgendas returns the meeting with its agendas sorted by order.
func (s *Service) FindAgendas(ctx context.Context, meetingID uuid.UUID) (*Bundle, error) {
	m, err := s.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	if m == nil {
		return nil, apperror.NotFound("meetingId", "meeting not found")
	}
	list, err := s.agendas.ByMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list agendas: %w", err)
	}
	sortByOrder(list)
	return &Bundle{Meeting: m, Agendas: list}, nil
}

// ChangeOrder reassigns order numbers by list position. The id list must
// cover the meeting's agendas exactly once each.
func (s *Service) ChangeOrder(ctx context.Context, meetingID uuid.UUID, agendaIDs []uuid.UUID) (*Bundle, error) {
	var bundle *Bundle
	err := s.run.WithTx(ctx, func(ctx context.Context) error {
		m, err := s.meetings.GetByID(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("get meeting: %w", err)
		}
		if m == nil {
			return apperror.NotFound("meetingId", "meeting not found")
		}
		list, err := s.agendas.ByMeeting(ctx, meetingID)
		if err != nil {
			return fmt.Errorf("list agendas: %w", err)
		}

		distinct := make(map[uuid.UUID]struct{}, len(agendaIDs))
		for _, id := range agendaIDs {
			distinct[id] = struct{}{}
		}
		if len(distinct) != len(agendaIDs) {
			return apperror.Validation("agendaIds", "agenda ids are not unique")
		}
		if len(agendaIDs) != len(list) {
			return apperror.Validation("agendaIds", "agenda ids must cover every agenda of the meeting")
		}

		byID := make(map[uuid.UUID]*models.Agenda, len(list))
		for i := range list {
			byID[list[i].ID] = &list[i]
		}
		for i, id := range agendaIDs {
			a, ok := byID[id]
			if !ok {
				return apperror.NotFound("agendaId", "agenda id "+id.String()+" not found")
			}
			a.OrderNum = i + 1
			if err := s.agendas.Update(ctx, a); err != nil {
				return fmt.Errorf("update agenda order: %w", err)
			}
		}
		sortByOrder(list)
		bundle = &Bundle{Meeting: m, Agendas: list}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// applyMeetingDurationDelta adjusts the meeting's running duration total
// under its row lock. All agenda paths that touch the total go through
// here so the two aggregates only ever change together.
func (s *Service) applyMeetingDurationDelta(ctx context.Context, meetingID uuid.UUID, delta time.Duration) error {
	m, err := s.meetings.GetByIDForUpdate(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("get meeting: %w", err)
	}
	if m == nil {
		return apperror.NotFound("meetingId", "meeting not found")
	}
	m.AddActualDuration(delta)
	if err := s.meetings.Update(ctx, m); err != nil {
		return fmt.Errorf("update meeting total: %w", err)
	}
	return nil
}

func sortByOrder(list []models.Agenda) {
	sort.Slice(list, func(i, j int) bool { return list[i].OrderNum < list[j].OrderNum })
}
