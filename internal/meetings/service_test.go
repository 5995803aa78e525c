package meetings

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/apperror"
)

// fakeTxRunner runs the function directly and counts transactions.
type fakeTxRunner struct {
	calls int
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// fakeMeetingStore keeps meetings by value so reads hand out copies,
// like rows scanned from the database.
type fakeMeetingStore struct {
	rows    map[uuid.UUID]models.Meeting
	updates int
}

func newFakeMeetingStore() *fakeMeetingStore {
	return &fakeMeetingStore{rows: make(map[uuid.UUID]models.Meeting)}
}

func (f *fakeMeetingStore) Create(ctx context.Context, m *models.Meeting) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	f.rows[m.ID] = *m
	return nil
}

func (f *fakeMeetingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeMeetingStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeMeetingStore) Update(ctx context.Context, m *models.Meeting) error {
	f.rows[m.ID] = *m
	f.updates++
	return nil
}

type fakeParticipantStore struct {
	rows []models.Participant
}

func (f *fakeParticipantStore) Add(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Participant, error) {
	for i := range f.rows {
		p := &f.rows[i]
		if p.MeetingID == meetingID && p.MemberID == memberID {
			p.LeftAt = nil
			row := *p
			return &row, nil
		}
	}
	p := models.Participant{ID: uuid.New(), MeetingID: meetingID, MemberID: memberID, JoinedAt: time.Now()}
	f.rows = append(f.rows, p)
	return &p, nil
}

func (f *fakeParticipantStore) Get(ctx context.Context, meetingID, memberID uuid.UUID) (*models.Participant, error) {
	for _, p := range f.rows {
		if p.MeetingID == meetingID && p.MemberID == memberID {
			row := p
			return &row, nil
		}
	}
	return nil, nil
}

func (f *fakeParticipantStore) ActiveByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Participant, error) {
	var active []models.Participant
	for _, p := range f.rows {
		if p.MeetingID == meetingID && p.LeftAt == nil {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].JoinedAt.Equal(active[j].JoinedAt) {
			return active[i].JoinedAt.Before(active[j].JoinedAt)
		}
		return active[i].ID.String() < active[j].ID.String()
	})
	return active, nil
}

func (f *fakeParticipantStore) MarkLeft(ctx context.Context, id uuid.UUID, at time.Time) error {
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].LeftAt = &at
			return nil
		}
	}
	return errors.New("participant not found")
}

type fakeAgendaStore struct {
	rows    map[uuid.UUID]models.Agenda
	updates int
}

func newFakeAgendaStore() *fakeAgendaStore {
	return &fakeAgendaStore{rows: make(map[uuid.UUID]models.Agenda)}
}

func (f *fakeAgendaStore) put(a models.Agenda) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.rows[a.ID] = a
}

func (f *fakeAgendaStore) ByMeeting(ctx context.Context, meetingID uuid.UUID) ([]models.Agenda, error) {
	var list []models.Agenda
	for _, a := range f.rows {
		if a.MeetingID == meetingID {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].OrderNum < list[j].OrderNum })
	return list, nil
}

func (f *fakeAgendaStore) Update(ctx context.Context, a *models.Agenda) error {
	f.rows[a.ID] = *a
	f.updates++
	return nil
}

type fakeMemberStore struct {
	rows map[uuid.UUID]models.Member
}

func newFakeMemberStore() *fakeMemberStore {
	return &fakeMemberStore{rows: make(map[uuid.UUID]models.Member)}
}

func (f *fakeMemberStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

type fakeScheduler struct {
	scheduled   map[uuid.UUID]time.Time
	unscheduled []uuid.UUID
	err         error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[uuid.UUID]time.Time)}
}

func (f *fakeScheduler) ScheduleMeetingStart(ctx context.Context, meetingID uuid.UUID, startAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled[meetingID] = startAt
	return nil
}

func (f *fakeScheduler) UnscheduleMeetingStart(ctx context.Context, meetingID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.unscheduled = append(f.unscheduled, meetingID)
	return nil
}

type fixture struct {
	svc          *Service
	tx           *fakeTxRunner
	meetings     *fakeMeetingStore
	participants *fakeParticipantStore
	agendas      *fakeAgendaStore
	members      *fakeMemberStore
	scheduler    *fakeScheduler
	now          time.Time
}

func newFixture() *fixture {
	f := &fixture{
		tx:           &fakeTxRunner{},
		meetings:     newFakeMeetingStore(),
		participants: &fakeParticipantStore{},
		agendas:      newFakeAgendaStore(),
		members:      newFakeMemberStore(),
		scheduler:    newFakeScheduler(),
		now:          time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.tx, f.meetings, f.participants, f.agendas, f.members, f.scheduler, nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) seedMeeting(status models.MeetingStatus, host uuid.UUID) *models.Meeting {
	m := models.Meeting{
		ID:           uuid.New(),
		Title:        "planning",
		Status:       status,
		HostMemberID: &host,
		StartTime:    f.now.Add(time.Hour),
	}
	f.meetings.rows[m.ID] = m
	return &m
}

func TestService_Create_RegistersHostAndSchedules(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	start := f.now.Add(2 * time.Hour)

	m, err := f.svc.Create(context.Background(), host, CreateMeetingInput{
		Title:          "sprint review",
		Location:       "room 4",
		StartTime:      start,
		EstimatedTotal: time.Hour,
	})
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, models.MeetingScheduled, m.Status)
	require.NotNil(t, m.HostMemberID)
	assert.Equal(t, host, *m.HostMemberID)
	assert.Equal(t, time.Hour, m.TotalEstimated)

	p, err := f.participants.Get(context.Background(), m.ID, host)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, start, f.scheduler.scheduled[m.ID])
	assert.Equal(t, 1, f.tx.calls)
}

func TestService_Create_ScheduleFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.scheduler.err = errors.New("redis down")

	m, err := f.svc.Create(context.Background(), uuid.New(), CreateMeetingInput{
		Title:          "standup",
		StartTime:      f.now.Add(time.Hour),
		EstimatedTotal: 15 * time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	_, ok := f.meetings.rows[m.ID]
	assert.True(t, ok)
}

func TestService_End_CascadesAgendas(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	m := f.seedMeeting(models.MeetingInProgress, host)

	resumedAt := f.now.Add(-12 * time.Minute)
	completedAt := f.now.Add(-time.Hour)
	running := models.Agenda{ID: uuid.New(), MeetingID: m.ID, Status: models.AgendaInProgress,
		OrderNum: 1, Accumulated: 3 * time.Minute, ResumedAt: &resumedAt}
	paused := models.Agenda{ID: uuid.New(), MeetingID: m.ID, Status: models.AgendaPaused,
		OrderNum: 2, Accumulated: 5 * time.Minute}
	pending := models.Agenda{ID: uuid.New(), MeetingID: m.ID, Status: models.AgendaPending, OrderNum: 3}
	done := models.Agenda{ID: uuid.New(), MeetingID: m.ID, Status: models.AgendaCompleted,
		OrderNum: 4, Actual: 20 * time.Minute, CompletedAt: &completedAt}
	for _, a := range []models.Agenda{running, paused, pending, done} {
		f.agendas.put(a)
	}

	got, err := f.svc.End(context.Background(), m.ID, host)
	require.NoError(t, err)
	assert.Equal(t, models.MeetingEnded, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, f.now, *got.EndedAt)

	assert.Equal(t, models.AgendaCompleted, f.agendas.rows[running.ID].Status)
	assert.Equal(t, 15*time.Minute, f.agendas.rows[running.ID].Actual)
	assert.Equal(t, models.AgendaCompleted, f.agendas.rows[paused.ID].Status)
	assert.Equal(t, 5*time.Minute, f.agendas.rows[paused.ID].Actual)
	assert.Equal(t, models.AgendaCancelled, f.agendas.rows[pending.ID].Status)

	// the already-completed agenda is untouched
	assert.Equal(t, 20*time.Minute, f.agendas.rows[done.ID].Actual)
	assert.Equal(t, 3, f.agendas.updates)
	assert.Equal(t, 1, f.tx.calls)
}

func TestService_End_NonHostForbidden(t *testing.T) {
	f := newFixture()
	m := f.seedMeeting(models.MeetingInProgress, uuid.New())

	_, err := f.svc.End(context.Background(), m.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))

	assert.Equal(t, models.MeetingInProgress, f.meetings.rows[m.ID].Status)
	assert.Zero(t, f.agendas.updates)
}

func TestService_End_MeetingNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.End(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_End_AlreadyClosed(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	m := f.seedMeeting(models.MeetingEnded, host)

	_, err := f.svc.End(context.Background(), m.ID, host)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestService_AddParticipant(t *testing.T) {
	f := newFixture()
	m := f.seedMeeting(models.MeetingScheduled, uuid.New())
	member := uuid.New()

	p, err := f.svc.AddParticipant(context.Background(), m.ID, member)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, member, p.MemberID)

	_, err = f.svc.AddParticipant(context.Background(), uuid.New(), member)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_Leave_HostLeavesReassignsAndMarksLeft(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	second := uuid.New()
	third := uuid.New()
	m := f.seedMeeting(models.MeetingInProgress, host)

	f.participants.rows = []models.Participant{
		{ID: uuid.New(), MeetingID: m.ID, MemberID: host, JoinedAt: f.now.Add(-30 * time.Minute)},
		{ID: uuid.New(), MeetingID: m.ID, MemberID: second, JoinedAt: f.now.Add(-20 * time.Minute)},
		{ID: uuid.New(), MeetingID: m.ID, MemberID: third, JoinedAt: f.now.Add(-10 * time.Minute)},
	}
	f.members.rows[host] = models.Member{ID: host, Nickname: "h"}

	require.NoError(t, f.svc.Leave(context.Background(), m.ID, host))

	updated := f.meetings.rows[m.ID]
	require.NotNil(t, updated.HostMemberID)
	assert.Equal(t, second, *updated.HostMemberID)

	p, err := f.participants.Get(context.Background(), m.ID, host)
	require.NoError(t, err)
	assert.True(t, p.Removed())

	// host handoff and departure commit together
	assert.Equal(t, 1, f.tx.calls)
}

func TestService_Leave_LastParticipantClearsHost(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	m := f.seedMeeting(models.MeetingInProgress, host)
	f.participants.rows = []models.Participant{
		{ID: uuid.New(), MeetingID: m.ID, MemberID: host, JoinedAt: f.now.Add(-time.Hour)},
	}
	f.members.rows[host] = models.Member{ID: host}

	require.NoError(t, f.svc.Leave(context.Background(), m.ID, host))
	assert.Nil(t, f.meetings.rows[m.ID].HostMemberID)
}

func TestService_Leave_Validation(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	m := f.seedMeeting(models.MeetingInProgress, host)
	member := uuid.New()
	f.members.rows[member] = models.Member{ID: member}

	// unknown meeting
	err := f.svc.Leave(context.Background(), uuid.New(), member)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))

	// unknown member
	err = f.svc.Leave(context.Background(), m.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))

	// member exists but never joined
	err = f.svc.Leave(context.Background(), m.ID, member)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))

	// already left
	leftAt := f.now.Add(-time.Minute)
	f.participants.rows = []models.Participant{
		{ID: uuid.New(), MeetingID: m.ID, MemberID: member, JoinedAt: f.now.Add(-time.Hour), LeftAt: &leftAt},
	}
	err = f.svc.Leave(context.Background(), m.ID, member)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_RemoveParticipant_NonHostIsNoop(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	m := f.seedMeeting(models.MeetingInProgress, host)

	require.NoError(t, f.svc.RemoveParticipant(context.Background(), m.ID, uuid.New()))
	assert.Zero(t, f.meetings.updates)
	require.NotNil(t, f.meetings.rows[m.ID].HostMemberID)
	assert.Equal(t, host, *f.meetings.rows[m.ID].HostMemberID)
}

func TestService_RemoveParticipant_HostHandsOver(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	next := uuid.New()
	m := f.seedMeeting(models.MeetingInProgress, host)
	f.participants.rows = []models.Participant{
		{ID: uuid.New(), MeetingID: m.ID, MemberID: host, JoinedAt: f.now.Add(-time.Hour)},
		{ID: uuid.New(), MeetingID: m.ID, MemberID: next, JoinedAt: f.now.Add(-30 * time.Minute)},
	}

	require.NoError(t, f.svc.RemoveParticipant(context.Background(), m.ID, host))
	require.NotNil(t, f.meetings.rows[m.ID].HostMemberID)
	assert.Equal(t, next, *f.meetings.rows[m.ID].HostMemberID)

	// the old host keeps their participant row
	p, err := f.participants.Get(context.Background(), m.ID, host)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.Removed())
}

func TestService_Cancel(t *testing.T) {
	f := newFixture()
	m := f.seedMeeting(models.MeetingScheduled, uuid.New())

	require.NoError(t, f.svc.Cancel(context.Background(), m.ID))
	assert.Equal(t, models.MeetingCancelled, f.meetings.rows[m.ID].Status)
	assert.Contains(t, f.scheduler.unscheduled, m.ID)

	running := f.seedMeeting(models.MeetingInProgress, uuid.New())
	err := f.svc.Cancel(context.Background(), running.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, models.MeetingInProgress, f.meetings.rows[running.ID].Status)
}

func TestService_Cancel_UnscheduleFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	m := f.seedMeeting(models.MeetingScheduled, uuid.New())
	f.scheduler.err = errors.New("redis down")

	require.NoError(t, f.svc.Cancel(context.Background(), m.ID))
	assert.Equal(t, models.MeetingCancelled, f.meetings.rows[m.ID].Status)
}

func TestService_CreateReport(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	m := f.seedMeeting(models.MeetingEnded, host)
	row := f.meetings.rows[m.ID]
	row.TotalEstimated = time.Hour
	row.TotalActual = time.Hour + 10*time.Minute
	f.meetings.rows[m.ID] = row

	f.agendas.put(models.Agenda{ID: uuid.New(), MeetingID: m.ID, Title: "kickoff", Type: models.AgendaTypeAgenda,
		Status: models.AgendaCompleted, OrderNum: 1, Allocated: 30 * time.Minute, Actual: 40 * time.Minute})
	f.agendas.put(models.Agenda{ID: uuid.New(), MeetingID: m.ID, Title: "coffee", Type: models.AgendaTypeBreak,
		Status: models.AgendaCompleted, OrderNum: 2, Allocated: 10 * time.Minute, Actual: 10 * time.Minute})
	f.agendas.put(models.Agenda{ID: uuid.New(), MeetingID: m.ID, Title: "retro", Type: models.AgendaTypeAgenda,
		Status: models.AgendaCancelled, OrderNum: 3, Allocated: 20 * time.Minute})

	report, err := f.svc.CreateReport(context.Background(), m.ID)
	require.NoError(t, err)

	assert.Equal(t, "+0:10:00", report.TotalDiff)
	assert.Equal(t, "Meeting minutes.", report.Memos)

	// only completed regular agendas make the report
	require.Len(t, report.Agendas, 1)
	item := report.Agendas[0]
	assert.Equal(t, "kickoff", item.Title)
	assert.Equal(t, "0:30:00", item.Allocated)
	assert.Equal(t, "0:40:00", item.Actual)
	assert.Equal(t, "+0:10:00", item.Diff)
}

func TestService_CreateReport_NoAgendas(t *testing.T) {
	f := newFixture()
	m := f.seedMeeting(models.MeetingEnded, uuid.New())

	report, err := f.svc.CreateReport(context.Background(), m.ID)
	require.NoError(t, err)
	assert.NotNil(t, report.Agendas)
	assert.Empty(t, report.Agendas)
	assert.Equal(t, "0:00:00", report.TotalDiff)
}

func TestService_Members(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	other := uuid.New()
	m := f.seedMeeting(models.MeetingInProgress, host)

	hostMember := models.Member{ID: host, Email: "host@example.com", Nickname: "host"}
	otherMember := models.Member{ID: other, Email: "other@example.com", Nickname: "other"}
	f.members.rows[host] = hostMember
	f.participants.rows = []models.Participant{
		{ID: uuid.New(), MeetingID: m.ID, MemberID: host, JoinedAt: f.now.Add(-time.Hour), Member: &hostMember},
		{ID: uuid.New(), MeetingID: m.ID, MemberID: other, JoinedAt: f.now.Add(-30 * time.Minute), Member: &otherMember},
	}

	got, err := f.svc.Members(context.Background(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Host)
	assert.Equal(t, host, got.Host.ID)

	// the host is not repeated in the members list
	require.Len(t, got.Members, 1)
	assert.Equal(t, other, got.Members[0].ID)
}

func TestService_Members_Empty(t *testing.T) {
	f := newFixture()
	m := f.seedMeeting(models.MeetingScheduled, uuid.New())

	got, err := f.svc.Members(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Host)
	assert.NotNil(t, got.Members)
	assert.Empty(t, got.Members)
}

func TestService_Members_HostRecordMissing(t *testing.T) {
	f := newFixture()
	host := uuid.New()
	m := f.seedMeeting(models.MeetingInProgress, host)
	f.participants.rows = []models.Participant{
		{ID: uuid.New(), MeetingID: m.ID, MemberID: host, JoinedAt: f.now.Add(-time.Hour)},
	}

	_, err := f.svc.Members(context.Background(), m.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_RemainingTime(t *testing.T) {
	f := newFixture()
	m := f.seedMeeting(models.MeetingInProgress, uuid.New())
	row := f.meetings.rows[m.ID]
	startedAt := f.now.Add(-10 * time.Minute)
	row.StartedAt = &startedAt
	row.TotalActual = 45 * time.Minute
	f.meetings.rows[m.ID] = row

	remaining, err := f.svc.RemainingTime(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 35*time.Minute, remaining)

	_, err = f.svc.RemainingTime(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_StartScheduled(t *testing.T) {
	f := newFixture()
	m := f.seedMeeting(models.MeetingScheduled, uuid.New())

	got, started, err := f.svc.StartScheduled(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, models.MeetingInProgress, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.Equal(t, f.now, *got.StartedAt)

	// a second trigger for the same meeting is a no-op
	got, started, err = f.svc.StartScheduled(context.Background(), m.ID)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, models.MeetingInProgress, got.Status)

	_, _, err = f.svc.StartScheduled(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}
