package agendas

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FacerAin/dnd-10th-2-backend/internal/models"
	"github.com/FacerAin/dnd-10th-2-backend/pkg/apperror"
)

type fakeTxRunner struct {
	calls int
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// fakeAgendaStore keeps agendas by value so reads hand out copies,
// like rows scanned from the database.
type fakeAgendaStore struct {
	rows    map[uuid.UUID]models.Agenda
	updates int
}

func newFakeAgendaStore() *fakeAgendaStore {
	return &fakeAgendaStore{rows: make(map[uuid.UUID]models.Agenda)}
}

func (f *fakeAgendaStore) put(a models.Agenda) uuid.UUID {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.rows[a.ID] = a
	return a.ID
}

func (f *fakeAgendaStore) Create(ctx context.Context, a *models.Agenda) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.rows[a.ID] = *a
	return nil
}

func (f *fakeAgendaStore) GetByID(ctx context.Context, meetingID, agendaID uuid.UUID) (*models.Agenda, error) {
	row, ok := f.rows[agendaID]
	if !ok || row.MeetingID != meetingID {
		return nil, nil
	}
	return &row, nil
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

func (f *fakeAgendaStore) CountByMeeting(ctx context.Context, meetingID uuid.UUID) (int, error) {
	n := 0
	for _, a := range f.rows {
		if a.MeetingID == meetingID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAgendaStore) Update(ctx context.Context, a *models.Agenda) error {
	f.rows[a.ID] = *a
	f.updates++
	return nil
}

type fakeMeetingStore struct {
	rows map[uuid.UUID]models.Meeting
}

func newFakeMeetingStore() *fakeMeetingStore {
	return &fakeMeetingStore{rows: make(map[uuid.UUID]models.Meeting)}
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
	return nil
}

type fakeParticipantStore struct {
	rows []models.Participant
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

type fixture struct {
	svc          *Service
	tx           *fakeTxRunner
	meetings     *fakeMeetingStore
	agendas      *fakeAgendaStore
	participants *fakeParticipantStore
	now          time.Time
	meetingID    uuid.UUID
	memberID     uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		tx:           &fakeTxRunner{},
		meetings:     newFakeMeetingStore(),
		agendas:      newFakeAgendaStore(),
		participants: &fakeParticipantStore{},
		now:          time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		meetingID:    uuid.New(),
		memberID:     uuid.New(),
	}
	f.svc = NewService(f.tx, f.meetings, f.agendas, f.participants, nil)
	f.svc.now = func() time.Time { return f.now }

	f.meetings.rows[f.meetingID] = models.Meeting{
		ID:             f.meetingID,
		Status:         models.MeetingInProgress,
		TotalEstimated: time.Hour,
		TotalActual:    30 * time.Minute,
	}
	f.participants.rows = []models.Participant{
		{ID: uuid.New(), MeetingID: f.meetingID, MemberID: f.memberID, JoinedAt: f.now.Add(-time.Hour)},
	}
	return f
}

func (f *fixture) totalActual() time.Duration {
	return f.meetings.rows[f.meetingID].TotalActual
}

func TestService_Create_AppendsAndAccumulatesTotal(t *testing.T) {
	f := newFixture()
	f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 1})

	a, err := f.svc.Create(context.Background(), f.meetingID, f.memberID, CreateAgendaInput{
		Title:     "design review",
		Type:      models.AgendaTypeAgenda,
		Allocated: 20 * time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, models.AgendaPending, a.Status)
	assert.Equal(t, 2, a.OrderNum)
	assert.Equal(t, 20*time.Minute, a.Allocated)

	// the allocation lands on the meeting total in the same transaction
	assert.Equal(t, 50*time.Minute, f.totalActual())
	assert.Equal(t, 1, f.tx.calls)
}

func TestService_Create_RequiresParticipant(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), f.meetingID, uuid.New(), CreateAgendaInput{
		Title:     "hijack",
		Type:      models.AgendaTypeAgenda,
		Allocated: 10 * time.Minute,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, 30*time.Minute, f.totalActual())
}

func TestService_Create_MeetingNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), uuid.New(), f.memberID, CreateAgendaInput{Title: "x"})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_ChangeStatus_Lifecycle(t *testing.T) {
	f := newFixture()
	id := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending,
		OrderNum: 1, Allocated: 30 * time.Minute})

	res, err := f.svc.ChangeStatus(context.Background(), f.meetingID, id, "start", "")
	require.NoError(t, err)
	assert.Equal(t, models.AgendaInProgress, res.Agenda.Status)
	assert.Equal(t, time.Duration(0), res.Current)
	assert.Equal(t, 30*time.Minute, res.Remaining)

	f.now = f.now.Add(10 * time.Minute)
	res, err = f.svc.ChangeStatus(context.Background(), f.meetingID, id, "PAUSE", "")
	require.NoError(t, err)
	assert.Equal(t, models.AgendaPaused, res.Agenda.Status)
	assert.Equal(t, 10*time.Minute, res.Current)
	assert.Equal(t, 20*time.Minute, res.Remaining)

	f.now = f.now.Add(5 * time.Minute)
	res, err = f.svc.ChangeStatus(context.Background(), f.meetingID, id, "resume", "")
	require.NoError(t, err)
	assert.Equal(t, models.AgendaInProgress, res.Agenda.Status)

	f.now = f.now.Add(25 * time.Minute)
	res, err = f.svc.ChangeStatus(context.Background(), f.meetingID, id, "end", "")
	require.NoError(t, err)
	assert.Equal(t, models.AgendaCompleted, res.Agenda.Status)
	assert.Equal(t, 35*time.Minute, res.Agenda.Actual)
	assert.Equal(t, 35*time.Minute, res.Current)
	// five minutes over the allocation
	assert.Equal(t, time.Duration(0), res.Remaining)
}

func TestService_ChangeStatus_InvalidTransition(t *testing.T) {
	f := newFixture()
	id := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 1})

	_, err := f.svc.ChangeStatus(context.Background(), f.meetingID, id, "pause", "")
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, models.AgendaPending, f.agendas.rows[id].Status)
	assert.Zero(t, f.agendas.updates)
}

func TestService_ChangeStatus_UnknownAction(t *testing.T) {
	f := newFixture()
	id := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 1})

	_, err := f.svc.ChangeStatus(context.Background(), f.meetingID, id, "EXTEND", "")
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestService_ChangeStatus_AgendaNotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ChangeStatus(context.Background(), f.meetingID, uuid.New(), "start", "")
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))

	// an agenda id from another meeting is just as absent
	other := uuid.New()
	f.meetings.rows[other] = models.Meeting{ID: other, Status: models.MeetingInProgress}
	id := f.agendas.put(models.Agenda{MeetingID: other, Status: models.AgendaPending, OrderNum: 1})
	_, err = f.svc.ChangeStatus(context.Background(), f.meetingID, id, "start", "")
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_ChangeStatus_ModifyExtendsBothTotals(t *testing.T) {
	f := newFixture()
	id := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaInProgress,
		OrderNum: 1, Allocated: 30 * time.Minute})

	res, err := f.svc.ChangeStatus(context.Background(), f.meetingID, id, "modify", "00:10")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Minute, res.Agenda.Allocated)
	assert.Equal(t, models.AgendaInProgress, res.Agenda.Status)
	assert.Equal(t, 40*time.Minute, f.totalActual())
}

func TestService_ChangeStatus_ModifyBadDuration(t *testing.T) {
	f := newFixture()
	id := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaInProgress,
		OrderNum: 1, Allocated: 30 * time.Minute})

	for _, bad := range []string{"", "ten minutes", "1:30", "00:60"} {
		_, err := f.svc.ChangeStatus(context.Background(), f.meetingID, id, "modify", bad)
		require.Error(t, err, bad)
		assert.True(t, apperror.IsValidation(err), bad)
	}
	assert.Equal(t, 30*time.Minute, f.agendas.rows[id].Allocated)
	assert.Equal(t, 30*time.Minute, f.totalActual())
}

func TestService_ChangeStatus_ModifyCompletedRejected(t *testing.T) {
	f := newFixture()
	id := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaCompleted,
		OrderNum: 1, Allocated: 30 * time.Minute})

	_, err := f.svc.ChangeStatus(context.Background(), f.meetingID, id, "modify", "00:10")
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, 30*time.Minute, f.totalActual())
}

func TestService_Cancel_PendingReturnsAllocation(t *testing.T) {
	f := newFixture()
	id := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending,
		OrderNum: 1, Allocated: 20 * time.Minute})

	require.NoError(t, f.svc.Cancel(context.Background(), f.meetingID, id))
	assert.Equal(t, models.AgendaCancelled, f.agendas.rows[id].Status)
	assert.Equal(t, 10*time.Minute, f.totalActual())
}

func TestService_Cancel_NonPendingRejected(t *testing.T) {
	f := newFixture()
	id := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaInProgress,
		OrderNum: 1, Allocated: 20 * time.Minute})

	err := f.svc.Cancel(context.Background(), f.meetingID, id)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, models.AgendaInProgress, f.agendas.rows[id].Status)
	assert.Equal(t, 30*time.Minute, f.totalActual())
}

func TestService_Cancel_NotFound(t *testing.T) {
	f := newFixture()
	err := f.svc.Cancel(context.Background(), f.meetingID, uuid.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_ChangeOrder_Reorders(t *testing.T) {
	f := newFixture()
	a := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Title: "a", Status: models.AgendaPending, OrderNum: 1})
	b := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Title: "b", Status: models.AgendaPending, OrderNum: 2})
	c := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Title: "c", Status: models.AgendaPending, OrderNum: 3})

	bundle, err := f.svc.ChangeOrder(context.Background(), f.meetingID, []uuid.UUID{c, a, b})
	require.NoError(t, err)

	assert.Equal(t, 1, f.agendas.rows[c].OrderNum)
	assert.Equal(t, 2, f.agendas.rows[a].OrderNum)
	assert.Equal(t, 3, f.agendas.rows[b].OrderNum)

	require.Len(t, bundle.Agendas, 3)
	assert.Equal(t, []string{"c", "a", "b"},
		[]string{bundle.Agendas[0].Title, bundle.Agendas[1].Title, bundle.Agendas[2].Title})
}

func TestService_ChangeOrder_DuplicateIDs(t *testing.T) {
	f := newFixture()
	a := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 1})
	b := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 2})

	_, err := f.svc.ChangeOrder(context.Background(), f.meetingID, []uuid.UUID{a, a, b})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, 1, f.agendas.rows[a].OrderNum)
	assert.Equal(t, 2, f.agendas.rows[b].OrderNum)
}

func TestService_ChangeOrder_IncompleteList(t *testing.T) {
	f := newFixture()
	a := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 1})
	f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 2})

	_, err := f.svc.ChangeOrder(context.Background(), f.meetingID, []uuid.UUID{a})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestService_ChangeOrder_ForeignID(t *testing.T) {
	f := newFixture()
	a := f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 1})
	f.agendas.put(models.Agenda{MeetingID: f.meetingID, Status: models.AgendaPending, OrderNum: 2})

	_, err := f.svc.ChangeOrder(context.Background(), f.meetingID, []uuid.UUID{a, uuid.New()})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_FindAgendas_SortedBundle(t *testing.T) {
	f := newFixture()
	f.agendas.put(models.Agenda{MeetingID: f.meetingID, Title: "second", Status: models.AgendaPending, OrderNum: 2})
	f.agendas.put(models.Agenda{MeetingID: f.meetingID, Title: "first", Status: models.AgendaPending, OrderNum: 1})

	bundle, err := f.svc.FindAgendas(context.Background(), f.meetingID)
	require.NoError(t, err)
	require.NotNil(t, bundle.Meeting)
	require.Len(t, bundle.Agendas, 2)
	assert.Equal(t, "first", bundle.Agendas[0].Title)
	assert.Equal(t, "second", bundle.Agendas[1].Title)

	_, err = f.svc.FindAgendas(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}
