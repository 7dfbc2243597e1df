package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

type mockDeadlineStore struct {
	mock.Mock
}

func (m *mockDeadlineStore) CreateBatch(ctx context.Context, deadlines []models.Deadline) error {
	args := m.Called(ctx, deadlines)
	return args.Error(0)
}

func (m *mockDeadlineStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Deadline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deadline), args.Error(1)
}

func (m *mockDeadlineStore) GetPendingByType(ctx context.Context, transactionID uuid.UUID, deadlineType string) (*models.Deadline, error) {
	args := m.Called(ctx, transactionID, deadlineType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deadline), args.Error(1)
}

func (m *mockDeadlineStore) ListDueBefore(ctx context.Context, before time.Time, limit int) ([]models.Deadline, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Deadline), args.Error(1)
}

func (m *mockDeadlineStore) MarkOverdue(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockDeadlineStore) MarkReminded(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockDeadlineStore) BumpEscalation(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockDeadlineStore) CancelByTypes(ctx context.Context, transactionID uuid.UUID, types []string) error {
	args := m.Called(ctx, transactionID, types)
	return args.Error(0)
}

func (m *mockDeadlineStore) CompleteAll(ctx context.Context, transactionID uuid.UUID) error {
	args := m.Called(ctx, transactionID)
	return args.Error(0)
}

func (m *mockDeadlineStore) Extend(ctx context.Context, id uuid.UUID, newDueAt time.Time, extra time.Duration) error {
	args := m.Called(ctx, id, newDueAt, extra)
	return args.Error(0)
}

func (m *mockDeadlineStore) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Deadline, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).([]models.Deadline), args.Error(1)
}

type mockAdminDirectory struct {
	mock.Mock
}

func (m *mockAdminDirectory) ListAdmins(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func newTestDeadlines(deadlines *mockDeadlineStore, ledger *mockDisputeLedger, disputes *mockDisputeStore, timeline *mockTimelineStore, admins *mockAdminDirectory, notifier *mockNotifier) *DeadlineService {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewDeadlineService(deadlines, ledger, disputes, timeline, admins, notifier, testSchedulerPolicy(), log)
}

func TestDeadlines_Schedule_ScalesByJobType(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	svc := newTestDeadlines(deadlines, new(mockDisputeLedger), new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), new(mockNotifier))
	ctx := context.Background()

	tx := &models.EscrowTransaction{ID: uuid.New()}
	job := &models.Job{ID: uuid.New(), Type: models.JobTypeUrgent}

	deadlines.On("GetPendingByType", ctx, tx.ID, models.DeadlineTypeApproval).Return(nil, repository.ErrDeadlineNotFound)
	var batch []models.Deadline
	deadlines.On("CreateBatch", ctx, mock.Anything).Run(func(args mock.Arguments) {
		batch = args.Get(1).([]models.Deadline)
	}).Return(nil)

	err := svc.ScheduleForTransaction(ctx, tx, job)

	assert.NoError(t, err)
	assert.Len(t, batch, 3)

	byType := map[string]models.Deadline{}
	for _, d := range batch {
		assert.Equal(t, tx.ID, d.TransactionID)
		assert.Equal(t, models.DeadlineStatusPending, d.Status)
		byType[d.Type] = d
	}

	// Срочный заказ сокращает сроки вдвое: приёмка 168h становится 84h.
	approval := byType[models.DeadlineTypeApproval]
	assert.WithinDuration(t, time.Now().Add(84*time.Hour), approval.DueAt, time.Minute)
	autoRelease := byType[models.DeadlineTypeAutoRelease]
	assert.WithinDuration(t, time.Now().Add(120*time.Hour), autoRelease.DueAt, time.Minute)
}

func TestDeadlines_Schedule_SkipsWhenBatchAlreadyExists(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	svc := newTestDeadlines(deadlines, new(mockDisputeLedger), new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), new(mockNotifier))
	ctx := context.Background()

	tx := &models.EscrowTransaction{ID: uuid.New()}
	job := &models.Job{ID: uuid.New(), Type: models.JobTypeStandard}

	existing := &models.Deadline{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		Type:          models.DeadlineTypeApproval,
		Status:        models.DeadlineStatusPending,
	}
	deadlines.On("GetPendingByType", ctx, tx.ID, models.DeadlineTypeApproval).Return(existing, nil)

	err := svc.ScheduleForTransaction(ctx, tx, job)

	assert.NoError(t, err)
	deadlines.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
}

func TestDeadlines_Extend_CapPerType(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	ledger := new(mockDisputeLedger)
	svc := newTestDeadlines(deadlines, ledger, new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), new(mockNotifier))
	ctx := context.Background()

	clientID := uuid.New()
	d := &models.Deadline{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		Type:          models.DeadlineTypeAutoRelease,
		DueAt:         time.Now().Add(24 * time.Hour),
		Status:        models.DeadlineStatusPending,
	}
	deadlines.On("GetByID", ctx, d.ID).Return(d, nil)
	ledger.On("Get", ctx, d.TransactionID).Return(&models.EscrowTransaction{
		ID: d.TransactionID, ClientID: clientID, WorkerID: uuid.New(), Status: models.EscrowStatusHeld,
	}, nil)

	// Лимит auto_release 72 часа.
	_, err := svc.ExtendDeadline(ctx, d.ID, clientID, models.RoleClient, 100*time.Hour, "нужно больше времени")

	assert.True(t, apperror.IsValidation(err))
	deadlines.AssertNotCalled(t, "Extend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeadlines_Extend_CapIsCumulative(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	ledger := new(mockDisputeLedger)
	svc := newTestDeadlines(deadlines, ledger, new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), new(mockNotifier))
	ctx := context.Background()

	clientID := uuid.New()
	d := &models.Deadline{
		ID:              uuid.New(),
		TransactionID:   uuid.New(),
		Type:            models.DeadlineTypeApproval,
		DueAt:           time.Now().Add(24 * time.Hour),
		Status:          models.DeadlineStatusPending,
		ExtendedSeconds: int64((150 * time.Hour).Seconds()),
	}
	deadlines.On("GetByID", ctx, d.ID).Return(d, nil)
	ledger.On("Get", ctx, d.TransactionID).Return(&models.EscrowTransaction{
		ID: d.TransactionID, ClientID: clientID, WorkerID: uuid.New(), Status: models.EscrowStatusHeld,
	}, nil)

	// Лимит approval 168 часов, 150 уже использовано: ещё 24 не помещаются.
	_, err := svc.ExtendDeadline(ctx, d.ID, clientID, models.RoleClient, 24*time.Hour, "ещё немного")

	assert.True(t, apperror.IsValidation(err))
	deadlines.AssertNotCalled(t, "Extend", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeadlines_Extend_Success(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	ledger := new(mockDisputeLedger)
	svc := newTestDeadlines(deadlines, ledger, new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), new(mockNotifier))
	ctx := context.Background()

	clientID := uuid.New()
	dueAt := time.Now().Add(24 * time.Hour)
	d := &models.Deadline{
		ID:              uuid.New(),
		TransactionID:   uuid.New(),
		Type:            models.DeadlineTypeApproval,
		DueAt:           dueAt,
		Status:          models.DeadlineStatusPending,
		ReminderSent:    true,
		EscalationLevel: 1,
	}
	deadlines.On("GetByID", ctx, d.ID).Return(d, nil)
	ledger.On("Get", ctx, d.TransactionID).Return(&models.EscrowTransaction{
		ID: d.TransactionID, ClientID: clientID, WorkerID: uuid.New(), Status: models.EscrowStatusHeld,
	}, nil)
	deadlines.On("Extend", ctx, d.ID, dueAt.Add(48*time.Hour), 48*time.Hour).Return(nil)

	extended, err := svc.ExtendDeadline(ctx, d.ID, clientID, models.RoleClient, 48*time.Hour, "согласовано с исполнителем")

	assert.NoError(t, err)
	assert.Equal(t, dueAt.Add(48*time.Hour), extended.DueAt)
	assert.Equal(t, int64((48*time.Hour).Seconds()), extended.ExtendedSeconds)
	assert.False(t, extended.ReminderSent)
	assert.Equal(t, 0, extended.EscalationLevel)
}

func TestDeadlines_Extend_ForbiddenForStranger(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	ledger := new(mockDisputeLedger)
	svc := newTestDeadlines(deadlines, ledger, new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), new(mockNotifier))
	ctx := context.Background()

	d := &models.Deadline{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		Type:          models.DeadlineTypeApproval,
		DueAt:         time.Now().Add(24 * time.Hour),
		Status:        models.DeadlineStatusPending,
	}
	deadlines.On("GetByID", ctx, d.ID).Return(d, nil)
	ledger.On("Get", ctx, d.TransactionID).Return(&models.EscrowTransaction{
		ID: d.TransactionID, ClientID: uuid.New(), WorkerID: uuid.New(), Status: models.EscrowStatusHeld,
	}, nil)

	_, err := svc.ExtendDeadline(ctx, d.ID, uuid.New(), models.RoleClient, time.Hour, "")

	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestDeadlines_Sweep_SendsReminderOnce(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	ledger := new(mockDisputeLedger)
	notifier := new(mockNotifier)
	svc := newTestDeadlines(deadlines, ledger, new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), notifier)
	ctx := context.Background()

	clientID := uuid.New()
	workerID := uuid.New()
	d := models.Deadline{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		Type:          models.DeadlineTypeAutoRelease,
		DueAt:         time.Now().Add(2 * time.Hour),
		Status:        models.DeadlineStatusPending,
	}
	deadlines.On("ListDueBefore", ctx, mock.Anything, 200).Return([]models.Deadline{d}, nil)
	deadlines.On("MarkReminded", ctx, d.ID).Return(nil)
	ledger.On("Get", ctx, d.TransactionID).Return(&models.EscrowTransaction{
		ID: d.TransactionID, ClientID: clientID, WorkerID: workerID, Status: models.EscrowStatusHeld,
	}, nil)
	notifier.On("Notify", ctx, clientID, "deadline_approaching", mock.Anything, mock.Anything).Return()
	notifier.On("Notify", ctx, workerID, "deadline_approaching", mock.Anything, mock.Anything).Return()

	reminders, actions := svc.Sweep(ctx)

	assert.Equal(t, 1, reminders)
	assert.Equal(t, 0, actions)
	notifier.AssertExpectations(t)
}

func TestDeadlines_Sweep_AutoReleaseOnOverdue(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	ledger := new(mockDisputeLedger)
	timeline := new(mockTimelineStore)
	svc := newTestDeadlines(deadlines, ledger, new(mockDisputeStore), timeline, new(mockAdminDirectory), new(mockNotifier))
	ctx := context.Background()

	d := models.Deadline{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		Type:          models.DeadlineTypeAutoRelease,
		DueAt:         time.Now().Add(-time.Hour),
		Status:        models.DeadlineStatusPending,
	}
	deadlines.On("ListDueBefore", ctx, mock.Anything, 200).Return([]models.Deadline{d}, nil)
	deadlines.On("MarkOverdue", ctx, d.ID).Return(nil)
	timeline.On("Append", ctx, mock.Anything).Return(nil)
	ledger.On("Release", ctx, d.TransactionID, uuid.Nil, mock.Anything, true).
		Return(&models.EscrowTransaction{ID: d.TransactionID, Status: models.EscrowStatusReleased}, nil)

	reminders, actions := svc.Sweep(ctx)

	assert.Equal(t, 0, reminders)
	assert.Equal(t, 1, actions)
	ledger.AssertExpectations(t)
}

func TestDeadlines_Sweep_IdempotentOnStatusConflict(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	ledger := new(mockDisputeLedger)
	svc := newTestDeadlines(deadlines, ledger, new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), new(mockNotifier))
	ctx := context.Background()

	d := models.Deadline{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		Type:          models.DeadlineTypeAutoRelease,
		DueAt:         time.Now().Add(-time.Hour),
		Status:        models.DeadlineStatusPending,
	}
	deadlines.On("ListDueBefore", ctx, mock.Anything, 200).Return([]models.Deadline{d}, nil)
	// Параллельный обход уже обработал дедлайн.
	deadlines.On("MarkOverdue", ctx, d.ID).Return(repository.ErrStatusConflict)

	_, actions := svc.Sweep(ctx)

	assert.Equal(t, 0, actions)
	ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeadlines_Sweep_ApprovalEscalatesBeforeForcedRelease(t *testing.T) {
	deadlines := new(mockDeadlineStore)
	ledger := new(mockDisputeLedger)
	notifier := new(mockNotifier)
	svc := newTestDeadlines(deadlines, ledger, new(mockDisputeStore), new(mockTimelineStore), new(mockAdminDirectory), notifier)
	ctx := context.Background()

	clientID := uuid.New()
	d := models.Deadline{
		ID:              uuid.New(),
		TransactionID:   uuid.New(),
		Type:            models.DeadlineTypeApproval,
		DueAt:           time.Now().Add(-time.Hour),
		Status:          models.DeadlineStatusPending,
		EscalationLevel: 0,
	}
	deadlines.On("ListDueBefore", ctx, mock.Anything, 200).Return([]models.Deadline{d}, nil)
	ledger.On("Get", ctx, d.TransactionID).Return(&models.EscrowTransaction{
		ID: d.TransactionID, ClientID: clientID, WorkerID: uuid.New(), Status: models.EscrowStatusHeld,
	}, nil)
	deadlines.On("BumpEscalation", ctx, d.ID).Return(nil)
	notifier.On("Notify", ctx, clientID, "deadline_overdue", mock.Anything, mock.Anything).Return()

	_, actions := svc.Sweep(ctx)

	assert.Equal(t, 1, actions)
	ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
