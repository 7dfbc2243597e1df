package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

type mockEscrowStore struct {
	mock.Mock
}

func (m *mockEscrowStore) Create(ctx context.Context, t *models.EscrowTransaction) error {
	args := m.Called(ctx, t)
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	return args.Error(0)
}

func (m *mockEscrowStore) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowTransaction), args.Error(1)
}

func (m *mockEscrowStore) GetActiveBySlot(ctx context.Context, jobID uuid.UUID, milestoneID *uuid.UUID) (*models.EscrowTransaction, error) {
	args := m.Called(ctx, jobID, milestoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowTransaction), args.Error(1)
}

func (m *mockEscrowStore) UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to string) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *mockEscrowStore) MarkDisputed(ctx context.Context, id uuid.UUID, from, reason string) error {
	args := m.Called(ctx, id, from, reason)
	return args.Error(0)
}

func (m *mockEscrowStore) MarkRefunded(ctx context.Context, id uuid.UUID, from, to string, refundedAmount float64) error {
	args := m.Called(ctx, id, from, to, refundedAmount)
	return args.Error(0)
}

func (m *mockEscrowStore) SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	args := m.Called(ctx, id, reference)
	return args.Error(0)
}

func (m *mockEscrowStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.EscrowTransaction), args.Error(1)
}

func (m *mockEscrowStore) CountReleasedByClientSince(ctx context.Context, clientID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, clientID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockEscrowStore) RecordProcessorFailure(ctx context.Context, f *models.ProcessorFailure) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockJobStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockJobStore) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockTimelineStore struct {
	mock.Mock
}

func (m *mockTimelineStore) Append(ctx context.Context, e *models.TimelineEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockTimelineStore) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.TimelineEvent, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).([]models.TimelineEvent), args.Error(1)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) AuthorizeAndHold(ctx context.Context, amount float64, currency, paymentMethod, idempotencyKey string) (string, error) {
	args := m.Called(ctx, amount, currency, paymentMethod, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) Capture(ctx context.Context, reference string) (string, error) {
	args := m.Called(ctx, reference)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) Refund(ctx context.Context, reference string, amount float64, idempotencyKey string) (string, error) {
	args := m.Called(ctx, reference, amount, idempotencyKey)
	return args.String(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID uuid.UUID, event, message string, metadata map[string]interface{}) {
	m.Called(ctx, userID, event, message, metadata)
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) ScheduleForTransaction(ctx context.Context, t *models.EscrowTransaction, job *models.Job) error {
	args := m.Called(ctx, t, job)
	return args.Error(0)
}

func (m *mockScheduler) CompleteForTransaction(ctx context.Context, transactionID uuid.UUID) error {
	args := m.Called(ctx, transactionID)
	return args.Error(0)
}

func testEscrowPolicy() config.EscrowPolicy {
	return config.EscrowPolicy{
		BaseFeeRate:       0.05,
		PremiumFeeRate:    0.04,
		EliteFeeRate:      0.035,
		RecurringDiscount: 0.10,
		MinFee:            2,
		MaxFee:            50,
		MinAmount:         5,
		MaxAmount:         50000,
		MinHoldPeriod:     24 * time.Hour,
		Currency:          "USD",
	}
}

func testSchedulerPolicy() config.SchedulerPolicy {
	return config.SchedulerPolicy{
		ApprovalDeadline:        168 * time.Hour,
		AutoReleaseDeadline:     240 * time.Hour,
		DisputeDeadline:         720 * time.Hour,
		WarningWindow:           24 * time.Hour,
		DisputeEscalation:       72 * time.Hour,
		MediationWindow:         168 * time.Hour,
		ForcedResolution:        336 * time.Hour,
		SweepInterval:           time.Hour,
		RiskSweepInterval:       6 * time.Hour,
		ApprovalExtensionCap:    168 * time.Hour,
		AutoReleaseExtensionCap: 72 * time.Hour,
		DisputeExtensionCap:     240 * time.Hour,
	}
}

func newTestLedger(escrows *mockEscrowStore, jobs *mockJobStore, users *mockUserStore, timeline *mockTimelineStore, proc *mockProcessor, notifier *mockNotifier) *LedgerService {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewLedgerService(escrows, jobs, users, timeline, proc, notifier, testEscrowPolicy(), testSchedulerPolicy(), log)
}

func TestComputeFee_TiersAndDiscount(t *testing.T) {
	svc := newTestLedger(new(mockEscrowStore), new(mockJobStore), new(mockUserStore), new(mockTimelineStore), new(mockProcessor), new(mockNotifier))

	base := svc.ComputeFee(1000, false, models.WorkerTierStandard)
	assert.Equal(t, 50.0, base.Fee)
	assert.Equal(t, 950.0, base.WorkerNet)

	premium := svc.ComputeFee(1000, false, models.WorkerTierPremium)
	assert.Equal(t, 40.0, premium.Fee)

	elite := svc.ComputeFee(1000, false, models.WorkerTierElite)
	assert.Equal(t, 35.0, elite.Fee)

	eliteRecurring := svc.ComputeFee(1000, true, models.WorkerTierElite)
	assert.Equal(t, 31.50, eliteRecurring.Fee)
	assert.Equal(t, 968.50, eliteRecurring.WorkerNet)
	assert.InDelta(t, 0.0315, eliteRecurring.EffectiveRate, 1e-9)
}

func TestComputeFee_Clamps(t *testing.T) {
	svc := newTestLedger(new(mockEscrowStore), new(mockJobStore), new(mockUserStore), new(mockTimelineStore), new(mockProcessor), new(mockNotifier))

	small := svc.ComputeFee(10, false, models.WorkerTierStandard)
	assert.Equal(t, 2.0, small.Fee, "комиссия не опускается ниже минимума")

	large := svc.ComputeFee(50000, false, models.WorkerTierStandard)
	assert.Equal(t, 50.0, large.Fee, "комиссия не превышает максимум")
	assert.Equal(t, 49950.0, large.WorkerNet)
}

func TestValidate_AmountBounds(t *testing.T) {
	svc := newTestLedger(new(mockEscrowStore), new(mockJobStore), new(mockUserStore), new(mockTimelineStore), new(mockProcessor), new(mockNotifier))

	result := svc.Validate(context.Background(), nil, nil, nil, 100, nil)
	assert.False(t, result.OK())
	assert.Contains(t, result.Errors[0], "заказ не найден")
}

func TestLedger_Create_SlotConflict(t *testing.T) {
	escrows := new(mockEscrowStore)
	jobs := new(mockJobStore)
	users := new(mockUserStore)
	svc := newTestLedger(escrows, jobs, users, new(mockTimelineStore), new(mockProcessor), new(mockNotifier))
	ctx := context.Background()

	clientID := uuid.New()
	workerID := uuid.New()
	job := &models.Job{ID: uuid.New(), ClientID: clientID, WorkerID: workerID, Status: models.JobStatusInProgress, Type: models.JobTypeStandard}
	client := &models.User{ID: clientID, IsActive: true, HasDefaultPayMethod: true}
	worker := &models.User{ID: workerID, IsActive: true, Tier: models.WorkerTierStandard}

	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	users.On("GetByID", ctx, clientID).Return(client, nil)
	users.On("GetByID", ctx, workerID).Return(worker, nil)
	existing := &models.EscrowTransaction{ID: uuid.New(), Status: models.EscrowStatusHeld}
	escrows.On("GetActiveBySlot", ctx, job.ID, (*uuid.UUID)(nil)).Return(existing, nil)

	_, _, err := svc.Create(ctx, CreateEscrowInput{
		JobID:    job.ID,
		ClientID: clientID,
		WorkerID: workerID,
		Amount:   500,
	})

	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeConflict, appErr.Code)
	escrows.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLedger_Create_ProcessorFailureExpiresTransaction(t *testing.T) {
	escrows := new(mockEscrowStore)
	jobs := new(mockJobStore)
	users := new(mockUserStore)
	proc := new(mockProcessor)
	svc := newTestLedger(escrows, jobs, users, new(mockTimelineStore), proc, new(mockNotifier))
	ctx := context.Background()

	clientID := uuid.New()
	workerID := uuid.New()
	job := &models.Job{ID: uuid.New(), ClientID: clientID, WorkerID: workerID, Status: models.JobStatusInProgress, Type: models.JobTypeStandard}

	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	users.On("GetByID", ctx, clientID).Return(&models.User{ID: clientID, IsActive: true, HasDefaultPayMethod: true}, nil)
	users.On("GetByID", ctx, workerID).Return(&models.User{ID: workerID, IsActive: true, Tier: models.WorkerTierStandard}, nil)
	escrows.On("GetActiveBySlot", ctx, job.ID, (*uuid.UUID)(nil)).Return(nil, repository.ErrTransactionNotFound)
	escrows.On("CountReleasedByClientSince", ctx, clientID, mock.Anything).Return(0, nil)
	escrows.On("Create", ctx, mock.Anything).Return(nil)
	proc.On("AuthorizeAndHold", ctx, 500.0, "USD", "card", mock.Anything).Return("", errors.New("connection refused"))
	escrows.On("RecordProcessorFailure", ctx, mock.Anything).Return(nil)
	escrows.On("UpdateStatusCAS", ctx, mock.Anything, models.EscrowStatusPending, models.EscrowStatusExpired).Return(nil)

	_, _, err := svc.Create(ctx, CreateEscrowInput{
		JobID:         job.ID,
		ClientID:      clientID,
		WorkerID:      workerID,
		Amount:        500,
		PaymentMethod: "card",
	})

	assert.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))
	escrows.AssertExpectations(t)
}

func TestLedger_Release_OnlyFromHeld(t *testing.T) {
	escrows := new(mockEscrowStore)
	proc := new(mockProcessor)
	svc := newTestLedger(escrows, new(mockJobStore), new(mockUserStore), new(mockTimelineStore), proc, new(mockNotifier))
	ctx := context.Background()

	txID := uuid.New()
	escrows.On("GetByID", ctx, txID).Return(&models.EscrowTransaction{ID: txID, Status: models.EscrowStatusPending}, nil)

	_, err := svc.Release(ctx, txID, uuid.New(), "", false)

	assert.True(t, apperror.IsInvalidState(err))
	proc.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
}

func TestLedger_Release_ClientBlockedByMinHold(t *testing.T) {
	escrows := new(mockEscrowStore)
	jobs := new(mockJobStore)
	proc := new(mockProcessor)
	svc := newTestLedger(escrows, jobs, new(mockUserStore), new(mockTimelineStore), proc, new(mockNotifier))
	ctx := context.Background()

	clientID := uuid.New()
	ref := "hold_1"
	tx := &models.EscrowTransaction{
		ID:               uuid.New(),
		JobID:            uuid.New(),
		ClientID:         clientID,
		WorkerID:         uuid.New(),
		Status:           models.EscrowStatusHeld,
		PaymentReference: &ref,
		CreatedAt:        time.Now().Add(-1 * time.Hour),
	}
	escrows.On("GetByID", ctx, tx.ID).Return(tx, nil)
	jobs.On("GetByID", ctx, tx.JobID).Return(&models.Job{ID: tx.JobID, Status: models.JobStatusCompleted}, nil)

	_, err := svc.Release(ctx, tx.ID, clientID, "работа принята", false)

	assert.True(t, apperror.IsInvalidState(err))
	proc.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
}

func TestLedger_Release_Success(t *testing.T) {
	escrows := new(mockEscrowStore)
	jobs := new(mockJobStore)
	timeline := new(mockTimelineStore)
	proc := new(mockProcessor)
	notifier := new(mockNotifier)
	svc := newTestLedger(escrows, jobs, new(mockUserStore), timeline, proc, notifier)
	ctx := context.Background()

	workerID := uuid.New()
	ref := "hold_2"
	tx := &models.EscrowTransaction{
		ID:               uuid.New(),
		JobID:            uuid.New(),
		ClientID:         uuid.New(),
		WorkerID:         workerID,
		Status:           models.EscrowStatusHeld,
		WorkerNetAmount:  475,
		PaymentReference: &ref,
		CreatedAt:        time.Now().Add(-48 * time.Hour),
	}
	escrows.On("GetByID", ctx, tx.ID).Return(tx, nil)
	jobs.On("GetByID", ctx, tx.JobID).Return(&models.Job{ID: tx.JobID, Status: models.JobStatusPendingCompletion}, nil)
	proc.On("Capture", ctx, ref).Return("receipt_1", nil)
	escrows.On("UpdateStatusCAS", ctx, tx.ID, models.EscrowStatusHeld, models.EscrowStatusReleased).Return(nil)
	timeline.On("Append", ctx, mock.Anything).Return(nil)
	jobs.On("MarkCompleted", ctx, tx.JobID).Return(nil)
	notifier.On("Notify", ctx, workerID, "escrow_released", mock.Anything, mock.Anything).Return()

	released, err := svc.Release(ctx, tx.ID, workerID, "", false)

	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, released.Status)
	escrows.AssertExpectations(t)
	proc.AssertExpectations(t)
}

func TestLedger_Refund_PartialKeepsJobCompleted(t *testing.T) {
	escrows := new(mockEscrowStore)
	jobs := new(mockJobStore)
	timeline := new(mockTimelineStore)
	proc := new(mockProcessor)
	notifier := new(mockNotifier)
	svc := newTestLedger(escrows, jobs, new(mockUserStore), timeline, proc, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	ref := "hold_3"
	tx := &models.EscrowTransaction{
		ID:               uuid.New(),
		JobID:            uuid.New(),
		ClientID:         clientID,
		WorkerID:         uuid.New(),
		Status:           models.EscrowStatusHeld,
		GrossAmount:      100,
		PaymentReference: &ref,
	}
	escrows.On("GetByID", ctx, tx.ID).Return(tx, nil)
	proc.On("Refund", ctx, ref, 30.0, tx.ID.String()+":refund").Return("refund_1", nil)
	escrows.On("MarkRefunded", ctx, tx.ID, models.EscrowStatusHeld, models.EscrowStatusPartiallyRefunded, 30.0).Return(nil)
	timeline.On("Append", ctx, mock.Anything).Return(nil)
	jobs.On("MarkCompleted", ctx, tx.JobID).Return(nil)
	notifier.On("Notify", ctx, clientID, "escrow_refunded", mock.Anything, mock.Anything).Return()

	partial := 30.0
	refunded, err := svc.Refund(ctx, tx.ID, clientID, models.RoleClient, "доработка не требуется", &partial)

	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusPartiallyRefunded, refunded.Status)
	jobs.AssertNotCalled(t, "MarkCancelled", mock.Anything, mock.Anything)
}

func TestLedger_Refund_MilestoneLeavesJobUntouched(t *testing.T) {
	escrows := new(mockEscrowStore)
	jobs := new(mockJobStore)
	timeline := new(mockTimelineStore)
	proc := new(mockProcessor)
	notifier := new(mockNotifier)
	svc := newTestLedger(escrows, jobs, new(mockUserStore), timeline, proc, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	milestoneID := uuid.New()
	ref := "hold_5"
	tx := &models.EscrowTransaction{
		ID:               uuid.New(),
		JobID:            uuid.New(),
		MilestoneID:      &milestoneID,
		ClientID:         clientID,
		WorkerID:         uuid.New(),
		Status:           models.EscrowStatusHeld,
		GrossAmount:      100,
		PaymentReference: &ref,
	}
	escrows.On("GetByID", ctx, tx.ID).Return(tx, nil)
	proc.On("Refund", ctx, ref, 100.0, tx.ID.String()+":refund").Return("refund_2", nil)
	escrows.On("MarkRefunded", ctx, tx.ID, models.EscrowStatusHeld, models.EscrowStatusRefunded, 100.0).Return(nil)
	timeline.On("Append", ctx, mock.Anything).Return(nil)
	notifier.On("Notify", ctx, clientID, "escrow_refunded", mock.Anything, mock.Anything).Return()

	// Полный возврат по вехе не отменяет заказ целиком.
	refunded, err := svc.Refund(ctx, tx.ID, clientID, models.RoleClient, "веха снята с заказа", nil)

	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, refunded.Status)
	jobs.AssertNotCalled(t, "MarkCancelled", mock.Anything, mock.Anything)
	jobs.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
}

func TestLedger_Refund_RejectsInvalidPartialAmount(t *testing.T) {
	escrows := new(mockEscrowStore)
	proc := new(mockProcessor)
	svc := newTestLedger(escrows, new(mockJobStore), new(mockUserStore), new(mockTimelineStore), proc, new(mockNotifier))
	ctx := context.Background()

	clientID := uuid.New()
	ref := "hold_4"
	tx := &models.EscrowTransaction{
		ID:               uuid.New(),
		ClientID:         clientID,
		Status:           models.EscrowStatusHeld,
		GrossAmount:      100,
		PaymentReference: &ref,
	}
	escrows.On("GetByID", ctx, tx.ID).Return(tx, nil)

	over := 150.0
	_, err := svc.Refund(ctx, tx.ID, clientID, models.RoleClient, "", &over)
	assert.True(t, apperror.IsValidation(err))

	zero := 0.0
	_, err = svc.Refund(ctx, tx.ID, clientID, models.RoleClient, "", &zero)
	assert.True(t, apperror.IsValidation(err))

	proc.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLedger_Refund_ForbiddenForWorker(t *testing.T) {
	escrows := new(mockEscrowStore)
	svc := newTestLedger(escrows, new(mockJobStore), new(mockUserStore), new(mockTimelineStore), new(mockProcessor), new(mockNotifier))
	ctx := context.Background()

	workerID := uuid.New()
	tx := &models.EscrowTransaction{ID: uuid.New(), ClientID: uuid.New(), WorkerID: workerID, Status: models.EscrowStatusHeld, GrossAmount: 100}
	escrows.On("GetByID", ctx, tx.ID).Return(tx, nil)

	_, err := svc.Refund(ctx, tx.ID, workerID, models.RoleWorker, "", nil)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}
