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
)

type mockAlertStore struct {
	mock.Mock
}

func (m *mockAlertStore) Create(ctx context.Context, a *models.Alert) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockAlertStore) HasRecentSimilar(ctx context.Context, transactionID uuid.UUID, alertType string, within time.Duration) (bool, error) {
	args := m.Called(ctx, transactionID, alertType, within)
	return args.Bool(0), args.Error(1)
}

func (m *mockAlertStore) ListUnresolved(ctx context.Context, limit, offset int) ([]models.Alert, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Alert), args.Error(1)
}

func (m *mockAlertStore) Resolve(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockAlertStore) ListAdmins(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type mockMonitorEscrows struct {
	mock.Mock
}

func (m *mockMonitorEscrows) ListByStatus(ctx context.Context, status string, limit int) ([]models.EscrowTransaction, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EscrowTransaction), args.Error(1)
}

func (m *mockMonitorEscrows) CountByClientSince(ctx context.Context, clientID uuid.UUID, since time.Time) (int, float64, error) {
	args := m.Called(ctx, clientID, since)
	return args.Int(0), args.Get(1).(float64), args.Error(2)
}

func (m *mockMonitorEscrows) CountRefundsByWorkerSince(ctx context.Context, workerID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, workerID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockMonitorEscrows) CountProcessorFailuresSince(ctx context.Context, since time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

func (m *mockMonitorEscrows) Metrics(ctx context.Context) (int, int, int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Int(2), args.Int(3), args.Error(4)
}

type mockMonitorDisputes struct {
	mock.Mock
}

func (m *mockMonitorDisputes) CountByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockMonitorDisputes) AvgResolutionHours(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

type mockMonitorDeadlines struct {
	mock.Mock
}

func (m *mockMonitorDeadlines) ListDueBefore(ctx context.Context, before time.Time, limit int) ([]models.Deadline, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Deadline), args.Error(1)
}

func (m *mockMonitorDeadlines) CountOverdue(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newTestMonitor(alerts *mockAlertStore, escrows *mockMonitorEscrows, disputes *mockMonitorDisputes, deadlines *mockMonitorDeadlines, notifier *mockNotifier) *MonitorService {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewMonitorService(alerts, escrows, disputes, deadlines, notifier, log)
}

func TestMonitor_RiskScore_AccumulatesFactors(t *testing.T) {
	disputes := new(mockMonitorDisputes)
	svc := newTestMonitor(new(mockAlertStore), new(mockMonitorEscrows), disputes, new(mockMonitorDeadlines), new(mockNotifier))
	ctx := context.Background()

	tx := &models.EscrowTransaction{
		ID:          uuid.New(),
		ClientID:    uuid.New(),
		WorkerID:    uuid.New(),
		GrossAmount: 6000,
		CreatedAt:   time.Now().Add(-11 * 24 * time.Hour),
	}
	disputes.On("CountByUserSince", ctx, tx.ClientID, mock.Anything).Return(3, nil)
	disputes.On("CountByUserSince", ctx, tx.WorkerID, mock.Anything).Return(0, nil)

	score, factors := svc.riskScore(ctx, tx)

	assert.Equal(t, 85, score)
	assert.Contains(t, factors, "крупная сумма")
	assert.Contains(t, factors, "история споров клиента")
	assert.Contains(t, factors, "долгое удержание")
	assert.NotContains(t, factors, "история споров исполнителя")
}

func TestMonitor_RiskScore_LowForOrdinaryTransaction(t *testing.T) {
	disputes := new(mockMonitorDisputes)
	svc := newTestMonitor(new(mockAlertStore), new(mockMonitorEscrows), disputes, new(mockMonitorDeadlines), new(mockNotifier))
	ctx := context.Background()

	tx := &models.EscrowTransaction{
		ID:          uuid.New(),
		ClientID:    uuid.New(),
		WorkerID:    uuid.New(),
		GrossAmount: 300,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	disputes.On("CountByUserSince", ctx, mock.Anything, mock.Anything).Return(0, nil)

	score, factors := svc.riskScore(ctx, tx)

	assert.Equal(t, 0, score)
	assert.Empty(t, factors)
}

func TestMonitor_Sweep_ProcessorFailureSpikeIsCritical(t *testing.T) {
	alerts := new(mockAlertStore)
	escrows := new(mockMonitorEscrows)
	deadlines := new(mockMonitorDeadlines)
	notifier := new(mockNotifier)
	svc := newTestMonitor(alerts, escrows, new(mockMonitorDisputes), deadlines, notifier)
	ctx := context.Background()

	deadlines.On("ListDueBefore", ctx, mock.Anything, 200).Return([]models.Deadline{}, nil)
	escrows.On("ListByStatus", ctx, mock.Anything, 200).Return([]models.EscrowTransaction{}, nil)
	escrows.On("CountProcessorFailuresSince", ctx, mock.Anything).Return(6, nil)
	alerts.On("HasRecentSimilar", ctx, uuid.Nil, models.AlertTypeProcessorFailures, 24*time.Hour).Return(false, nil)
	alerts.On("Create", ctx, mock.Anything).Return(nil)
	adminID := uuid.New()
	alerts.On("ListAdmins", ctx).Return([]uuid.UUID{adminID}, nil)
	notifier.On("Notify", ctx, adminID, "alert_critical", mock.Anything, mock.Anything).Return()

	raised := svc.Sweep(ctx)

	assert.Equal(t, 1, raised)
	alerts.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestMonitor_Sweep_DeduplicatesRecentAlerts(t *testing.T) {
	alerts := new(mockAlertStore)
	escrows := new(mockMonitorEscrows)
	deadlines := new(mockMonitorDeadlines)
	svc := newTestMonitor(alerts, escrows, new(mockMonitorDisputes), deadlines, new(mockNotifier))
	ctx := context.Background()

	deadlines.On("ListDueBefore", ctx, mock.Anything, 200).Return([]models.Deadline{}, nil)
	escrows.On("ListByStatus", ctx, mock.Anything, 200).Return([]models.EscrowTransaction{}, nil)
	escrows.On("CountProcessorFailuresSince", ctx, mock.Anything).Return(10, nil)
	alerts.On("HasRecentSimilar", ctx, uuid.Nil, models.AlertTypeProcessorFailures, 24*time.Hour).Return(true, nil)

	raised := svc.Sweep(ctx)

	assert.Equal(t, 0, raised)
	alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestMonitor_Sweep_OverdueDeadlineAlert(t *testing.T) {
	alerts := new(mockAlertStore)
	escrows := new(mockMonitorEscrows)
	deadlines := new(mockMonitorDeadlines)
	svc := newTestMonitor(alerts, escrows, new(mockMonitorDisputes), deadlines, new(mockNotifier))
	ctx := context.Background()

	d := models.Deadline{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		Type:          models.DeadlineTypeApproval,
		DueAt:         time.Now().Add(-2 * time.Hour),
	}
	deadlines.On("ListDueBefore", ctx, mock.Anything, 200).Return([]models.Deadline{d}, nil)
	alerts.On("HasRecentSimilar", ctx, d.TransactionID, models.AlertTypeDeadlineOverdue, 24*time.Hour).Return(false, nil)
	var saved *models.Alert
	alerts.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*models.Alert)
	}).Return(nil)
	escrows.On("ListByStatus", ctx, mock.Anything, 200).Return([]models.EscrowTransaction{}, nil)
	escrows.On("CountProcessorFailuresSince", ctx, mock.Anything).Return(0, nil)

	raised := svc.Sweep(ctx)

	assert.Equal(t, 1, raised)
	assert.Equal(t, models.SeverityWarning, saved.Severity)
	assert.Equal(t, d.TransactionID, saved.TransactionID)
}

func TestMonitor_Metrics_Recommendations(t *testing.T) {
	escrows := new(mockMonitorEscrows)
	disputes := new(mockMonitorDisputes)
	deadlines := new(mockMonitorDeadlines)
	svc := newTestMonitor(new(mockAlertStore), escrows, disputes, deadlines, new(mockNotifier))
	ctx := context.Background()

	escrows.On("Metrics", ctx).Return(10, 2, 6, 4, nil)
	deadlines.On("CountOverdue", ctx).Return(15, nil)
	disputes.On("AvgResolutionHours", ctx).Return(200.0, nil)

	metrics, err := svc.Metrics(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 10, metrics.ActiveTransactions)
	assert.InDelta(t, 0.6, metrics.SuccessRate, 1e-9)
	assert.Len(t, metrics.Recommendations, 4)
}

func TestMonitor_Metrics_HealthySystemNoRecommendations(t *testing.T) {
	escrows := new(mockMonitorEscrows)
	disputes := new(mockMonitorDisputes)
	deadlines := new(mockMonitorDeadlines)
	svc := newTestMonitor(new(mockAlertStore), escrows, disputes, deadlines, new(mockNotifier))
	ctx := context.Background()

	escrows.On("Metrics", ctx).Return(20, 1, 18, 2, nil)
	deadlines.On("CountOverdue", ctx).Return(0, nil)
	disputes.On("AvgResolutionHours", ctx).Return(30.0, nil)

	metrics, err := svc.Metrics(ctx)

	assert.NoError(t, err)
	assert.Empty(t, metrics.Recommendations)
	assert.InDelta(t, 0.9, metrics.SuccessRate, 1e-9)
}
