package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// AlertStore описывает хранилище алертов мониторинга.
type AlertStore interface {
	Create(ctx context.Context, a *models.Alert) error
	HasRecentSimilar(ctx context.Context, transactionID uuid.UUID, alertType string, within time.Duration) (bool, error)
	ListUnresolved(ctx context.Context, limit, offset int) ([]models.Alert, error)
	Resolve(ctx context.Context, id uuid.UUID) error
	ListAdmins(ctx context.Context) ([]uuid.UUID, error)
}

// monitorEscrows — выборки по транзакциям, нужные монитору.
type monitorEscrows interface {
	ListByStatus(ctx context.Context, status string, limit int) ([]models.EscrowTransaction, error)
	CountByClientSince(ctx context.Context, clientID uuid.UUID, since time.Time) (int, float64, error)
	CountRefundsByWorkerSince(ctx context.Context, workerID uuid.UUID, since time.Time) (int, error)
	CountProcessorFailuresSince(ctx context.Context, since time.Time) (int, error)
	Metrics(ctx context.Context) (active, disputed, released, refunded int, err error)
}

// monitorDisputes — выборки по спорам, нужные монитору.
type monitorDisputes interface {
	CountByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	AvgResolutionHours(ctx context.Context) (float64, error)
}

// monitorDeadlines — выборки по дедлайнам, нужные монитору.
type monitorDeadlines interface {
	ListDueBefore(ctx context.Context, before time.Time, limit int) ([]models.Deadline, error)
	CountOverdue(ctx context.Context) (int, error)
}

// Пороговые значения детекторов монитора.
const (
	riskThreshold          = 85
	riskWeightLargeAmount  = 40
	riskWeightPartyHistory = 25
	riskWeightStaleHold    = 20

	suspiciousTxPerDay     = 5
	suspiciousVolumePerDay = 10000.0
	suspiciousRefundsPerWk = 3
	processorFailuresPerHr = 5
	alertDedupWindow       = 24 * time.Hour
)

// MonitorService читающий обход поверх леджера, споров и дедлайнов.
// Производит алерты и агрегированные метрики; данные не изменяет.
type MonitorService struct {
	alerts    AlertStore
	escrows   monitorEscrows
	disputes  monitorDisputes
	deadlines monitorDeadlines
	notifier  Notifier
	log       *logrus.Logger
}

func NewMonitorService(
	alerts AlertStore,
	escrows monitorEscrows,
	disputes monitorDisputes,
	deadlines monitorDeadlines,
	notifier Notifier,
	log *logrus.Logger,
) *MonitorService {
	return &MonitorService{
		alerts:    alerts,
		escrows:   escrows,
		disputes:  disputes,
		deadlines: deadlines,
		notifier:  notifier,
		log:       log,
	}
}

// Sweep выполняет один проход всех детекторов. Возвращает число новых алертов.
func (s *MonitorService) Sweep(ctx context.Context) int {
	raised := 0
	raised += s.checkDeadlines(ctx)
	raised += s.checkRiskScores(ctx)
	raised += s.checkSuspiciousActivity(ctx)
	raised += s.checkProcessorFailures(ctx)
	return raised
}

// checkDeadlines поднимает алерты о приближающихся и просроченных дедлайнах.
func (s *MonitorService) checkDeadlines(ctx context.Context) int {
	now := time.Now()
	due, err := s.deadlines.ListDueBefore(ctx, now.Add(24*time.Hour), 200)
	if err != nil {
		s.log.WithError(err).Error("монитор: выборка дедлайнов не удалась")
		return 0
	}

	raised := 0
	for i := range due {
		d := &due[i]
		alertType := models.AlertTypeDeadlineApproaching
		severity := models.SeverityInfo
		message := fmt.Sprintf("Дедлайн %q истекает %s", d.Type, d.DueAt.Format("02.01.2006 15:04"))
		if !d.DueAt.After(now) {
			alertType = models.AlertTypeDeadlineOverdue
			severity = models.SeverityWarning
			message = fmt.Sprintf("Дедлайн %q просрочен с %s", d.Type, d.DueAt.Format("02.01.2006 15:04"))
		}
		if s.raiseAlert(ctx, d.TransactionID, alertType, severity, message, map[string]interface{}{
			"deadline_id": d.ID,
			"due_at":      d.DueAt,
		}) {
			raised++
		}
	}
	return raised
}

// checkRiskScores оценивает held и disputed транзакции по факторам риска.
func (s *MonitorService) checkRiskScores(ctx context.Context) int {
	raised := 0
	for _, status := range []string{models.EscrowStatusHeld, models.EscrowStatusDisputed} {
		transactions, err := s.escrows.ListByStatus(ctx, status, 200)
		if err != nil {
			s.log.WithError(err).WithField("status", status).Error("монитор: выборка транзакций не удалась")
			continue
		}
		for i := range transactions {
			t := &transactions[i]
			score, factors := s.riskScore(ctx, t)
			if score < riskThreshold {
				continue
			}
			message := fmt.Sprintf("Транзакция с высоким риском (оценка %d)", score)
			if s.raiseAlert(ctx, t.ID, models.AlertTypeHighRisk, models.SeverityWarning, message, map[string]interface{}{
				"score":   score,
				"factors": factors,
				"amount":  t.GrossAmount,
			}) {
				raised++
			}
		}
	}
	return raised
}

// riskScore возвращает суммарную оценку риска транзакции и сработавшие факторы.
func (s *MonitorService) riskScore(ctx context.Context, t *models.EscrowTransaction) (int, []string) {
	score := 0
	var factors []string

	if t.GrossAmount > 5000 {
		score += riskWeightLargeAmount
		factors = append(factors, "крупная сумма")
	}

	since := time.Now().AddDate(0, 0, -90)
	for _, party := range []struct {
		id   uuid.UUID
		name string
	}{
		{t.ClientID, "история споров клиента"},
		{t.WorkerID, "история споров исполнителя"},
	} {
		count, err := s.disputes.CountByUserSince(ctx, party.id, since)
		if err != nil {
			s.log.WithError(err).WithField("user_id", party.id).Warn("монитор: счётчик споров недоступен")
			continue
		}
		if count > 2 {
			score += riskWeightPartyHistory
			factors = append(factors, party.name)
		}
	}

	if time.Since(t.CreatedAt) > 10*24*time.Hour {
		score += riskWeightStaleHold
		factors = append(factors, "долгое удержание")
	}

	return score, factors
}

// checkSuspiciousActivity ищет аномальные паттерны по участникам.
func (s *MonitorService) checkSuspiciousActivity(ctx context.Context) int {
	transactions, err := s.escrows.ListByStatus(ctx, models.EscrowStatusHeld, 200)
	if err != nil {
		s.log.WithError(err).Error("монитор: выборка held транзакций не удалась")
		return 0
	}

	raised := 0
	seenClients := map[uuid.UUID]struct{}{}
	seenWorkers := map[uuid.UUID]struct{}{}
	dayAgo := time.Now().Add(-24 * time.Hour)
	weekAgo := time.Now().Add(-7 * 24 * time.Hour)

	for i := range transactions {
		t := &transactions[i]

		if _, ok := seenClients[t.ClientID]; !ok {
			seenClients[t.ClientID] = struct{}{}
			count, volume, err := s.escrows.CountByClientSince(ctx, t.ClientID, dayAgo)
			if err != nil {
				s.log.WithError(err).WithField("client_id", t.ClientID).Warn("монитор: счётчик клиента недоступен")
			} else if count >= suspiciousTxPerDay || volume > suspiciousVolumePerDay {
				message := fmt.Sprintf("Аномальная активность клиента: %d транзакций на %.2f за сутки", count, volume)
				if s.raiseAlert(ctx, t.ID, models.AlertTypeSuspiciousActivity, models.SeverityWarning, message, map[string]interface{}{
					"client_id": t.ClientID,
					"count":     count,
					"volume":    volume,
				}) {
					raised++
				}
			}
		}

		if _, ok := seenWorkers[t.WorkerID]; !ok {
			seenWorkers[t.WorkerID] = struct{}{}
			refunds, err := s.escrows.CountRefundsByWorkerSince(ctx, t.WorkerID, weekAgo)
			if err != nil {
				s.log.WithError(err).WithField("worker_id", t.WorkerID).Warn("монитор: счётчик возвратов недоступен")
			} else if refunds >= suspiciousRefundsPerWk {
				message := fmt.Sprintf("У исполнителя %d возвратов за неделю", refunds)
				if s.raiseAlert(ctx, t.ID, models.AlertTypeSuspiciousActivity, models.SeverityWarning, message, map[string]interface{}{
					"worker_id": t.WorkerID,
					"refunds":   refunds,
				}) {
					raised++
				}
			}
		}
	}
	return raised
}

// checkProcessorFailures детектирует всплеск сбоев платёжного провайдера.
func (s *MonitorService) checkProcessorFailures(ctx context.Context) int {
	count, err := s.escrows.CountProcessorFailuresSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		s.log.WithError(err).Error("монитор: счётчик сбоев провайдера недоступен")
		return 0
	}
	if count <= processorFailuresPerHr {
		return 0
	}
	message := fmt.Sprintf("Всплеск сбоев платёжного провайдера: %d за час", count)
	if s.raiseAlert(ctx, uuid.Nil, models.AlertTypeProcessorFailures, models.SeverityCritical, message, map[string]interface{}{
		"failures": count,
	}) {
		return 1
	}
	return 0
}

// Metrics собирает агрегированные показатели и рекомендации.
func (s *MonitorService) Metrics(ctx context.Context) (*models.SystemMetrics, error) {
	active, disputed, released, refunded, err := s.escrows.Metrics(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := s.deadlines.CountOverdue(ctx)
	if err != nil {
		return nil, err
	}
	avgResolution, err := s.disputes.AvgResolutionHours(ctx)
	if err != nil {
		return nil, err
	}

	successRate := 1.0
	if closed := released + refunded; closed > 0 {
		successRate = float64(released) / float64(closed)
	}

	metrics := &models.SystemMetrics{
		ActiveTransactions:   active,
		OverdueDeadlines:     overdue,
		DisputedTransactions: disputed,
		AvgResolutionHours:   avgResolution,
		SuccessRate:          successRate,
		CollectedAt:          time.Now(),
	}

	if active > 0 && float64(disputed) > float64(active)*0.1 {
		metrics.Recommendations = append(metrics.Recommendations,
			"Доля спорных транзакций превышает 10%: проверьте качество описаний заказов")
	}
	if overdue > 10 {
		metrics.Recommendations = append(metrics.Recommendations,
			"Накопились просроченные дедлайны: проверьте работу планировщика")
	}
	if avgResolution > 7*24 {
		metrics.Recommendations = append(metrics.Recommendations,
			"Среднее время резолюции споров превышает неделю: увеличьте число медиаторов")
	}
	if successRate < 0.8 {
		metrics.Recommendations = append(metrics.Recommendations,
			"Доля успешных сделок ниже 80%: усильте проверку заказов перед оплатой")
	}

	return metrics, nil
}

// ListAlerts возвращает неразрешённые алерты.
func (s *MonitorService) ListAlerts(ctx context.Context, limit, offset int) ([]models.Alert, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.alerts.ListUnresolved(ctx, limit, offset)
}

// ResolveAlert аннотирует алерт как разрешённый.
func (s *MonitorService) ResolveAlert(ctx context.Context, alertID uuid.UUID) error {
	if err := s.alerts.Resolve(ctx, alertID); err != nil {
		return apperror.New(apperror.ErrCodeNotFound, "алерт не найден")
	}
	return nil
}

// raiseAlert сохраняет алерт с дедупликацией по типу и транзакции.
// Critical алерты немедленно доставляются администраторам.
func (s *MonitorService) raiseAlert(ctx context.Context, transactionID uuid.UUID, alertType, severity, message string, metadata map[string]interface{}) bool {
	recent, err := s.alerts.HasRecentSimilar(ctx, transactionID, alertType, alertDedupWindow)
	if err != nil {
		s.log.WithError(err).WithField("type", alertType).Warn("монитор: дедупликация алертов недоступна")
		return false
	}
	if recent {
		return false
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		raw = nil
	}
	alert := &models.Alert{
		TransactionID: transactionID,
		Type:          alertType,
		Severity:      severity,
		Message:       message,
		Metadata:      raw,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		s.log.WithError(err).WithField("type", alertType).Error("монитор: не удалось сохранить алерт")
		return false
	}

	if severity == models.SeverityCritical {
		admins, err := s.alerts.ListAdmins(ctx)
		if err != nil {
			s.log.WithError(err).Error("монитор: список администраторов недоступен")
		} else {
			for _, adminID := range admins {
				s.notifier.Notify(ctx, adminID, "alert_critical", message, metadata)
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"type":           alertType,
		"severity":       severity,
		"transaction_id": transactionID,
	}).Info("алерт мониторинга")

	return true
}
