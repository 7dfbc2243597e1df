package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// DeadlineStore описывает хранилище дедлайнов.
type DeadlineStore interface {
	CreateBatch(ctx context.Context, deadlines []models.Deadline) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deadline, error)
	GetPendingByType(ctx context.Context, transactionID uuid.UUID, deadlineType string) (*models.Deadline, error)
	ListDueBefore(ctx context.Context, before time.Time, limit int) ([]models.Deadline, error)
	MarkOverdue(ctx context.Context, id uuid.UUID) error
	MarkReminded(ctx context.Context, id uuid.UUID) error
	BumpEscalation(ctx context.Context, id uuid.UUID) error
	CancelByTypes(ctx context.Context, transactionID uuid.UUID, types []string) error
	CompleteAll(ctx context.Context, transactionID uuid.UUID) error
	Extend(ctx context.Context, id uuid.UUID, newDueAt time.Time, extra time.Duration) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Deadline, error)
}

// scheduledLedger — операции леджера, выполняемые по истечении дедлайнов.
type scheduledLedger interface {
	Get(ctx context.Context, transactionID uuid.UUID) (*models.EscrowTransaction, error)
	Release(ctx context.Context, transactionID, actorID uuid.UUID, reason string, force bool) (*models.EscrowTransaction, error)
}

// adminDirectory выдаёт идентификаторы активных администраторов платформы.
type adminDirectory interface {
	ListAdmins(ctx context.Context) ([]uuid.UUID, error)
}

// DeadlineService планирует дедлайны транзакций и выполняет периодический
// обход: напоминания в окне предупреждения и действия по просрочке.
// Обход идемпотентен: каждый дедлайн защищён условным обновлением статуса,
// повторный запуск не выполнит финансовое действие дважды.
type DeadlineService struct {
	deadlines DeadlineStore
	ledger    scheduledLedger
	disputes  DisputeStore
	timeline  TimelineStore
	admins    adminDirectory
	notifier  Notifier
	policy    config.SchedulerPolicy
	log       *logrus.Logger
}

func NewDeadlineService(
	deadlines DeadlineStore,
	ledger scheduledLedger,
	disputes DisputeStore,
	timeline TimelineStore,
	admins adminDirectory,
	notifier Notifier,
	policy config.SchedulerPolicy,
	log *logrus.Logger,
) *DeadlineService {
	return &DeadlineService{
		deadlines: deadlines,
		ledger:    ledger,
		disputes:  disputes,
		timeline:  timeline,
		admins:    admins,
		notifier:  notifier,
		policy:    policy,
		log:       log,
	}
}

// ScheduleForTransaction создаёт пачку дедлайнов для новой транзакции.
// Сроки масштабируются множителем типа заказа.
func (s *DeadlineService) ScheduleForTransaction(ctx context.Context, t *models.EscrowTransaction, job *models.Job) error {
	// Повторный вызов после частичного сбоя создания не дублирует пачку.
	if existing, err := s.deadlines.GetPendingByType(ctx, t.ID, models.DeadlineTypeApproval); err == nil && existing != nil {
		return nil
	}

	multiplier := job.DeadlineMultiplier()
	now := time.Now()

	batch := []models.Deadline{
		{
			ID:            uuid.New(),
			TransactionID: t.ID,
			Type:          models.DeadlineTypeApproval,
			DueAt:         now.Add(scaleDuration(s.policy.ApprovalDeadline, multiplier)),
			Status:        models.DeadlineStatusPending,
		},
		{
			ID:            uuid.New(),
			TransactionID: t.ID,
			Type:          models.DeadlineTypeAutoRelease,
			DueAt:         now.Add(scaleDuration(s.policy.AutoReleaseDeadline, multiplier)),
			Status:        models.DeadlineStatusPending,
		},
		{
			ID:            uuid.New(),
			TransactionID: t.ID,
			Type:          models.DeadlineTypeDisputeResolution,
			DueAt:         now.Add(scaleDuration(s.policy.DisputeDeadline, multiplier)),
			Status:        models.DeadlineStatusPending,
		},
	}

	if err := s.deadlines.CreateBatch(ctx, batch); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"multiplier":     multiplier,
	}).Debug("дедлайны транзакции запланированы")

	return nil
}

// CancelForDispute отменяет дедлайны, теряющие смысл при открытии спора.
func (s *DeadlineService) CancelForDispute(ctx context.Context, transactionID uuid.UUID) error {
	return s.deadlines.CancelByTypes(ctx, transactionID,
		[]string{models.DeadlineTypeApproval, models.DeadlineTypeAutoRelease})
}

// CompleteForTransaction закрывает все pending дедлайны транзакции.
// Вызывается леджером при released/refunded.
func (s *DeadlineService) CompleteForTransaction(ctx context.Context, transactionID uuid.UUID) error {
	return s.deadlines.CompleteAll(ctx, transactionID)
}

// ExtendDeadline переносит срок pending дедлайна. Лимит типа действует
// на суммарное продление за всю жизнь дедлайна, а не на отдельный запрос.
func (s *DeadlineService) ExtendDeadline(ctx context.Context, deadlineID, actorID uuid.UUID, actorRole string, extra time.Duration, reason string) (*models.Deadline, error) {
	d, err := s.deadlines.GetByID(ctx, deadlineID)
	if err != nil {
		return nil, apperror.New(apperror.ErrCodeNotFound, "дедлайн не найден")
	}
	if d.Status != models.DeadlineStatusPending {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("дедлайн в статусе %q нельзя продлить", d.Status))
	}

	t, err := s.ledger.Get(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalEscrowStatus(t.Status) || t.Status == models.EscrowStatusDisputed {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("транзакция в статусе %q не допускает продление дедлайнов", t.Status))
	}
	if actorRole != models.RoleAdmin && actorID != t.ClientID && actorID != t.WorkerID {
		return nil, apperror.ErrForbidden
	}

	limit := s.extensionCap(d.Type)
	used := time.Duration(d.ExtendedSeconds) * time.Second
	if extra <= 0 || used+extra > limit {
		return nil, apperror.Validation("некорректное продление",
			[]string{fmt.Sprintf("суммарное продление не может превышать %s, уже использовано %s", limit, used)})
	}

	newDueAt := d.DueAt.Add(extra)
	if err := s.deadlines.Extend(ctx, d.ID, newDueAt, extra); err != nil {
		if err == repository.ErrStatusConflict {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "статус дедлайна изменился, повторите запрос")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"deadline_id": d.ID,
		"type":        d.Type,
		"old_due_at":  d.DueAt,
		"new_due_at":  newDueAt,
		"actor_id":    actorID,
		"reason":      reason,
	}).Info("дедлайн продлён")

	d.DueAt = newDueAt
	d.ExtendedSeconds += int64(extra.Seconds())
	d.ReminderSent = false
	d.EscalationLevel = 0
	return d, nil
}

// ListByTransaction возвращает дедлайны транзакции.
func (s *DeadlineService) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Deadline, error) {
	return s.deadlines.ListByTransaction(ctx, transactionID)
}

// Sweep выполняет один проход обхода дедлайнов: напоминания в окне
// предупреждения, действия по просрочке. Ошибка по отдельному дедлайну
// не прерывает обход.
func (s *DeadlineService) Sweep(ctx context.Context) (reminders, actions int) {
	now := time.Now()
	due, err := s.deadlines.ListDueBefore(ctx, now.Add(s.policy.WarningWindow), 200)
	if err != nil {
		s.log.WithError(err).Error("обход дедлайнов: выборка не удалась")
		return 0, 0
	}

	for i := range due {
		d := &due[i]
		if d.DueAt.After(now) {
			if s.remind(ctx, d) {
				reminders++
			}
			continue
		}
		if s.handleOverdue(ctx, d) {
			actions++
		}
	}

	return reminders, actions
}

// remind отправляет предупреждение о приближающемся дедлайне.
// Условное обновление reminder_sent гарантирует однократную отправку.
func (s *DeadlineService) remind(ctx context.Context, d *models.Deadline) bool {
	if d.ReminderSent {
		return false
	}
	if err := s.deadlines.MarkReminded(ctx, d.ID); err != nil {
		if err != repository.ErrStatusConflict {
			s.log.WithError(err).WithField("deadline_id", d.ID).Warn("обход дедлайнов: не удалось пометить напоминание")
		}
		return false
	}

	t, err := s.ledger.Get(ctx, d.TransactionID)
	if err != nil {
		s.log.WithError(err).WithField("deadline_id", d.ID).Warn("обход дедлайнов: транзакция не найдена")
		return false
	}

	message := fmt.Sprintf("Срок %q истекает %s", d.Type, d.DueAt.Format("02.01.2006 15:04"))
	metadata := map[string]interface{}{"deadline_id": d.ID, "transaction_id": t.ID, "due_at": d.DueAt}

	// Напоминание о приёмке получает клиент, остальные типы — обе стороны.
	if d.Type == models.DeadlineTypeApproval {
		s.notifier.Notify(ctx, t.ClientID, "deadline_approaching", message, metadata)
	} else {
		s.notifier.Notify(ctx, t.ClientID, "deadline_approaching", message, metadata)
		s.notifier.Notify(ctx, t.WorkerID, "deadline_approaching", message, metadata)
	}
	return true
}

// handleOverdue выполняет действие по просроченному дедлайну.
func (s *DeadlineService) handleOverdue(ctx context.Context, d *models.Deadline) bool {
	switch d.Type {
	case models.DeadlineTypeApproval:
		return s.handleOverdueApproval(ctx, d)
	case models.DeadlineTypeAutoRelease:
		return s.handleOverdueAutoRelease(ctx, d)
	case models.DeadlineTypeDisputeResolution:
		return s.handleOverdueDispute(ctx, d)
	default:
		// refund и custom дедлайны действия не несут, только фиксация.
		if err := s.deadlines.MarkOverdue(ctx, d.ID); err != nil && err != repository.ErrStatusConflict {
			s.log.WithError(err).WithField("deadline_id", d.ID).Warn("обход дедлайнов: не удалось пометить просрочку")
		}
		return false
	}
}

// handleOverdueApproval эскалирует просроченную приёмку.
// Первые просрочки остаются pending со срочным напоминанием клиенту;
// после двух эскалаций работа считается принятой и средства освобождаются.
func (s *DeadlineService) handleOverdueApproval(ctx context.Context, d *models.Deadline) bool {
	t, err := s.ledger.Get(ctx, d.TransactionID)
	if err != nil {
		s.log.WithError(err).WithField("deadline_id", d.ID).Warn("обход дедлайнов: транзакция не найдена")
		return false
	}

	if d.EscalationLevel < 2 {
		if err := s.deadlines.BumpEscalation(ctx, d.ID); err != nil {
			s.log.WithError(err).WithField("deadline_id", d.ID).Warn("обход дедлайнов: не удалось поднять эскалацию")
			return false
		}
		s.notifier.Notify(ctx, t.ClientID, "deadline_overdue",
			"Срок приёмки работы истёк, подтвердите или откройте спор",
			map[string]interface{}{"deadline_id": d.ID, "transaction_id": t.ID, "level": d.EscalationLevel + 1})
		return true
	}

	// CAS по дедлайну гарантирует однократное авто-освобождение
	// при конкурентных обходах.
	if err := s.deadlines.MarkOverdue(ctx, d.ID); err != nil {
		if err != repository.ErrStatusConflict {
			s.log.WithError(err).WithField("deadline_id", d.ID).Warn("обход дедлайнов: не удалось пометить просрочку")
		}
		return false
	}
	s.appendExpired(ctx, d)

	if _, err := s.ledger.Release(ctx, t.ID, uuid.Nil, "авто-приёмка: клиент не ответил в срок", true); err != nil {
		s.log.WithError(err).WithField("transaction_id", t.ID).Error("обход дедлайнов: авто-приёмка не удалась")
		return false
	}
	return true
}

// handleOverdueAutoRelease принудительно освобождает средства.
func (s *DeadlineService) handleOverdueAutoRelease(ctx context.Context, d *models.Deadline) bool {
	if err := s.deadlines.MarkOverdue(ctx, d.ID); err != nil {
		if err != repository.ErrStatusConflict {
			s.log.WithError(err).WithField("deadline_id", d.ID).Warn("обход дедлайнов: не удалось пометить просрочку")
		}
		return false
	}
	s.appendExpired(ctx, d)

	if _, err := s.ledger.Release(ctx, d.TransactionID, uuid.Nil, "автоматическое освобождение по сроку удержания", true); err != nil {
		s.log.WithError(err).WithField("transaction_id", d.TransactionID).Error("обход дедлайнов: авто-освобождение не удалось")
		return false
	}
	return true
}

// handleOverdueDispute передаёт затянувшийся спор на контроль администраторам.
func (s *DeadlineService) handleOverdueDispute(ctx context.Context, d *models.Deadline) bool {
	if err := s.deadlines.MarkOverdue(ctx, d.ID); err != nil {
		if err != repository.ErrStatusConflict {
			s.log.WithError(err).WithField("deadline_id", d.ID).Warn("обход дедлайнов: не удалось пометить просрочку")
		}
		return false
	}
	s.appendExpired(ctx, d)

	dispute, err := s.disputes.GetActiveByTransaction(ctx, d.TransactionID)
	if err != nil {
		return false
	}

	admins, err := s.admins.ListAdmins(ctx)
	if err != nil {
		s.log.WithError(err).Error("обход дедлайнов: список администраторов недоступен")
		return false
	}
	for _, adminID := range admins {
		s.notifier.Notify(ctx, adminID, "dispute_overdue",
			fmt.Sprintf("Спор %q превысил срок рассмотрения", dispute.Title),
			map[string]interface{}{"dispute_id": dispute.ID, "transaction_id": d.TransactionID})
	}
	return true
}

// appendExpired пишет событие просрочки в таймлайн транзакции.
func (s *DeadlineService) appendExpired(ctx context.Context, d *models.Deadline) {
	details := fmt.Sprintf("дедлайн %q истёк", d.Type)
	event := &models.TimelineEvent{
		TransactionID: d.TransactionID,
		Type:          models.TimelineEventExpired,
		Details:       &details,
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.log.WithError(err).WithField("transaction_id", d.TransactionID).Error("не удалось записать событие таймлайна")
	}
}

// extensionCap возвращает максимальное продление для типа дедлайна.
func (s *DeadlineService) extensionCap(deadlineType string) time.Duration {
	switch deadlineType {
	case models.DeadlineTypeApproval:
		return s.policy.ApprovalExtensionCap
	case models.DeadlineTypeAutoRelease:
		return s.policy.AutoReleaseExtensionCap
	case models.DeadlineTypeDisputeResolution:
		return s.policy.DisputeExtensionCap
	}
	return s.policy.ApprovalExtensionCap
}
