package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// EscrowStore описывает взаимодействие леджера с хранилищем транзакций.
type EscrowStore interface {
	Create(ctx context.Context, t *models.EscrowTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	GetActiveBySlot(ctx context.Context, jobID uuid.UUID, milestoneID *uuid.UUID) (*models.EscrowTransaction, error)
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to string) error
	MarkDisputed(ctx context.Context, id uuid.UUID, from, reason string) error
	MarkRefunded(ctx context.Context, id uuid.UUID, from, to string, refundedAmount float64) error
	SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error)
	CountReleasedByClientSince(ctx context.Context, clientID uuid.UUID, since time.Time) (int, error)
	RecordProcessorFailure(ctx context.Context, f *models.ProcessorFailure) error
}

// JobStore описывает доступ леджера к заказам.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
}

// UserStore описывает доступ к участникам сделки.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TimelineStore ведёт аудиторский журнал транзакций.
type TimelineStore interface {
	Append(ctx context.Context, e *models.TimelineEvent) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.TimelineEvent, error)
}

// PaymentProcessor — внешний платёжный провайдер.
// Все вызовы идемпотентны по переданному ключу; при ошибке считается,
// что операция не выполнена и состояние не изменилось.
type PaymentProcessor interface {
	AuthorizeAndHold(ctx context.Context, amount float64, currency, paymentMethod, idempotencyKey string) (string, error)
	Capture(ctx context.Context, reference string) (string, error)
	Refund(ctx context.Context, reference string, amount float64, idempotencyKey string) (string, error)
}

// Notifier — односторонняя доставка уведомлений.
// Сбой доставки не влияет на финансовое состояние.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event, message string, metadata map[string]interface{})
}

// deadlineScheduler — связь леджера с планировщиком дедлайнов.
type deadlineScheduler interface {
	ScheduleForTransaction(ctx context.Context, t *models.EscrowTransaction, job *models.Job) error
	CompleteForTransaction(ctx context.Context, transactionID uuid.UUID) error
}

// FeeBreakdown результат расчёта комиссии платформы.
type FeeBreakdown struct {
	Fee           float64 `json:"fee"`
	WorkerNet     float64 `json:"worker_net"`
	EffectiveRate float64 `json:"effective_rate"`
}

// ValidationResult собирает нарушения и предупреждения проверки платежа.
// Warnings не блокируют создание транзакции.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK сообщает, прошла ли проверка.
func (v *ValidationResult) OK() bool {
	return len(v.Errors) == 0
}

// CreateEscrowInput входные данные открытия escrow.
type CreateEscrowInput struct {
	JobID         uuid.UUID
	ClientID      uuid.UUID
	WorkerID      uuid.UUID
	Amount        float64
	MilestoneID   *uuid.UUID
	PaymentMethod string
	Notes         *string
}

// LedgerService владеет записями EscrowTransaction: проверка, расчёт
// комиссии, создание, освобождение и возврат средств.
type LedgerService struct {
	escrows   EscrowStore
	jobs      JobStore
	users     UserStore
	timeline  TimelineStore
	processor PaymentProcessor
	notifier  Notifier
	scheduler deadlineScheduler
	policy    config.EscrowPolicy
	deadlines config.SchedulerPolicy
	log       *logrus.Logger
}

// NewLedgerService создаёт леджер с явной политикой комиссий и лимитов.
func NewLedgerService(
	escrows EscrowStore,
	jobs JobStore,
	users UserStore,
	timeline TimelineStore,
	proc PaymentProcessor,
	notifier Notifier,
	policy config.EscrowPolicy,
	deadlines config.SchedulerPolicy,
	log *logrus.Logger,
) *LedgerService {
	return &LedgerService{
		escrows:   escrows,
		jobs:      jobs,
		users:     users,
		timeline:  timeline,
		processor: proc,
		notifier:  notifier,
		policy:    policy,
		deadlines: deadlines,
		log:       log,
	}
}

// SetScheduler подключает планировщик дедлайнов.
// Вызывается при сборке приложения: планировщик сам зависит от леджера.
func (s *LedgerService) SetScheduler(scheduler deadlineScheduler) {
	s.scheduler = scheduler
}

// round2 округляет денежную сумму до двух знаков.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeFee чистая функция расчёта комиссии платформы.
// Базовая ставка 5%, premium 4%, elite 3.5%; постоянным клиентам ставка
// снижается на 10%. Комиссия ограничена диапазоном политики.
func (s *LedgerService) ComputeFee(amount float64, isRecurringClient bool, workerTier string) FeeBreakdown {
	rate := s.policy.BaseFeeRate
	switch workerTier {
	case models.WorkerTierPremium:
		rate = s.policy.PremiumFeeRate
	case models.WorkerTierElite:
		rate = s.policy.EliteFeeRate
	}

	if isRecurringClient {
		rate *= 1 - s.policy.RecurringDiscount
	}

	fee := round2(amount * rate)
	if fee < s.policy.MinFee {
		fee = s.policy.MinFee
	}
	if fee > s.policy.MaxFee {
		fee = s.policy.MaxFee
	}

	return FeeBreakdown{
		Fee:           fee,
		WorkerNet:     round2(amount - fee),
		EffectiveRate: rate,
	}
}

// IsRecurringClient проверяет, есть ли у клиента не менее трёх released
// транзакций за последние 90 дней.
func (s *LedgerService) IsRecurringClient(ctx context.Context, clientID uuid.UUID) (bool, error) {
	count, err := s.escrows.CountReleasedByClientSince(ctx, clientID, time.Now().AddDate(0, 0, -90))
	if err != nil {
		return false, err
	}
	return count >= 3, nil
}

// Validate проверяет допустимость открытия escrow.
// Ошибки блокируют создание, предупреждения только информируют.
func (s *LedgerService) Validate(ctx context.Context, job *models.Job, client, worker *models.User, amount float64, milestoneID *uuid.UUID) *ValidationResult {
	result := &ValidationResult{}

	if job == nil {
		result.Errors = append(result.Errors, "заказ не найден")
		return result
	}

	if _, ok := models.EscrowEligibleJobStatuses[job.Status]; !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("заказ в статусе %q не допускает открытие escrow", job.Status))
	}
	if client == nil || job.ClientID != client.ID {
		result.Errors = append(result.Errors, "клиент не является заказчиком этого заказа")
	}
	if worker == nil || job.WorkerID != worker.ID {
		result.Errors = append(result.Errors, "исполнитель не назначен на этот заказ")
	}

	if amount < s.policy.MinAmount {
		result.Errors = append(result.Errors, fmt.Sprintf("сумма меньше минимальной (%.2f)", s.policy.MinAmount))
	}
	if amount > s.policy.MaxAmount {
		result.Errors = append(result.Errors, fmt.Sprintf("сумма больше максимальной (%.2f)", s.policy.MaxAmount))
	}

	if client != nil && !client.IsActive {
		result.Errors = append(result.Errors, "аккаунт клиента неактивен")
	}
	if worker != nil && !worker.IsActive {
		result.Errors = append(result.Errors, "аккаунт исполнителя неактивен")
	}

	// Предупреждения: активная транзакция по заказу и отсутствие
	// платёжного метода по умолчанию.
	if existing, err := s.escrows.GetActiveBySlot(ctx, job.ID, nil); err == nil && existing != nil && milestoneID != nil {
		result.Warnings = append(result.Warnings, "по заказу уже есть активная транзакция")
	}
	if client != nil && !client.HasDefaultPayMethod {
		result.Warnings = append(result.Warnings, "у клиента не настроен платёжный метод по умолчанию")
	}

	return result
}

// Create открывает новую escrow транзакцию: валидация, расчёт комиссии,
// авторизация средств у провайдера, планирование дедлайнов.
func (s *LedgerService) Create(ctx context.Context, in CreateEscrowInput) (*models.EscrowTransaction, *ValidationResult, error) {
	job, err := s.jobs.GetByID(ctx, in.JobID)
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.ErrCodeValidation, "заказ не найден")
	}
	client, err := s.users.GetByID(ctx, in.ClientID)
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.ErrCodeValidation, "клиент не найден")
	}
	worker, err := s.users.GetByID(ctx, in.WorkerID)
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.ErrCodeValidation, "исполнитель не найден")
	}

	result := s.Validate(ctx, job, client, worker, in.Amount, in.MilestoneID)
	if !result.OK() {
		return nil, result, apperror.Validation("проверка платежа не пройдена", result.Errors)
	}

	// Жёсткое ограничение слота: не более одной pending/held транзакции
	// на пару (заказ, веха). Частичный уникальный индекс в базе страхует
	// от гонки между проверкой и вставкой.
	if _, err := s.escrows.GetActiveBySlot(ctx, in.JobID, in.MilestoneID); err == nil {
		return nil, result, apperror.New(apperror.ErrCodeConflict, "по этому заказу уже есть активная транзакция")
	}

	recurring, err := s.IsRecurringClient(ctx, in.ClientID)
	if err != nil {
		return nil, result, err
	}
	fee := s.ComputeFee(in.Amount, recurring, worker.Tier)

	deadlineAt := time.Now().Add(scaleDuration(s.deadlines.AutoReleaseDeadline, job.DeadlineMultiplier()))
	t := &models.EscrowTransaction{
		JobID:           in.JobID,
		ClientID:        in.ClientID,
		WorkerID:        in.WorkerID,
		MilestoneID:     in.MilestoneID,
		GrossAmount:     round2(in.Amount),
		PlatformFee:     fee.Fee,
		WorkerNetAmount: fee.WorkerNet,
		Status:          models.EscrowStatusPending,
		DeadlineAt:      &deadlineAt,
		Notes:           in.Notes,
	}
	if err := s.escrows.Create(ctx, t); err != nil {
		return nil, result, err
	}

	// Идентификатор транзакции служит идемпотентным ключом провайдера.
	reference, err := s.processor.AuthorizeAndHold(ctx, t.GrossAmount, s.policy.Currency, in.PaymentMethod, t.ID.String())
	if err != nil {
		s.recordProcessorFailure(ctx, t.ID, "authorize_and_hold", err)
		if casErr := s.escrows.UpdateStatusCAS(ctx, t.ID, models.EscrowStatusPending, models.EscrowStatusExpired); casErr != nil {
			s.log.WithError(casErr).WithField("transaction_id", t.ID).Error("не удалось закрыть транзакцию после сбоя авторизации")
		}
		return nil, result, apperror.Processor(err, "платёж не может быть обработан, попробуйте позже")
	}

	if err := s.escrows.SetPaymentReference(ctx, t.ID, reference); err != nil {
		return nil, result, err
	}
	if err := s.escrows.UpdateStatusCAS(ctx, t.ID, models.EscrowStatusPending, models.EscrowStatusHeld); err != nil {
		return nil, result, err
	}
	t.Status = models.EscrowStatusHeld
	t.PaymentReference = &reference

	s.appendEvent(ctx, t.ID, models.TimelineEventCreated, &in.ClientID, nil)
	s.appendEvent(ctx, t.ID, models.TimelineEventPaymentConfirmed, nil, &reference)

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleForTransaction(ctx, t, job); err != nil {
			s.log.WithError(err).WithField("transaction_id", t.ID).Error("не удалось запланировать дедлайны")
		}
	}

	s.notifier.Notify(ctx, t.WorkerID, "escrow_created",
		fmt.Sprintf("Средства по заказу %q зарезервированы", job.Title),
		map[string]interface{}{"transaction_id": t.ID, "amount": t.GrossAmount})

	s.log.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"job_id":         t.JobID,
		"amount":         t.GrossAmount,
		"fee":            t.PlatformFee,
	}).Info("escrow транзакция открыта")

	return t, result, nil
}

// Release освобождает удержанные средства исполнителю.
// Без force требуется подходящий статус заказа и выдержка минимального
// периода удержания, если вызывает клиент.
func (s *LedgerService) Release(ctx context.Context, transactionID, actorID uuid.UUID, reason string, force bool) (*models.EscrowTransaction, error) {
	t, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.ErrTransactionNotFound
	}

	fromStatus := t.Status
	allowed := models.CanTransitionEscrow(fromStatus, models.EscrowStatusReleased)
	if fromStatus == models.EscrowStatusDisputed {
		// Из disputed средства уходят только принудительно, как исход резолюции.
		allowed = force
	}
	if !allowed {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("транзакция в статусе %q не может быть освобождена", fromStatus))
	}

	if !force {
		if actorID != t.ClientID && actorID != t.WorkerID {
			return nil, apperror.ErrForbidden
		}

		job, err := s.jobs.GetByID(ctx, t.JobID)
		if err != nil {
			return nil, err
		}
		if _, ok := models.CompletionEligibleJobStatuses[job.Status]; !ok {
			return nil, apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("заказ в статусе %q не допускает освобождение средств", job.Status))
		}

		if actorID == t.ClientID && time.Since(t.CreatedAt) < s.policy.MinHoldPeriod {
			return nil, apperror.New(apperror.ErrCodeInvalidState,
				"минимальный период удержания ещё не истёк")
		}
	}

	if t.PaymentReference == nil {
		return nil, apperror.New(apperror.ErrCodeInternal, "у транзакции нет платёжной ссылки")
	}

	// Захват у провайдера идемпотентен по reference, поэтому проигравший
	// гонку CAS ниже не приводит к двойному списанию.
	receipt, err := s.processor.Capture(ctx, *t.PaymentReference)
	if err != nil {
		s.recordProcessorFailure(ctx, t.ID, "capture", err)
		s.log.WithError(err).WithField("transaction_id", t.ID).Error("сбой захвата средств")
		return nil, apperror.Processor(err, "платёж не может быть обработан, попробуйте позже")
	}

	if err := s.escrows.UpdateStatusCAS(ctx, t.ID, fromStatus, models.EscrowStatusReleased); err != nil {
		if err == repository.ErrStatusConflict {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "статус транзакции изменился, повторите запрос")
		}
		return nil, err
	}
	t.Status = models.EscrowStatusReleased

	if s.scheduler != nil {
		if err := s.scheduler.CompleteForTransaction(ctx, t.ID); err != nil {
			s.log.WithError(err).WithField("transaction_id", t.ID).Warn("не удалось закрыть дедлайны")
		}
	}

	details := reason
	if details == "" {
		details = "receipt " + receipt
	}
	s.appendEvent(ctx, t.ID, models.TimelineEventReleased, actorPtr(actorID), &details)

	// Транзакции по отдельной вехе заказ не завершают: этим управляет
	// менеджер вех, когда approved все вехи.
	if t.MilestoneID == nil {
		if err := s.jobs.MarkCompleted(ctx, t.JobID); err != nil {
			s.log.WithError(err).WithField("job_id", t.JobID).Warn("не удалось завершить заказ")
		}
	}

	s.notifier.Notify(ctx, t.WorkerID, "escrow_released",
		fmt.Sprintf("Оплата %.2f переведена вам", t.WorkerNetAmount),
		map[string]interface{}{"transaction_id": t.ID, "amount": t.WorkerNetAmount})

	s.log.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"actor_id":       actorID,
		"forced":         force,
	}).Info("средства освобождены")

	return t, nil
}

// Refund возвращает средства клиенту, полностью или частично.
// Доступно клиенту и администратору из статусов held и disputed.
func (s *LedgerService) Refund(ctx context.Context, transactionID, actorID uuid.UUID, actorRole, reason string, partialAmount *float64) (*models.EscrowTransaction, error) {
	t, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.ErrTransactionNotFound
	}

	fromStatus := t.Status
	if !models.CanTransitionEscrow(fromStatus, models.EscrowStatusRefunded) {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("транзакция в статусе %q не может быть возвращена", fromStatus))
	}

	if actorID != t.ClientID && actorRole != models.RoleAdmin {
		return nil, apperror.ErrForbidden
	}

	amount := t.GrossAmount
	toStatus := models.EscrowStatusRefunded
	if partialAmount != nil {
		if *partialAmount <= 0 || *partialAmount > t.GrossAmount {
			return nil, apperror.Validation("некорректная сумма частичного возврата",
				[]string{fmt.Sprintf("сумма должна быть в диапазоне (0, %.2f]", t.GrossAmount)})
		}
		amount = round2(*partialAmount)
		if amount < t.GrossAmount {
			toStatus = models.EscrowStatusPartiallyRefunded
		}
	}

	if t.PaymentReference == nil {
		return nil, apperror.New(apperror.ErrCodeInternal, "у транзакции нет платёжной ссылки")
	}

	if _, err := s.processor.Refund(ctx, *t.PaymentReference, amount, t.ID.String()+":refund"); err != nil {
		s.recordProcessorFailure(ctx, t.ID, "refund", err)
		s.log.WithError(err).WithField("transaction_id", t.ID).Error("сбой возврата средств")
		return nil, apperror.Processor(err, "платёж не может быть обработан, попробуйте позже")
	}

	if err := s.escrows.MarkRefunded(ctx, t.ID, fromStatus, toStatus, amount); err != nil {
		if err == repository.ErrStatusConflict {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "статус транзакции изменился, повторите запрос")
		}
		return nil, err
	}
	t.Status = toStatus
	t.RefundedAmount += amount

	if s.scheduler != nil {
		if err := s.scheduler.CompleteForTransaction(ctx, t.ID); err != nil {
			s.log.WithError(err).WithField("transaction_id", t.ID).Warn("не удалось закрыть дедлайны")
		}
	}

	details := fmt.Sprintf("%s (%.2f)", reason, amount)
	s.appendEvent(ctx, t.ID, models.TimelineEventRefunded, actorPtr(actorID), &details)

	// Полный возврат отменяет заказ; при частичном возврате остаток
	// считается принятой работой и заказ завершается. Заказом с вехами
	// управляет менеджер вех, возврат по одной вехе заказ не трогает.
	if t.MilestoneID == nil {
		if toStatus == models.EscrowStatusRefunded {
			if err := s.jobs.MarkCancelled(ctx, t.JobID); err != nil {
				s.log.WithError(err).WithField("job_id", t.JobID).Warn("не удалось отменить заказ")
			}
		} else {
			if err := s.jobs.MarkCompleted(ctx, t.JobID); err != nil {
				s.log.WithError(err).WithField("job_id", t.JobID).Warn("не удалось завершить заказ")
			}
		}
	}

	s.notifier.Notify(ctx, t.ClientID, "escrow_refunded",
		fmt.Sprintf("Возврат %.2f оформлен", amount),
		map[string]interface{}{"transaction_id": t.ID, "amount": amount})

	s.log.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"actor_id":       actorID,
		"amount":         amount,
		"partial":        toStatus == models.EscrowStatusPartiallyRefunded,
	}).Info("возврат выполнен")

	return t, nil
}

// MarkDisputed переводит транзакцию в disputed от имени менеджера споров.
func (s *LedgerService) MarkDisputed(ctx context.Context, transactionID uuid.UUID, fromStatus, reason string) error {
	if err := s.escrows.MarkDisputed(ctx, transactionID, fromStatus, reason); err != nil {
		if err == repository.ErrStatusConflict {
			return apperror.New(apperror.ErrCodeInvalidState, "статус транзакции изменился, повторите запрос")
		}
		return err
	}
	s.appendEvent(ctx, transactionID, models.TimelineEventDisputed, nil, &reason)
	return nil
}

// Get возвращает транзакцию по идентификатору.
func (s *LedgerService) Get(ctx context.Context, transactionID uuid.UUID) (*models.EscrowTransaction, error) {
	t, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.ErrTransactionNotFound
	}
	return t, nil
}

// ListByUser возвращает транзакции пользователя.
func (s *LedgerService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.escrows.ListByUser(ctx, userID, limit, offset)
}

// Timeline возвращает журнал событий транзакции и выведенную из него фазу.
func (s *LedgerService) Timeline(ctx context.Context, transactionID uuid.UUID) ([]models.TimelineEvent, string, error) {
	events, err := s.timeline.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, "", err
	}
	return events, models.PhaseFromTimeline(events), nil
}

// appendEvent пишет событие таймлайна; сбой журнала не прерывает операцию.
func (s *LedgerService) appendEvent(ctx context.Context, transactionID uuid.UUID, eventType string, actorID *uuid.UUID, details *string) {
	event := &models.TimelineEvent{
		TransactionID: transactionID,
		Type:          eventType,
		ActorID:       actorID,
		Details:       details,
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"transaction_id": transactionID,
			"event":          eventType,
		}).Error("не удалось записать событие таймлайна")
	}
}

// recordProcessorFailure фиксирует сбой провайдера для монитора рисков.
func (s *LedgerService) recordProcessorFailure(ctx context.Context, transactionID uuid.UUID, operation string, cause error) {
	failure := &models.ProcessorFailure{
		TransactionID: transactionID,
		Operation:     operation,
		Reason:        cause.Error(),
	}
	if err := s.escrows.RecordProcessorFailure(ctx, failure); err != nil {
		s.log.WithError(err).WithField("transaction_id", transactionID).Error("не удалось записать сбой провайдера")
	}
}

// scaleDuration умножает длительность на множитель типа заказа.
func scaleDuration(d time.Duration, multiplier float64) time.Duration {
	return time.Duration(float64(d) * multiplier)
}

func actorPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
