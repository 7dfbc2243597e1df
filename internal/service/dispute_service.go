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

// DisputeStore описывает хранилище споров и связанных с ними записей.
type DisputeStore interface {
	Create(ctx context.Context, d *models.DisputeCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DisputeCase, error)
	GetActiveByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.DisputeCase, error)
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to string) error
	AssignMediator(ctx context.Context, id, mediatorID uuid.UUID, from string) error
	MarkResolved(ctx context.Context, id uuid.UUID, from, resolutionType string, amount *float64, notes *string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.DisputeCase, error)
	ListUnresolvedOlderThan(ctx context.Context, statuses []string, before time.Time, limit int) ([]models.DisputeCase, error)
	AddEvidence(ctx context.Context, e *models.DisputeEvidence) error
	ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeEvidence, error)
	AddMessage(ctx context.Context, m *models.DisputeMessage) error
	ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error)
	HasRecentAgreement(ctx context.Context, disputeID, senderID uuid.UUID, within time.Duration) (bool, error)
	FindMediator(ctx context.Context, specialization string, caseValue float64) (*models.Mediator, error)
	GetMediatorByID(ctx context.Context, id uuid.UUID) (*models.Mediator, error)
	AdjustMediatorCaseload(ctx context.Context, mediatorID uuid.UUID, delta int) error
	CreateSession(ctx context.Context, s *models.MediationSession) error
	CancelSessions(ctx context.Context, disputeID uuid.UUID) error
}

// disputeLedger — операции леджера, выполняющие финансовый исход спора.
type disputeLedger interface {
	Get(ctx context.Context, transactionID uuid.UUID) (*models.EscrowTransaction, error)
	MarkDisputed(ctx context.Context, transactionID uuid.UUID, fromStatus, reason string) error
	Release(ctx context.Context, transactionID, actorID uuid.UUID, reason string, force bool) (*models.EscrowTransaction, error)
	Refund(ctx context.Context, transactionID, actorID uuid.UUID, actorRole, reason string, partialAmount *float64) (*models.EscrowTransaction, error)
}

// disputeDeadlines — связь менеджера споров с планировщиком.
type disputeDeadlines interface {
	CancelForDispute(ctx context.Context, transactionID uuid.UUID) error
}

// EvidenceInput описывает уже сохранённый файл доказательства.
type EvidenceInput struct {
	FileName    string
	FilePath    string
	MimeType    *string
	Description *string
}

// FileDisputeInput входные данные открытия спора.
type FileDisputeInput struct {
	TransactionID  uuid.UUID
	InitiatorID    uuid.UUID
	Type           string
	Title          string
	Description    string
	AmountDisputed float64
	Evidence       []EvidenceInput
}

// DisputeService ведёт споры по escrow транзакциям: открытие, переписку,
// эскалацию к медиатору и резолюцию с финансовым исходом через леджер.
type DisputeService struct {
	disputes  DisputeStore
	ledger    disputeLedger
	deadlines disputeDeadlines
	notifier  Notifier
	policy    config.SchedulerPolicy
	log       *logrus.Logger
}

func NewDisputeService(
	disputes DisputeStore,
	ledger disputeLedger,
	notifier Notifier,
	policy config.SchedulerPolicy,
	log *logrus.Logger,
) *DisputeService {
	return &DisputeService{
		disputes: disputes,
		ledger:   ledger,
		notifier: notifier,
		policy:   policy,
		log:      log,
	}
}

// SetDeadlines подключает планировщик дедлайнов.
func (s *DisputeService) SetDeadlines(deadlines disputeDeadlines) {
	s.deadlines = deadlines
}

// derivePriority выводит приоритет спора из суммы и типа.
func derivePriority(amountDisputed float64, disputeType string) string {
	switch {
	case amountDisputed > 5000:
		return models.PriorityUrgent
	case amountDisputed > 2000:
		return models.PriorityHigh
	case disputeType == models.DisputeTypePayment || disputeType == models.DisputeTypeTimeline:
		return models.PriorityHigh
	case amountDisputed > 500:
		return models.PriorityMedium
	}
	return models.PriorityLow
}

// File открывает спор по транзакции и переводит её в disputed.
func (s *DisputeService) File(ctx context.Context, in FileDisputeInput) (*models.DisputeCase, error) {
	if _, ok := models.ValidDisputeTypes[in.Type]; !ok {
		return nil, apperror.Validation("некорректный тип спора", []string{fmt.Sprintf("неизвестный тип %q", in.Type)})
	}

	t, err := s.ledger.Get(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionEscrow(t.Status, models.EscrowStatusDisputed) {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("по транзакции в статусе %q спор открыть нельзя", t.Status))
	}
	if in.InitiatorID != t.ClientID && in.InitiatorID != t.WorkerID {
		return nil, apperror.ErrForbidden
	}
	if in.AmountDisputed <= 0 || in.AmountDisputed > t.GrossAmount {
		return nil, apperror.Validation("некорректная оспариваемая сумма",
			[]string{fmt.Sprintf("сумма должна быть в диапазоне (0, %.2f]", t.GrossAmount)})
	}
	if existing, err := s.disputes.GetActiveByTransaction(ctx, in.TransactionID); err == nil && existing != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по транзакции уже открыт спор")
	}

	d := &models.DisputeCase{
		TransactionID:  in.TransactionID,
		JobID:          t.JobID,
		ClientID:       t.ClientID,
		WorkerID:       t.WorkerID,
		InitiatorID:    in.InitiatorID,
		Type:           in.Type,
		Status:         models.DisputeStatusOpen,
		Priority:       derivePriority(in.AmountDisputed, in.Type),
		Title:          in.Title,
		Description:    in.Description,
		AmountDisputed: in.AmountDisputed,
	}
	if err := s.disputes.Create(ctx, d); err != nil {
		return nil, err
	}

	if err := s.ledger.MarkDisputed(ctx, t.ID, t.Status, in.Title); err != nil {
		// Транзакция успела выйти из-под заморозки (например, авто-релиз
		// между проверкой и CAS). Созданный спор закрывается сразу, без
		// замороженной транзакции он не подлежит ни эскалации, ни резолюции.
		if cerr := s.disputes.UpdateStatusCAS(ctx, d.ID, models.DisputeStatusOpen, models.DisputeStatusClosed); cerr != nil {
			s.log.WithError(cerr).WithField("dispute_id", d.ID).Error("не удалось закрыть спор после конфликта статуса транзакции")
		}
		return nil, err
	}

	// Спор замораживает автоматические действия по транзакции.
	if s.deadlines != nil {
		if err := s.deadlines.CancelForDispute(ctx, t.ID); err != nil {
			s.log.WithError(err).WithField("transaction_id", t.ID).Warn("не удалось отменить дедлайны транзакции")
		}
	}

	s.addMessage(ctx, d, in.InitiatorID, in.Description, nil, false)
	for _, ev := range in.Evidence {
		s.addEvidence(ctx, d.ID, in.InitiatorID, ev)
	}

	other := t.WorkerID
	if in.InitiatorID == t.WorkerID {
		other = t.ClientID
	}
	s.notifier.Notify(ctx, other, "dispute_filed",
		fmt.Sprintf("По транзакции открыт спор: %s", in.Title),
		map[string]interface{}{"dispute_id": d.ID, "transaction_id": t.ID, "priority": d.Priority})

	s.log.WithFields(logrus.Fields{
		"dispute_id":     d.ID,
		"transaction_id": t.ID,
		"priority":       d.Priority,
		"type":           d.Type,
	}).Info("спор открыт")

	return d, nil
}

// Respond добавляет ответ стороны: сообщение, опциональное встречное
// предложение и доказательства. Первый ответ переводит спор в investigating.
func (s *DisputeService) Respond(ctx context.Context, disputeID, userID uuid.UUID, body string, counterOffer *float64, isAgreement bool, evidence []EvidenceInput) error {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return apperror.ErrDisputeNotFound
	}
	if userID != d.ClientID && userID != d.WorkerID {
		return apperror.ErrForbidden
	}
	if d.Status != models.DisputeStatusOpen && d.Status != models.DisputeStatusInvestigating {
		return apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("спор в статусе %q не принимает ответы", d.Status))
	}
	if counterOffer != nil && (*counterOffer < 0 || *counterOffer > d.AmountDisputed) {
		return apperror.Validation("некорректное встречное предложение",
			[]string{fmt.Sprintf("сумма должна быть в диапазоне [0, %.2f]", d.AmountDisputed)})
	}

	s.addMessage(ctx, d, userID, body, counterOffer, isAgreement)
	for _, ev := range evidence {
		s.addEvidence(ctx, d.ID, userID, ev)
	}

	if d.Status == models.DisputeStatusOpen {
		if err := s.disputes.UpdateStatusCAS(ctx, d.ID, models.DisputeStatusOpen, models.DisputeStatusInvestigating); err != nil && err != repository.ErrStatusConflict {
			return err
		}
	}

	other := d.WorkerID
	if userID == d.WorkerID {
		other = d.ClientID
	}
	s.notifier.Notify(ctx, other, "dispute_response",
		"В споре появился новый ответ",
		map[string]interface{}{"dispute_id": d.ID})

	return nil
}

// EscalateToMediation подбирает медиатора и переводит спор в mediation.
func (s *DisputeService) EscalateToMediation(ctx context.Context, disputeID uuid.UUID, requestedBy *uuid.UUID, reason string) error {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return apperror.ErrDisputeNotFound
	}
	if !models.CanTransitionDispute(d.Status, models.DisputeStatusMediation) {
		return apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("спор в статусе %q нельзя передать в медиацию", d.Status))
	}

	mediator, err := s.disputes.FindMediator(ctx, d.Type, d.AmountDisputed)
	if err != nil {
		return apperror.New(apperror.ErrCodeNoMediatorAvailable, "нет доступного медиатора, попробуйте позже")
	}

	if err := s.disputes.AssignMediator(ctx, d.ID, mediator.ID, d.Status); err != nil {
		if err == repository.ErrStatusConflict {
			return apperror.New(apperror.ErrCodeInvalidState, "статус спора изменился, повторите запрос")
		}
		return err
	}
	if err := s.disputes.AdjustMediatorCaseload(ctx, mediator.ID, 1); err != nil {
		s.log.WithError(err).WithField("mediator_id", mediator.ID).Warn("не удалось обновить загрузку медиатора")
	}

	session := &models.MediationSession{
		DisputeID:   d.ID,
		MediatorID:  mediator.ID,
		ScheduledAt: time.Now().Add(24 * time.Hour),
		Status:      models.SessionStatusScheduled,
	}
	if err := s.disputes.CreateSession(ctx, session); err != nil {
		s.log.WithError(err).WithField("dispute_id", d.ID).Warn("не удалось запланировать сессию медиации")
	}

	s.addSystemMessage(ctx, d.ID, fmt.Sprintf("Спор передан в медиацию: %s", reason))

	for _, userID := range []uuid.UUID{d.ClientID, d.WorkerID, mediator.UserID} {
		s.notifier.Notify(ctx, userID, "dispute_mediation",
			"Спор передан медиатору",
			map[string]interface{}{"dispute_id": d.ID, "session_at": session.ScheduledAt})
	}

	s.log.WithFields(logrus.Fields{
		"dispute_id":  d.ID,
		"mediator_id": mediator.ID,
	}).Info("спор передан в медиацию")

	return nil
}

// Resolve закрывает спор с указанной резолюцией и выполняет финансовый исход.
// Право резолюции: администратор, назначенный медиатор либо обе стороны,
// отправившие сообщение-согласие за последние 24 часа.
func (s *DisputeService) Resolve(ctx context.Context, disputeID, resolverID uuid.UUID, resolverRole, resolutionType string, amount *float64, notes string) error {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return apperror.ErrDisputeNotFound
	}
	if models.IsTerminalDisputeStatus(d.Status) {
		return apperror.New(apperror.ErrCodeInvalidState, "спор уже завершён")
	}

	authorized, err := s.canResolve(ctx, d, resolverID, resolverRole)
	if err != nil {
		return err
	}
	if !authorized {
		return apperror.ErrForbidden
	}

	return s.applyResolution(ctx, d, resolverID, resolutionType, amount, notes)
}

// canResolve проверяет право актора на резолюцию спора.
func (s *DisputeService) canResolve(ctx context.Context, d *models.DisputeCase, resolverID uuid.UUID, resolverRole string) (bool, error) {
	if resolverRole == models.RoleAdmin {
		return true, nil
	}

	if d.MediatorID != nil {
		mediator, err := s.disputes.GetMediatorByID(ctx, *d.MediatorID)
		if err == nil && mediator.UserID == resolverID {
			return true, nil
		}
	}

	// Обе стороны согласились за последние 24 часа.
	if resolverID == d.ClientID || resolverID == d.WorkerID {
		clientAgreed, err := s.disputes.HasRecentAgreement(ctx, d.ID, d.ClientID, 24*time.Hour)
		if err != nil {
			return false, err
		}
		workerAgreed, err := s.disputes.HasRecentAgreement(ctx, d.ID, d.WorkerID, 24*time.Hour)
		if err != nil {
			return false, err
		}
		return clientAgreed && workerAgreed, nil
	}

	return false, nil
}

// applyResolution выполняет финансовый исход и закрывает спор.
// Вызывается из Resolve после авторизации и из принудительной резолюции обхода.
func (s *DisputeService) applyResolution(ctx context.Context, d *models.DisputeCase, resolverID uuid.UUID, resolutionType string, amount *float64, notes string) error {
	if amount != nil && (*amount < 0 || *amount > d.AmountDisputed) {
		return apperror.Validation("некорректная сумма резолюции",
			[]string{fmt.Sprintf("сумма должна быть в диапазоне [0, %.2f]", d.AmountDisputed)})
	}

	reason := fmt.Sprintf("резолюция спора: %s", notes)
	switch resolutionType {
	case models.ResolutionFullRefund:
		if _, err := s.ledger.Refund(ctx, d.TransactionID, resolverID, models.RoleAdmin, reason, nil); err != nil {
			return err
		}
	case models.ResolutionPartialRefund:
		if amount == nil {
			return apperror.Validation("не указана сумма частичного возврата", nil)
		}
		if _, err := s.ledger.Refund(ctx, d.TransactionID, resolverID, models.RoleAdmin, reason, amount); err != nil {
			return err
		}
	case models.ResolutionFullRelease:
		if _, err := s.ledger.Release(ctx, d.TransactionID, resolverID, reason, true); err != nil {
			return err
		}
	case models.ResolutionPartialRelease:
		// Частичное освобождение выражается через частичный возврат
		// остатка клиенту: остальное переходит исполнителю.
		if amount == nil {
			return apperror.Validation("не указана сумма частичного освобождения", nil)
		}
		refund := round2(d.AmountDisputed - *amount)
		if _, err := s.ledger.Refund(ctx, d.TransactionID, resolverID, models.RoleAdmin, reason, &refund); err != nil {
			return err
		}
	case models.ResolutionSplit:
		half := round2(d.AmountDisputed / 2)
		if _, err := s.ledger.Refund(ctx, d.TransactionID, resolverID, models.RoleAdmin, reason, &half); err != nil {
			return err
		}
	default:
		return apperror.Validation("некорректный тип резолюции", []string{fmt.Sprintf("неизвестный тип %q", resolutionType)})
	}

	resolutionNotes := notes
	if err := s.disputes.MarkResolved(ctx, d.ID, d.Status, resolutionType, amount, &resolutionNotes); err != nil {
		if err == repository.ErrStatusConflict {
			return apperror.New(apperror.ErrCodeInvalidState, "статус спора изменился, повторите запрос")
		}
		return err
	}

	if err := s.disputes.CancelSessions(ctx, d.ID); err != nil {
		s.log.WithError(err).WithField("dispute_id", d.ID).Warn("не удалось отменить сессии медиации")
	}
	if d.MediatorID != nil {
		if err := s.disputes.AdjustMediatorCaseload(ctx, *d.MediatorID, -1); err != nil {
			s.log.WithError(err).WithField("mediator_id", *d.MediatorID).Warn("не удалось обновить загрузку медиатора")
		}
	}

	s.addSystemMessage(ctx, d.ID, fmt.Sprintf("Спор закрыт с резолюцией %q", resolutionType))

	for _, userID := range []uuid.UUID{d.ClientID, d.WorkerID} {
		s.notifier.Notify(ctx, userID, "dispute_resolved",
			fmt.Sprintf("Спор %q закрыт", d.Title),
			map[string]interface{}{"dispute_id": d.ID, "resolution": resolutionType})
	}

	s.log.WithFields(logrus.Fields{
		"dispute_id": d.ID,
		"resolution": resolutionType,
	}).Info("спор закрыт")

	return nil
}

// EscalationSweep продвигает зависшие споры по цепочке эскалации.
// Возвращает количество обработанных споров; ошибки по отдельным спорам
// не прерывают обход.
func (s *DisputeService) EscalationSweep(ctx context.Context) int {
	now := time.Now()
	processed := 0

	// Неотвеченные споры уходят в медиацию.
	stale, err := s.disputes.ListUnresolvedOlderThan(ctx,
		[]string{models.DisputeStatusOpen, models.DisputeStatusInvestigating},
		now.Add(-s.policy.DisputeEscalation), 50)
	if err != nil {
		s.log.WithError(err).Error("обход эскалации: выборка open споров")
	}
	for i := range stale {
		d := &stale[i]
		if err := s.EscalateToMediation(ctx, d.ID, nil, "автоматическая эскалация по сроку"); err != nil {
			s.log.WithError(err).WithField("dispute_id", d.ID).Warn("обход эскалации: не удалось передать в медиацию")
			continue
		}
		processed++
	}

	// Медиация без результата уходит в арбитраж.
	inMediation, err := s.disputes.ListUnresolvedOlderThan(ctx,
		[]string{models.DisputeStatusMediation},
		now.Add(-(s.policy.DisputeEscalation + s.policy.MediationWindow)), 50)
	if err != nil {
		s.log.WithError(err).Error("обход эскалации: выборка mediation споров")
	}
	for i := range inMediation {
		d := &inMediation[i]
		if err := s.disputes.UpdateStatusCAS(ctx, d.ID, models.DisputeStatusMediation, models.DisputeStatusArbitration); err != nil {
			if err != repository.ErrStatusConflict {
				s.log.WithError(err).WithField("dispute_id", d.ID).Warn("обход эскалации: не удалось перевести в арбитраж")
			}
			continue
		}
		s.addSystemMessage(ctx, d.ID, "Спор передан в арбитраж после медиации без результата")
		for _, userID := range []uuid.UUID{d.ClientID, d.WorkerID} {
			s.notifier.Notify(ctx, userID, "dispute_arbitration",
				"Спор передан в арбитраж",
				map[string]interface{}{"dispute_id": d.ID})
		}
		processed++
	}

	// Споры старше предельного срока закрываются принудительно. Средства
	// делятся поровну: нейтральный исход при бездействии обеих сторон.
	expired, err := s.disputes.ListUnresolvedOlderThan(ctx,
		[]string{models.DisputeStatusOpen, models.DisputeStatusInvestigating, models.DisputeStatusMediation, models.DisputeStatusArbitration},
		now.Add(-s.policy.ForcedResolution), 50)
	if err != nil {
		s.log.WithError(err).Error("обход эскалации: выборка просроченных споров")
	}
	for i := range expired {
		d := &expired[i]
		half := round2(d.AmountDisputed / 2)
		if err := s.applyResolution(ctx, d, uuid.Nil, models.ResolutionSplit, &half,
			"принудительная резолюция: срок рассмотрения истёк"); err != nil {
			s.log.WithError(err).WithField("dispute_id", d.ID).Warn("обход эскалации: принудительная резолюция не удалась")
			continue
		}
		processed++
	}

	return processed
}

// Get возвращает спор по идентификатору.
func (s *DisputeService) Get(ctx context.Context, disputeID uuid.UUID) (*models.DisputeCase, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, apperror.ErrDisputeNotFound
	}
	return d, nil
}

// ListByUser возвращает споры пользователя.
func (s *DisputeService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.DisputeCase, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

// Messages возвращает переписку спора для его сторон и администратора.
func (s *DisputeService) Messages(ctx context.Context, disputeID, userID uuid.UUID, role string) ([]models.DisputeMessage, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, apperror.ErrDisputeNotFound
	}
	if role != models.RoleAdmin && userID != d.ClientID && userID != d.WorkerID {
		return nil, apperror.ErrForbidden
	}
	return s.disputes.ListMessages(ctx, disputeID)
}

// Evidence возвращает доказательства спора для его сторон и администратора.
func (s *DisputeService) Evidence(ctx context.Context, disputeID, userID uuid.UUID, role string) ([]models.DisputeEvidence, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, apperror.ErrDisputeNotFound
	}
	if role != models.RoleAdmin && userID != d.ClientID && userID != d.WorkerID {
		return nil, apperror.ErrForbidden
	}
	return s.disputes.ListEvidence(ctx, disputeID)
}

// AttachEvidence добавляет доказательство к активному спору.
// Разрешено только сторонам спора, пока спор не завершён.
func (s *DisputeService) AttachEvidence(ctx context.Context, disputeID, submitterID uuid.UUID, in EvidenceInput) (*models.DisputeEvidence, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, apperror.ErrDisputeNotFound
	}
	if submitterID != d.ClientID && submitterID != d.WorkerID {
		return nil, apperror.ErrForbidden
	}
	if models.IsTerminalDisputeStatus(d.Status) {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "спор завершён, доказательства больше не принимаются")
	}

	evidence := &models.DisputeEvidence{
		DisputeID:   disputeID,
		SubmitterID: submitterID,
		FileName:    in.FileName,
		FilePath:    in.FilePath,
		MimeType:    in.MimeType,
		Description: in.Description,
	}
	if err := s.disputes.AddEvidence(ctx, evidence); err != nil {
		return nil, fmt.Errorf("dispute service: attach evidence %w", err)
	}
	return evidence, nil
}

// addMessage пишет сообщение стороны; сбой журнала операцию не прерывает.
func (s *DisputeService) addMessage(ctx context.Context, d *models.DisputeCase, senderID uuid.UUID, body string, counterOffer *float64, isAgreement bool) {
	sender := models.RoleClient
	if senderID == d.WorkerID {
		sender = models.RoleWorker
	}
	msg := &models.DisputeMessage{
		DisputeID:    d.ID,
		SenderID:     senderID,
		Sender:       sender,
		Body:         body,
		CounterOffer: counterOffer,
		IsAgreement:  isAgreement,
	}
	if err := s.disputes.AddMessage(ctx, msg); err != nil {
		s.log.WithError(err).WithField("dispute_id", d.ID).Error("не удалось записать сообщение спора")
	}
}

// addSystemMessage пишет системное сообщение в переписку спора.
func (s *DisputeService) addSystemMessage(ctx context.Context, disputeID uuid.UUID, body string) {
	msg := &models.DisputeMessage{
		DisputeID: disputeID,
		SenderID:  uuid.Nil,
		Sender:    models.SystemSender,
		Body:      body,
	}
	if err := s.disputes.AddMessage(ctx, msg); err != nil {
		s.log.WithError(err).WithField("dispute_id", disputeID).Error("не удалось записать системное сообщение")
	}
}

// addEvidence сохраняет запись доказательства.
func (s *DisputeService) addEvidence(ctx context.Context, disputeID, submitterID uuid.UUID, in EvidenceInput) {
	evidence := &models.DisputeEvidence{
		DisputeID:   disputeID,
		SubmitterID: submitterID,
		FileName:    in.FileName,
		FilePath:    in.FilePath,
		MimeType:    in.MimeType,
		Description: in.Description,
	}
	if err := s.disputes.AddEvidence(ctx, evidence); err != nil {
		s.log.WithError(err).WithField("dispute_id", disputeID).Error("не удалось записать доказательство")
	}
}
