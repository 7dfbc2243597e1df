package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// MilestoneStore описывает хранилище вех.
type MilestoneStore interface {
	CreateSet(ctx context.Context, milestones []models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Milestone, error)
	ListBySequences(ctx context.Context, jobID uuid.UUID, sequences []int64) ([]models.Milestone, error)
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to string) error
	MarkSubmitted(ctx context.Context, id uuid.UUID, notes *string) error
	MarkApproved(ctx context.Context, id uuid.UUID, notes *string, rating *int) error
	MarkRevision(ctx context.Context, id uuid.UUID, notes *string, newDueAt *time.Time) error
	CountUnapproved(ctx context.Context, jobID uuid.UUID) (int, error)
}

// escrowLedger — операции леджера, нужные менеджеру вех.
type escrowLedger interface {
	Create(ctx context.Context, in CreateEscrowInput) (*models.EscrowTransaction, *ValidationResult, error)
	Release(ctx context.Context, transactionID, actorID uuid.UUID, reason string, force bool) (*models.EscrowTransaction, error)
}

// milestoneTemplates именованные шаблоны разбивки оплаты по категориям заказов.
var milestoneTemplates = map[string][]models.MilestoneTemplateItem{
	"web_development": {
		{Title: "Прототип и архитектура", Percentage: 20},
		{Title: "Вёрстка и фронтенд", Percentage: 30, Dependencies: []int64{1}},
		{Title: "Бэкенд и интеграции", Percentage: 40, Dependencies: []int64{2}},
		{Title: "Запуск и приёмка", Percentage: 10, Dependencies: []int64{3}},
	},
	"design": {
		{Title: "Концепция", Percentage: 30},
		{Title: "Основные макеты", Percentage: 40, Dependencies: []int64{1}},
		{Title: "Финальные материалы", Percentage: 30, Dependencies: []int64{2}},
	},
	"writing": {
		{Title: "План и тезисы", Percentage: 25},
		{Title: "Черновик", Percentage: 50, Dependencies: []int64{1}},
		{Title: "Финальная редакция", Percentage: 25, Dependencies: []int64{2}},
	},
}

// fallbackTemplate двухшаговая разбивка 50/50 для категорий без шаблона.
var fallbackTemplate = []models.MilestoneTemplateItem{
	{Title: "Первый этап", Percentage: 50},
	{Title: "Завершение", Percentage: 50, Dependencies: []int64{1}},
}

// MilestoneService управляет поэтапной оплатой заказа.
// Деньгами веха не владеет: финансирование и выплата каждой вехи идут
// через леджер отдельной транзакцией со ссылкой на веху.
type MilestoneService struct {
	milestones MilestoneStore
	escrows    EscrowStore
	jobs       JobStore
	timeline   TimelineStore
	ledger     escrowLedger
	notifier   Notifier
	log        *logrus.Logger
}

func NewMilestoneService(
	milestones MilestoneStore,
	escrows EscrowStore,
	jobs JobStore,
	timeline TimelineStore,
	ledger escrowLedger,
	notifier Notifier,
	log *logrus.Logger,
) *MilestoneService {
	return &MilestoneService{
		milestones: milestones,
		escrows:    escrows,
		jobs:       jobs,
		timeline:   timeline,
		ledger:     ledger,
		notifier:   notifier,
		log:        log,
	}
}

// CreateSet создаёт пачку вех для заказа: по шаблону категории, из
// пользовательской разбивки или 50/50 по умолчанию.
func (s *MilestoneService) CreateSet(ctx context.Context, jobID, clientID uuid.UUID, totalAmount float64, custom []models.MilestoneTemplateItem) ([]models.Milestone, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeNotFound, "заказ не найден")
	}
	if job.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	if totalAmount <= 0 {
		return nil, apperror.Validation("некорректная сумма заказа", []string{"сумма должна быть положительной"})
	}

	existing, err := s.milestones.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperror.New(apperror.ErrCodeConflict, "вехи для заказа уже созданы")
	}

	items := custom
	if len(items) == 0 {
		if tpl, ok := milestoneTemplates[job.Category]; ok {
			items = tpl
		} else {
			items = fallbackTemplate
		}
	}

	var sum float64
	for _, item := range items {
		sum += item.Percentage
	}
	if math.Abs(sum-100) > 0.01 {
		return nil, apperror.New(apperror.ErrCodePercentageMismatch,
			fmt.Sprintf("проценты вех в сумме дают %.2f вместо 100", sum))
	}

	milestones := make([]models.Milestone, 0, len(items))
	for i, item := range items {
		deps := item.Dependencies
		// По умолчанию вехи образуют цепочку: каждая зависит от предыдущей.
		if deps == nil && i > 0 {
			deps = []int64{int64(i)}
		}
		m := models.Milestone{
			ID:           uuid.New(),
			JobID:        jobID,
			Sequence:     i + 1,
			Title:        item.Title,
			Amount:       round2(totalAmount * item.Percentage / 100),
			Percentage:   item.Percentage,
			Status:       models.MilestoneStatusPending,
			Dependencies: pq.Int64Array(deps),
		}
		if item.Description != "" {
			desc := item.Description
			m.Description = &desc
		}
		milestones = append(milestones, m)
	}

	if err := s.milestones.CreateSet(ctx, milestones); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"job_id": jobID,
		"count":  len(milestones),
		"total":  totalAmount,
	}).Info("вехи заказа созданы")

	return milestones, nil
}

// PayMilestone финансирует веху: проверяет зависимости, открывает escrow
// транзакцию со ссылкой на веху и переводит веху в работу.
func (s *MilestoneService) PayMilestone(ctx context.Context, milestoneID, clientID uuid.UUID, paymentMethod string) (*models.EscrowTransaction, error) {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, apperror.ErrMilestoneNotFound
	}
	if m.Status != models.MilestoneStatusPending {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("веха в статусе %q не может быть оплачена", m.Status))
	}

	job, err := s.jobs.GetByID(ctx, m.JobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}

	if unmet, err := s.unmetDependencies(ctx, m); err != nil {
		return nil, err
	} else if len(unmet) > 0 {
		appErr := apperror.New(apperror.ErrCodeDependenciesUnmet, "предыдущие вехи ещё не приняты")
		appErr.Details = unmet
		return nil, appErr
	}

	t, _, err := s.ledger.Create(ctx, CreateEscrowInput{
		JobID:         m.JobID,
		ClientID:      clientID,
		WorkerID:      job.WorkerID,
		Amount:        m.Amount,
		MilestoneID:   &m.ID,
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		return nil, err
	}

	if err := s.milestones.UpdateStatusCAS(ctx, m.ID, models.MilestoneStatusPending, models.MilestoneStatusInProgress); err != nil {
		if err == repository.ErrStatusConflict {
			return t, apperror.New(apperror.ErrCodeInvalidState, "статус вехи изменился, повторите запрос")
		}
		return t, err
	}

	s.notifier.Notify(ctx, job.WorkerID, "milestone_funded",
		fmt.Sprintf("Веха %q оплачена, можно приступать", m.Title),
		map[string]interface{}{"milestone_id": m.ID, "transaction_id": t.ID})

	return t, nil
}

// Submit передаёт веху на приёмку клиенту.
func (s *MilestoneService) Submit(ctx context.Context, milestoneID, workerID uuid.UUID, notes *string) error {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return apperror.ErrMilestoneNotFound
	}
	job, err := s.jobs.GetByID(ctx, m.JobID)
	if err != nil {
		return err
	}
	if job.WorkerID != workerID {
		return apperror.ErrForbidden
	}

	if err := s.milestones.MarkSubmitted(ctx, m.ID, notes); err != nil {
		if err == repository.ErrStatusConflict {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("веха в статусе %q не может быть сдана", m.Status))
		}
		return err
	}

	s.appendMilestoneEvent(ctx, job.ID, m.ID, models.TimelineEventWorkSubmitted, &workerID, notes)

	s.notifier.Notify(ctx, job.ClientID, "milestone_submitted",
		fmt.Sprintf("Веха %q сдана на приёмку", m.Title),
		map[string]interface{}{"milestone_id": m.ID})

	return nil
}

// Approve принимает сданную веху: выплачивает её транзакцию, фиксирует
// оценку и завершает заказ, если принята последняя веха.
func (s *MilestoneService) Approve(ctx context.Context, milestoneID, clientID uuid.UUID, notes *string, rating *int) error {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return apperror.ErrMilestoneNotFound
	}
	job, err := s.jobs.GetByID(ctx, m.JobID)
	if err != nil {
		return err
	}
	if job.ClientID != clientID {
		return apperror.ErrForbidden
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return apperror.Validation("некорректная оценка", []string{"оценка должна быть от 1 до 5"})
	}
	if m.Status != models.MilestoneStatusSubmitted {
		return apperror.New(apperror.ErrCodeInvalidState,
			fmt.Sprintf("веха в статусе %q не может быть принята", m.Status))
	}

	t, err := s.escrows.GetActiveBySlot(ctx, job.ID, &m.ID)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInvalidState, "у вехи нет активной транзакции")
	}
	if _, err := s.ledger.Release(ctx, t.ID, clientID, fmt.Sprintf("веха %q принята", m.Title), false); err != nil {
		return err
	}

	if err := s.milestones.MarkApproved(ctx, m.ID, notes, rating); err != nil {
		if err == repository.ErrStatusConflict {
			return apperror.New(apperror.ErrCodeInvalidState, "статус вехи изменился, повторите запрос")
		}
		return err
	}

	// Транзакция вехи уже released, слотовый поиск её не найдёт:
	// событие пишется по сохранённому идентификатору.
	event := &models.TimelineEvent{
		TransactionID: t.ID,
		Type:          models.TimelineEventApproved,
		ActorID:       &clientID,
		Details:       notes,
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.log.WithError(err).WithField("milestone_id", m.ID).Error("не удалось записать событие таймлайна")
	}

	unapproved, err := s.milestones.CountUnapproved(ctx, job.ID)
	if err != nil {
		return err
	}
	if unapproved == 0 {
		if err := s.jobs.MarkCompleted(ctx, job.ID); err != nil {
			s.log.WithError(err).WithField("job_id", job.ID).Warn("не удалось завершить заказ")
		}
	}

	s.notifier.Notify(ctx, job.WorkerID, "milestone_approved",
		fmt.Sprintf("Веха %q принята, оплата переведена", m.Title),
		map[string]interface{}{"milestone_id": m.ID})

	return nil
}

// RequestRevision возвращает сданную веху на доработку.
func (s *MilestoneService) RequestRevision(ctx context.Context, milestoneID, clientID uuid.UUID, notes *string, extraHours *int) error {
	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return apperror.ErrMilestoneNotFound
	}
	job, err := s.jobs.GetByID(ctx, m.JobID)
	if err != nil {
		return err
	}
	if job.ClientID != clientID {
		return apperror.ErrForbidden
	}

	var newDueAt *time.Time
	if extraHours != nil && *extraHours > 0 {
		base := time.Now()
		if m.DueAt != nil {
			base = *m.DueAt
		}
		due := base.Add(time.Duration(*extraHours) * time.Hour)
		newDueAt = &due
	}

	if err := s.milestones.MarkRevision(ctx, m.ID, notes, newDueAt); err != nil {
		if err == repository.ErrStatusConflict {
			return apperror.New(apperror.ErrCodeInvalidState,
				fmt.Sprintf("веха в статусе %q не может быть возвращена на доработку", m.Status))
		}
		return err
	}

	s.notifier.Notify(ctx, job.WorkerID, "milestone_revision",
		fmt.Sprintf("Веха %q возвращена на доработку", m.Title),
		map[string]interface{}{"milestone_id": m.ID})

	return nil
}

// ListByJob возвращает вехи заказа.
func (s *MilestoneService) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Milestone, error) {
	return s.milestones.ListByJob(ctx, jobID)
}

// unmetDependencies возвращает названия непринятых вех-зависимостей.
func (s *MilestoneService) unmetDependencies(ctx context.Context, m *models.Milestone) ([]string, error) {
	if len(m.Dependencies) == 0 {
		return nil, nil
	}
	deps, err := s.milestones.ListBySequences(ctx, m.JobID, m.Dependencies)
	if err != nil {
		return nil, err
	}
	var unmet []string
	for _, dep := range deps {
		if dep.Status != models.MilestoneStatusApproved {
			unmet = append(unmet, fmt.Sprintf("%d: %s", dep.Sequence, dep.Title))
		}
	}
	return unmet, nil
}

// appendMilestoneEvent пишет событие вехи в таймлайн её транзакции.
func (s *MilestoneService) appendMilestoneEvent(ctx context.Context, jobID, milestoneID uuid.UUID, eventType string, actorID *uuid.UUID, details *string) {
	t, err := s.escrows.GetActiveBySlot(ctx, jobID, &milestoneID)
	if err != nil {
		// Веха может быть сдана до оплаты следующей: транзакции нет, событие пропускается.
		return
	}
	event := &models.TimelineEvent{
		TransactionID: t.ID,
		Type:          eventType,
		ActorID:       actorID,
		Details:       details,
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.log.WithError(err).WithField("milestone_id", milestoneID).Error("не удалось записать событие таймлайна")
	}
}
