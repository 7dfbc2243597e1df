package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var (
	ErrDisputeNotFound  = errors.New("dispute not found")
	ErrMediatorNotFound = errors.New("no mediator found")
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create сохраняет новый спор.
func (r *DisputeRepository) Create(ctx context.Context, d *models.DisputeCase) error {
	query := `
		INSERT INTO disputes
			(transaction_id, job_id, client_id, worker_id, initiator_id, type, status,
			 priority, title, description, amount_disputed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		d.TransactionID, d.JobID, d.ClientID, d.WorkerID, d.InitiatorID, d.Type,
		d.Status, d.Priority, d.Title, d.Description, d.AmountDisputed,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DisputeCase, error) {
	return common.GetByID[models.DisputeCase](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

// GetActiveByTransaction возвращает незавершённый спор по транзакции.
func (r *DisputeRepository) GetActiveByTransaction(ctx context.Context, transactionID uuid.UUID) (*models.DisputeCase, error) {
	var d models.DisputeCase
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes
		WHERE transaction_id = $1 AND status NOT IN ('resolved', 'closed')
		LIMIT 1
	`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: get active by transaction %w", err)
	}
	return &d, nil
}

// UpdateStatusCAS условно переводит спор из статуса from в to.
func (r *DisputeRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to string) error {
	return common.UpdateStatusCAS(ctx, r.db, "disputes", id, from, to)
}

// AssignMediator условно назначает медиатора и переводит спор в mediation.
func (r *DisputeRepository) AssignMediator(ctx context.Context, id, mediatorID uuid.UUID, from string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = 'mediation', mediator_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, mediatorID)
	if err != nil {
		return fmt.Errorf("dispute repository: assign mediator %w", err)
	}
	return requireAffected(res)
}

// MarkResolved условно закрывает спор с резолюцией.
func (r *DisputeRepository) MarkResolved(ctx context.Context, id uuid.UUID, from, resolutionType string, amount *float64, notes *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = 'resolved', resolution_type = $3, resolution_amount = $4,
		    resolution_notes = $5, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, resolutionType, amount, notes)
	if err != nil {
		return fmt.Errorf("dispute repository: mark resolved %w", err)
	}
	return requireAffected(res)
}

// ListByUser возвращает споры, где пользователь является стороной.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.DisputeCase, error) {
	var disputes []models.DisputeCase
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes
		WHERE client_id = $1 OR worker_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list by user %w", err)
	}
	return disputes, nil
}

// ListUnresolvedOlderThan возвращает споры в указанных статусах, заведённые
// раньше порогового времени. Используется обходом эскалации.
func (r *DisputeRepository) ListUnresolvedOlderThan(ctx context.Context, statuses []string, before time.Time, limit int) ([]models.DisputeCase, error) {
	query, args, err := sqlx.In(`
		SELECT * FROM disputes
		WHERE status IN (?) AND created_at < ?
		ORDER BY created_at LIMIT ?
	`, statuses, before, limit)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list unresolved %w", err)
	}

	var disputes []models.DisputeCase
	if err := r.db.SelectContext(ctx, &disputes, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("dispute repository: list unresolved %w", err)
	}
	return disputes, nil
}

// CountByUserSince считает споры стороны за период (для скоринга рисков).
func (r *DisputeRepository) CountByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM disputes
		WHERE (client_id = $1 OR worker_id = $1) AND created_at >= $2
	`, userID, since)
	if err != nil {
		return 0, fmt.Errorf("dispute repository: count by user %w", err)
	}
	return count, nil
}

// AvgResolutionHours возвращает среднее время резолюции споров в часах.
func (r *DisputeRepository) AvgResolutionHours(ctx context.Context) (float64, error) {
	var hours sql.NullFloat64
	err := r.db.GetContext(ctx, &hours, `
		SELECT AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600)
		FROM disputes WHERE resolved_at IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("dispute repository: avg resolution %w", err)
	}
	return hours.Float64, nil
}

// AddEvidence добавляет доказательство (append-only).
func (r *DisputeRepository) AddEvidence(ctx context.Context, e *models.DisputeEvidence) error {
	query := `
		INSERT INTO dispute_evidence (dispute_id, submitter_id, file_name, file_path, mime_type, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		e.DisputeID, e.SubmitterID, e.FileName, e.FilePath, e.MimeType, e.Description,
	).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("dispute repository: add evidence %w", err)
	}
	return nil
}

// ListEvidence возвращает доказательства спора.
func (r *DisputeRepository) ListEvidence(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeEvidence, error) {
	var evidence []models.DisputeEvidence
	err := r.db.SelectContext(ctx, &evidence, `
		SELECT * FROM dispute_evidence WHERE dispute_id = $1 ORDER BY created_at
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list evidence %w", err)
	}
	return evidence, nil
}

// AddMessage добавляет сообщение в переписку спора (append-only).
func (r *DisputeRepository) AddMessage(ctx context.Context, m *models.DisputeMessage) error {
	query := `
		INSERT INTO dispute_messages (dispute_id, sender_id, sender, body, counter_offer, is_agreement)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		m.DisputeID, m.SenderID, m.Sender, m.Body, m.CounterOffer, m.IsAgreement,
	).Scan(&m.ID, &m.CreatedAt); err != nil {
		return fmt.Errorf("dispute repository: add message %w", err)
	}
	return nil
}

// ListMessages возвращает переписку спора.
func (r *DisputeRepository) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	var messages []models.DisputeMessage
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM dispute_messages WHERE dispute_id = $1 ORDER BY created_at
	`, disputeID)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list messages %w", err)
	}
	return messages, nil
}

// HasRecentAgreement проверяет, отправила ли сторона сообщение-согласие
// за последние within.
func (r *DisputeRepository) HasRecentAgreement(ctx context.Context, disputeID, senderID uuid.UUID, within time.Duration) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM dispute_messages
		WHERE dispute_id = $1 AND sender_id = $2 AND is_agreement AND created_at >= $3
	`, disputeID, senderID, time.Now().Add(-within))
	if err != nil {
		return false, fmt.Errorf("dispute repository: recent agreement %w", err)
	}
	return count > 0, nil
}

// FindMediator подбирает активного медиатора: совпадение специализации,
// достаточная ёмкость по сумме спора, минимальная загрузка, максимальный рейтинг.
func (r *DisputeRepository) FindMediator(ctx context.Context, specialization string, caseValue float64) (*models.Mediator, error) {
	var m models.Mediator
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM mediators
		WHERE is_active
		  AND (specialization = $1 OR specialization = 'general')
		  AND max_case_value >= $2
		ORDER BY active_cases ASC, rating DESC
		LIMIT 1
	`, specialization, caseValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMediatorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: find mediator %w", err)
	}
	return &m, nil
}

// GetMediatorByID возвращает медиатора по идентификатору.
func (r *DisputeRepository) GetMediatorByID(ctx context.Context, id uuid.UUID) (*models.Mediator, error) {
	return common.GetByID[models.Mediator](ctx, r.db, "mediators", id, ErrMediatorNotFound)
}

// AdjustMediatorCaseload изменяет счётчик активных дел медиатора.
func (r *DisputeRepository) AdjustMediatorCaseload(ctx context.Context, mediatorID uuid.UUID, delta int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mediators SET active_cases = GREATEST(active_cases + $2, 0) WHERE id = $1
	`, mediatorID, delta)
	if err != nil {
		return fmt.Errorf("dispute repository: adjust caseload %w", err)
	}
	return nil
}

// CreateSession планирует сессию медиации.
func (r *DisputeRepository) CreateSession(ctx context.Context, s *models.MediationSession) error {
	query := `
		INSERT INTO mediation_sessions (dispute_id, mediator_id, scheduled_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		s.DisputeID, s.MediatorID, s.ScheduledAt, s.Status,
	).Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("dispute repository: create session %w", err)
	}
	return nil
}

// CancelSessions отменяет все запланированные сессии спора.
func (r *DisputeRepository) CancelSessions(ctx context.Context, disputeID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mediation_sessions SET status = 'cancelled'
		WHERE dispute_id = $1 AND status = 'scheduled'
	`, disputeID)
	if err != nil {
		return fmt.Errorf("dispute repository: cancel sessions %w", err)
	}
	return nil
}
