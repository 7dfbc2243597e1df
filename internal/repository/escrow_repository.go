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
	ErrTransactionNotFound = errors.New("escrow transaction not found")
	// ErrStatusConflict пробрасывается из common: условное обновление не прошло.
	ErrStatusConflict = common.ErrStatusConflict
)

type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// Create сохраняет новую escrow транзакцию.
func (r *EscrowRepository) Create(ctx context.Context, t *models.EscrowTransaction) error {
	query := `
		INSERT INTO escrow_transactions
			(job_id, client_id, worker_id, milestone_id, gross_amount, platform_fee,
			 worker_net_amount, payment_reference, status, deadline_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		t.JobID, t.ClientID, t.WorkerID, t.MilestoneID, t.GrossAmount, t.PlatformFee,
		t.WorkerNetAmount, t.PaymentReference, t.Status, t.DeadlineAt, t.Notes,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("escrow repository: create %w", err)
	}
	return nil
}

// GetByID возвращает транзакцию по идентификатору.
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return common.GetByID[models.EscrowTransaction](ctx, r.db, "escrow_transactions", id, ErrTransactionNotFound)
}

// GetActiveBySlot ищет pending/held транзакцию на слоте (job, milestone).
// Для транзакций без вехи milestoneID равен nil.
func (r *EscrowRepository) GetActiveBySlot(ctx context.Context, jobID uuid.UUID, milestoneID *uuid.UUID) (*models.EscrowTransaction, error) {
	var t models.EscrowTransaction
	query := `
		SELECT * FROM escrow_transactions
		WHERE job_id = $1
		  AND milestone_id IS NOT DISTINCT FROM $2
		  AND status IN ('pending', 'held')
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &t, query, jobID, milestoneID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("escrow repository: get active by slot %w", err)
	}
	return &t, nil
}

// UpdateStatusCAS условно переводит транзакцию из статуса from в to.
func (r *EscrowRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to string) error {
	return common.UpdateStatusCAS(ctx, r.db, "escrow_transactions", id, from, to)
}

// MarkDisputed условно переводит held транзакцию в disputed с указанием причины.
func (r *EscrowRepository) MarkDisputed(ctx context.Context, id uuid.UUID, from, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET status = 'disputed', dispute_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, reason)
	if err != nil {
		return fmt.Errorf("escrow repository: mark disputed %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkRefunded условно закрывает транзакцию возвратом (полным или частичным).
func (r *EscrowRepository) MarkRefunded(ctx context.Context, id uuid.UUID, from, to string, refundedAmount float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escrow_transactions
		SET status = $3, refunded_amount = refunded_amount + $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to, refundedAmount)
	if err != nil {
		return fmt.Errorf("escrow repository: mark refunded %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// SetPaymentReference сохраняет ссылку на платёж у провайдера.
func (r *EscrowRepository) SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE escrow_transactions SET payment_reference = $2, updated_at = NOW() WHERE id = $1
	`, id, reference)
	if err != nil {
		return fmt.Errorf("escrow repository: set payment reference %w", err)
	}
	return nil
}

// ListByUser возвращает транзакции, где пользователь является стороной.
func (r *EscrowRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error) {
	var txs []models.EscrowTransaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM escrow_transactions
		WHERE client_id = $1 OR worker_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: list by user %w", err)
	}
	return txs, nil
}

// ListByStatus возвращает транзакции в указанном статусе (для обходов).
func (r *EscrowRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.EscrowTransaction, error) {
	var txs []models.EscrowTransaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT * FROM escrow_transactions WHERE status = $1 ORDER BY created_at LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: list by status %w", err)
	}
	return txs, nil
}

// CountReleasedByClientSince считает released транзакции клиента с указанного момента.
// Используется леджером для скидки постоянным клиентам.
func (r *EscrowRepository) CountReleasedByClientSince(ctx context.Context, clientID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM escrow_transactions
		WHERE client_id = $1 AND status = 'released' AND updated_at >= $2
	`, clientID, since)
	if err != nil {
		return 0, fmt.Errorf("escrow repository: count released %w", err)
	}
	return count, nil
}

// CountByClientSince считает транзакции клиента, созданные с указанного момента.
func (r *EscrowRepository) CountByClientSince(ctx context.Context, clientID uuid.UUID, since time.Time) (int, float64, error) {
	var row struct {
		Count int     `db:"count"`
		Total float64 `db:"total"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS count, COALESCE(SUM(gross_amount), 0) AS total
		FROM escrow_transactions
		WHERE client_id = $1 AND created_at >= $2
	`, clientID, since)
	if err != nil {
		return 0, 0, fmt.Errorf("escrow repository: count by client %w", err)
	}
	return row.Count, row.Total, nil
}

// CountRefundsByWorkerSince считает возвраты по транзакциям исполнителя.
func (r *EscrowRepository) CountRefundsByWorkerSince(ctx context.Context, workerID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM escrow_transactions
		WHERE worker_id = $1
		  AND status IN ('refunded', 'partially_refunded')
		  AND updated_at >= $2
	`, workerID, since)
	if err != nil {
		return 0, fmt.Errorf("escrow repository: count refunds by worker %w", err)
	}
	return count, nil
}

// RecordProcessorFailure фиксирует неудачный вызов платёжного провайдера.
func (r *EscrowRepository) RecordProcessorFailure(ctx context.Context, f *models.ProcessorFailure) error {
	query := `
		INSERT INTO processor_failures (transaction_id, operation, reason)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query, f.TransactionID, f.Operation, f.Reason).
		Scan(&f.ID, &f.CreatedAt); err != nil {
		return fmt.Errorf("escrow repository: record processor failure %w", err)
	}
	return nil
}

// CountProcessorFailuresSince считает сбои провайдера с указанного момента.
func (r *EscrowRepository) CountProcessorFailuresSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM processor_failures WHERE created_at >= $1
	`, since)
	if err != nil {
		return 0, fmt.Errorf("escrow repository: count processor failures %w", err)
	}
	return count, nil
}

// Metrics собирает агрегированные показатели для монитора.
func (r *EscrowRepository) Metrics(ctx context.Context) (active, disputed, released, refunded int, err error) {
	var row struct {
		Active   int `db:"active"`
		Disputed int `db:"disputed"`
		Released int `db:"released"`
		Refunded int `db:"refunded"`
	}
	err = r.db.GetContext(ctx, &row, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'held')) AS active,
			COUNT(*) FILTER (WHERE status = 'disputed') AS disputed,
			COUNT(*) FILTER (WHERE status = 'released') AS released,
			COUNT(*) FILTER (WHERE status IN ('refunded', 'partially_refunded')) AS refunded
		FROM escrow_transactions
	`)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("escrow repository: metrics %w", err)
	}
	return row.Active, row.Disputed, row.Released, row.Refunded, nil
}
