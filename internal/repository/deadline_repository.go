package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var ErrDeadlineNotFound = errors.New("deadline not found")

type DeadlineRepository struct {
	db *sqlx.DB
}

func NewDeadlineRepository(db *sqlx.DB) *DeadlineRepository {
	return &DeadlineRepository{db: db}
}

// CreateBatch сохраняет пачку дедлайнов транзакции одним запросом.
func (r *DeadlineRepository) CreateBatch(ctx context.Context, deadlines []models.Deadline) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		inserter := common.NewBatchInserter(tx, `
			INSERT INTO deadlines (id, transaction_id, type, due_at, status)
		`, 5, 50)

		for i := range deadlines {
			d := &deadlines[i]
			if err := inserter.Add(ctx, d.ID, d.TransactionID, d.Type, d.DueAt, d.Status); err != nil {
				return fmt.Errorf("deadline repository: create batch %w", err)
			}
		}

		return inserter.Flush(ctx)
	})
}

// GetByID возвращает дедлайн по идентификатору.
func (r *DeadlineRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deadline, error) {
	return common.GetByID[models.Deadline](ctx, r.db, "deadlines", id, ErrDeadlineNotFound)
}

// GetPendingByType возвращает pending дедлайн транзакции указанного типа.
func (r *DeadlineRepository) GetPendingByType(ctx context.Context, transactionID uuid.UUID, deadlineType string) (*models.Deadline, error) {
	var deadline models.Deadline
	err := r.db.GetContext(ctx, &deadline, `
		SELECT * FROM deadlines
		WHERE transaction_id = $1 AND type = $2 AND status = 'pending'
		LIMIT 1
	`, transactionID, deadlineType)
	if err != nil {
		return nil, ErrDeadlineNotFound
	}
	return &deadline, nil
}

// ListDueBefore возвращает pending дедлайны, истекающие до указанного времени.
func (r *DeadlineRepository) ListDueBefore(ctx context.Context, before time.Time, limit int) ([]models.Deadline, error) {
	var deadlines []models.Deadline
	err := r.db.SelectContext(ctx, &deadlines, `
		SELECT * FROM deadlines
		WHERE status = 'pending' AND due_at < $1
		ORDER BY due_at LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("deadline repository: list due %w", err)
	}
	return deadlines, nil
}

// MarkOverdue условно помечает pending дедлайн просроченным.
// CAS гарантирует, что из двух конкурентных обходов ровно один
// выполнит действие по дедлайну.
func (r *DeadlineRepository) MarkOverdue(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deadlines
		SET status = 'overdue', processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("deadline repository: mark overdue %w", err)
	}
	return requireAffected(res)
}

// MarkReminded условно помечает дедлайн как напомненный.
func (r *DeadlineRepository) MarkReminded(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deadlines
		SET reminder_sent = TRUE, escalation_level = escalation_level + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND NOT reminder_sent
	`, id)
	if err != nil {
		return fmt.Errorf("deadline repository: mark reminded %w", err)
	}
	return requireAffected(res)
}

// BumpEscalation увеличивает счётчик эскалаций просроченного дедлайна.
func (r *DeadlineRepository) BumpEscalation(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deadlines SET escalation_level = escalation_level + 1, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("deadline repository: bump escalation %w", err)
	}
	return nil
}

// CancelByTypes отменяет pending дедлайны транзакции указанных типов.
func (r *DeadlineRepository) CancelByTypes(ctx context.Context, transactionID uuid.UUID, types []string) error {
	if len(types) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE deadlines SET status = 'cancelled', updated_at = NOW()
		WHERE transaction_id = ? AND type IN (?) AND status = 'pending'
	`, transactionID, types)
	if err != nil {
		return fmt.Errorf("deadline repository: cancel by types %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deadline repository: cancel by types %w", err)
	}
	return nil
}

// CompleteAll помечает все pending дедлайны транзакции выполненными.
// Вызывается при терминальном событии (released/refunded).
func (r *DeadlineRepository) CompleteAll(ctx context.Context, transactionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deadlines SET status = 'completed', processed_at = NOW(), updated_at = NOW()
		WHERE transaction_id = $1 AND status = 'pending'
	`, transactionID)
	if err != nil {
		return fmt.Errorf("deadline repository: complete all %w", err)
	}
	return nil
}

// Extend переносит срок pending дедлайна, накапливает суммарное
// продление и сбрасывает напоминание.
func (r *DeadlineRepository) Extend(ctx context.Context, id uuid.UUID, newDueAt time.Time, extra time.Duration) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deadlines
		SET due_at = $2, extended_seconds = extended_seconds + $3,
		    reminder_sent = FALSE, escalation_level = 0, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, newDueAt, int64(extra.Seconds()))
	if err != nil {
		return fmt.Errorf("deadline repository: extend %w", err)
	}
	return requireAffected(res)
}

// CountOverdue считает просроченные дедлайны (для метрик монитора).
func (r *DeadlineRepository) CountOverdue(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM deadlines WHERE status = 'overdue'`)
	if err != nil {
		return 0, fmt.Errorf("deadline repository: count overdue %w", err)
	}
	return count, nil
}

// ListByTransaction возвращает все дедлайны транзакции.
func (r *DeadlineRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Deadline, error) {
	var deadlines []models.Deadline
	err := r.db.SelectContext(ctx, &deadlines, `
		SELECT * FROM deadlines WHERE transaction_id = $1 ORDER BY due_at
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("deadline repository: list by transaction %w", err)
	}
	return deadlines, nil
}
