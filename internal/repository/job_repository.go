package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var ErrJobNotFound = errors.New("job not found")

// JobRepository даёт леджеру доступ к заказам для проверок участников
// и смены статуса при завершении/отмене.
type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// GetByID возвращает заказ по идентификатору.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return common.GetByID[models.Job](ctx, r.db, "jobs", id, ErrJobNotFound)
}

// MarkCompleted переводит заказ в completed, если он ещё не завершён.
func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
	`, id)
	if err != nil {
		return fmt.Errorf("job repository: mark completed %w", err)
	}
	return nil
}

// MarkCancelled переводит заказ в cancelled, если он ещё не завершён.
func (r *JobRepository) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
	`, id)
	if err != nil {
		return fmt.Errorf("job repository: mark cancelled %w", err)
	}
	return nil
}
