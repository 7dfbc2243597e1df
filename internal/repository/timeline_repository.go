package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

// TimelineRepository хранит журнал событий транзакций (append-only).
type TimelineRepository struct {
	db *sqlx.DB
}

func NewTimelineRepository(db *sqlx.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// Append добавляет событие в журнал транзакции.
func (r *TimelineRepository) Append(ctx context.Context, e *models.TimelineEvent) error {
	query := `
		INSERT INTO timeline_events (transaction_id, type, actor_id, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		e.TransactionID, e.Type, e.ActorID, e.Details,
	).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("timeline repository: append %w", err)
	}
	return nil
}

// ListByTransaction возвращает события транзакции в хронологическом порядке.
func (r *TimelineRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.TimelineEvent, error) {
	var events []models.TimelineEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM timeline_events WHERE transaction_id = $1 ORDER BY created_at
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("timeline repository: list by transaction %w", err)
	}
	return events, nil
}
