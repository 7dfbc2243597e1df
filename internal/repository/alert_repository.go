package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

var ErrAlertNotFound = errors.New("alert not found")

type AlertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create сохраняет новый алерт.
func (r *AlertRepository) Create(ctx context.Context, a *models.Alert) error {
	query := `
		INSERT INTO alerts (transaction_id, type, severity, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, triggered_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		a.TransactionID, a.Type, a.Severity, a.Message, a.Metadata,
	).Scan(&a.ID, &a.TriggeredAt); err != nil {
		return fmt.Errorf("alert repository: create %w", err)
	}
	return nil
}

// HasRecentSimilar проверяет наличие свежего алерта того же типа по транзакции.
// Используется для дедупликации повторяющихся находок.
func (r *AlertRepository) HasRecentSimilar(ctx context.Context, transactionID uuid.UUID, alertType string, within time.Duration) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM alerts
		WHERE transaction_id = $1 AND type = $2 AND triggered_at >= $3
	`, transactionID, alertType, time.Now().Add(-within))
	if err != nil {
		return false, fmt.Errorf("alert repository: has recent similar %w", err)
	}
	return count > 0, nil
}

// ListUnresolved возвращает неразрешённые алерты, свежие сверху.
func (r *AlertRepository) ListUnresolved(ctx context.Context, limit, offset int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.SelectContext(ctx, &alerts, `
		SELECT * FROM alerts WHERE resolved_at IS NULL
		ORDER BY triggered_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("alert repository: list unresolved %w", err)
	}
	return alerts, nil
}

// Resolve аннотирует алерт временем разрешения. Запись не удаляется.
func (r *AlertRepository) Resolve(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET resolved_at = NOW() WHERE id = $1 AND resolved_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("alert repository: resolve %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ListAdmins возвращает идентификаторы активных администраторов для
// немедленной доставки critical алертов.
func (r *AlertRepository) ListAdmins(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM users WHERE role = 'admin' AND is_active
	`)
	if err != nil {
		return nil, fmt.Errorf("alert repository: list admins %w", err)
	}
	return ids, nil
}
