package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var ErrMilestoneNotFound = errors.New("milestone not found")

type MilestoneRepository struct {
	db *sqlx.DB
}

func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// CreateSet сохраняет пачку вех одной транзакцией.
// Либо сохраняются все вехи, либо ни одной.
func (r *MilestoneRepository) CreateSet(ctx context.Context, milestones []models.Milestone) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		inserter := common.NewBatchInserter(tx, `
			INSERT INTO milestones
				(id, job_id, sequence, title, description, amount, percentage, status, dependencies, due_at)
		`, 10, 50)

		for i := range milestones {
			m := &milestones[i]
			if err := inserter.Add(ctx,
				m.ID, m.JobID, m.Sequence, m.Title, m.Description,
				m.Amount, m.Percentage, m.Status, m.Dependencies, m.DueAt,
			); err != nil {
				return fmt.Errorf("milestone repository: create set %w", err)
			}
		}

		return inserter.Flush(ctx)
	})
}

// GetByID возвращает веху по идентификатору.
func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return common.GetByID[models.Milestone](ctx, r.db, "milestones", id, ErrMilestoneNotFound)
}

// ListByJob возвращает вехи заказа в порядке последовательности.
func (r *MilestoneRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones WHERE job_id = $1 ORDER BY sequence
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("milestone repository: list by job %w", err)
	}
	return milestones, nil
}

// ListBySequences возвращает вехи заказа с указанными номерами.
func (r *MilestoneRepository) ListBySequences(ctx context.Context, jobID uuid.UUID, sequences []int64) ([]models.Milestone, error) {
	if len(sequences) == 0 {
		return nil, nil
	}
	var milestones []models.Milestone
	err := r.db.SelectContext(ctx, &milestones, `
		SELECT * FROM milestones WHERE job_id = $1 AND sequence = ANY($2) ORDER BY sequence
	`, jobID, pq.Array(sequences))
	if err != nil {
		return nil, fmt.Errorf("milestone repository: list by sequences %w", err)
	}
	return milestones, nil
}

// UpdateStatusCAS условно переводит веху из статуса from в to.
func (r *MilestoneRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to string) error {
	return common.UpdateStatusCAS(ctx, r.db, "milestones", id, from, to)
}

// MarkSubmitted условно переводит веху в submitted с заметками исполнителя.
func (r *MilestoneRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, notes *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET status = 'submitted', worker_notes = COALESCE($2, worker_notes),
		    submitted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`, id, notes)
	if err != nil {
		return fmt.Errorf("milestone repository: mark submitted %w", err)
	}
	return requireAffected(res)
}

// MarkApproved условно переводит веху в approved.
// Веха после approved неизменяема.
func (r *MilestoneRepository) MarkApproved(ctx context.Context, id uuid.UUID, notes *string, rating *int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET status = 'approved', client_notes = COALESCE($2, client_notes),
		    rating = $3, approved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'submitted'
	`, id, notes, rating)
	if err != nil {
		return fmt.Errorf("milestone repository: mark approved %w", err)
	}
	return requireAffected(res)
}

// MarkRevision условно возвращает submitted веху в работу.
func (r *MilestoneRepository) MarkRevision(ctx context.Context, id uuid.UUID, notes *string, newDueAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET status = 'in_progress', client_notes = COALESCE($2, client_notes),
		    due_at = COALESCE($3, due_at), submitted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'submitted'
	`, id, notes, newDueAt)
	if err != nil {
		return fmt.Errorf("milestone repository: mark revision %w", err)
	}
	return requireAffected(res)
}

// CountUnapproved считает не approved вехи заказа.
func (r *MilestoneRepository) CountUnapproved(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM milestones WHERE job_id = $1 AND status <> 'approved'
	`, jobID)
	if err != nil {
		return 0, fmt.Errorf("milestone repository: count unapproved %w", err)
	}
	return count, nil
}
