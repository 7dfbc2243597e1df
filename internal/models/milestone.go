package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Статусы вех
const (
	MilestoneStatusPending    = "pending"
	MilestoneStatusInProgress = "in_progress"
	MilestoneStatusSubmitted  = "submitted"
	MilestoneStatusApproved   = "approved"
)

// MilestoneTransitions таблица допустимых переходов статусов вех.
var MilestoneTransitions = map[string][]string{
	MilestoneStatusPending:    {MilestoneStatusInProgress},
	MilestoneStatusInProgress: {MilestoneStatusSubmitted},
	// Возврат на доработку откатывает submitted обратно в in_progress.
	MilestoneStatusSubmitted: {MilestoneStatusApproved, MilestoneStatusInProgress},
}

// CanTransitionMilestone проверяет допустимость перехода статуса вехи.
func CanTransitionMilestone(from, to string) bool {
	for _, next := range MilestoneTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Milestone представляет именованную долю общей оплаты заказа.
// Веха не может перейти в in_progress, пока все её зависимости не approved.
type Milestone struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	JobID        uuid.UUID     `db:"job_id" json:"job_id"`
	Sequence     int           `db:"sequence" json:"sequence"`
	Title        string        `db:"title" json:"title"`
	Description  *string       `db:"description" json:"description,omitempty"`
	Amount       float64       `db:"amount" json:"amount"`
	Percentage   float64       `db:"percentage" json:"percentage"`
	Status       string        `db:"status" json:"status"`
	Dependencies pq.Int64Array `db:"dependencies" json:"dependencies"`
	Rating       *int          `db:"rating" json:"rating,omitempty"`
	DueAt        *time.Time    `db:"due_at" json:"due_at,omitempty"`
	WorkerNotes  *string       `db:"worker_notes" json:"worker_notes,omitempty"`
	ClientNotes  *string       `db:"client_notes" json:"client_notes,omitempty"`
	SubmittedAt  *time.Time    `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt   *time.Time    `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// MilestoneTemplateItem описывает одну веху в шаблоне разбивки оплаты.
type MilestoneTemplateItem struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Percentage   float64 `json:"percentage"`
	Dependencies []int64 `json:"dependencies"`
}
