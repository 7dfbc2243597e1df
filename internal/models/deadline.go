package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы дедлайнов
const (
	DeadlineTypeApproval          = "approval"
	DeadlineTypeAutoRelease       = "auto_release"
	DeadlineTypeDisputeResolution = "dispute_resolution"
	DeadlineTypeRefund            = "refund"
	DeadlineTypeCustom            = "custom"
)

// Статусы дедлайнов
const (
	DeadlineStatusPending   = "pending"
	DeadlineStatusCompleted = "completed"
	DeadlineStatusOverdue   = "overdue"
	DeadlineStatusCancelled = "cancelled"
)

// Deadline запланированная точка времени, привязанная к escrow транзакции.
// Пачка дедлайнов создаётся при открытии транзакции; периодический обход
// помечает просроченные и выполняет действие, соответствующее типу.
type Deadline struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	TransactionID   uuid.UUID  `db:"transaction_id" json:"transaction_id"`
	Type            string     `db:"type" json:"type"`
	DueAt           time.Time  `db:"due_at" json:"due_at"`
	Status          string     `db:"status" json:"status"`
	ReminderSent    bool       `db:"reminder_sent" json:"reminder_sent"`
	EscalationLevel int        `db:"escalation_level" json:"escalation_level"`
	ExtendedSeconds int64      `db:"extended_seconds" json:"extended_seconds"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// Типы событий таймлайна транзакции
const (
	TimelineEventCreated          = "created"
	TimelineEventPaymentConfirmed = "payment_confirmed"
	TimelineEventWorkSubmitted    = "work_submitted"
	TimelineEventApproved         = "approved"
	TimelineEventReleased         = "released"
	TimelineEventDisputed         = "disputed"
	TimelineEventRefunded         = "refunded"
	TimelineEventExpired          = "expired"
)

// TimelineEvent запись аудиторского журнала по транзакции (append-only).
type TimelineEvent struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TransactionID uuid.UUID  `db:"transaction_id" json:"transaction_id"`
	Type          string     `db:"type" json:"type"`
	ActorID       *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	Details       *string    `db:"details" json:"details,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// PhaseFromTimeline выводит текущую фазу транзакции из последнего события таймлайна.
func PhaseFromTimeline(events []TimelineEvent) string {
	if len(events) == 0 {
		return "unknown"
	}
	last := events[len(events)-1]
	switch last.Type {
	case TimelineEventCreated, TimelineEventPaymentConfirmed:
		return "funded"
	case TimelineEventWorkSubmitted:
		return "review"
	case TimelineEventApproved:
		return "approved"
	case TimelineEventDisputed:
		return "disputed"
	case TimelineEventReleased, TimelineEventRefunded, TimelineEventExpired:
		return "closed"
	}
	return "unknown"
}
