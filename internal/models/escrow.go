package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы escrow транзакций
const (
	EscrowStatusPending           = "pending"
	EscrowStatusHeld              = "held"
	EscrowStatusReleased          = "released"
	EscrowStatusRefunded          = "refunded"
	EscrowStatusPartiallyRefunded = "partially_refunded"
	EscrowStatusDisputed          = "disputed"
	EscrowStatusExpired           = "expired"
)

// EscrowTransitions таблица допустимых переходов статусов escrow.
// Все проверки переходов идут через CanTransitionEscrow, а не через
// разрозненные сравнения строк.
var EscrowTransitions = map[string][]string{
	EscrowStatusPending:  {EscrowStatusHeld, EscrowStatusDisputed, EscrowStatusExpired},
	EscrowStatusHeld:     {EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusPartiallyRefunded, EscrowStatusDisputed, EscrowStatusExpired},
	EscrowStatusDisputed: {EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusPartiallyRefunded},
}

// CanTransitionEscrow проверяет допустимость перехода статуса escrow.
func CanTransitionEscrow(from, to string) bool {
	for _, next := range EscrowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalEscrowStatus сообщает, является ли статус терминальным.
// Терминальные записи не удаляются и хранятся для аудита.
func IsTerminalEscrowStatus(status string) bool {
	switch status {
	case EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusPartiallyRefunded, EscrowStatusExpired:
		return true
	}
	return false
}

// EscrowTransaction представляет удержание средств клиента по заказу
// (или по отдельной вехе заказа).
type EscrowTransaction struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	JobID            uuid.UUID  `db:"job_id" json:"job_id"`
	ClientID         uuid.UUID  `db:"client_id" json:"client_id"`
	WorkerID         uuid.UUID  `db:"worker_id" json:"worker_id"`
	MilestoneID      *uuid.UUID `db:"milestone_id" json:"milestone_id,omitempty"`
	GrossAmount      float64    `db:"gross_amount" json:"gross_amount"`
	PlatformFee      float64    `db:"platform_fee" json:"platform_fee"`
	WorkerNetAmount  float64    `db:"worker_net_amount" json:"worker_net_amount"`
	RefundedAmount   float64    `db:"refunded_amount" json:"refunded_amount"`
	PaymentReference *string    `db:"payment_reference" json:"payment_reference,omitempty"`
	Status           string     `db:"status" json:"status"`
	DeadlineAt       *time.Time `db:"deadline_at" json:"deadline_at,omitempty"`
	DisputeReason    *string    `db:"dispute_reason" json:"dispute_reason,omitempty"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// ProcessorFailure фиксирует неудачный вызов платёжного провайдера.
// Записи используются монитором рисков для детекции всплесков сбоев.
type ProcessorFailure struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TransactionID uuid.UUID `db:"transaction_id" json:"transaction_id"`
	Operation     string    `db:"operation" json:"operation"`
	Reason        string    `db:"reason" json:"reason"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
