package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы споров
const (
	DisputeStatusOpen          = "open"
	DisputeStatusInvestigating = "investigating"
	DisputeStatusMediation     = "mediation"
	DisputeStatusArbitration   = "arbitration"
	DisputeStatusResolved      = "resolved"
	DisputeStatusClosed        = "closed"
)

// Типы споров
const (
	DisputeTypeQuality       = "quality"
	DisputeTypeTimeline      = "timeline"
	DisputeTypePayment       = "payment"
	DisputeTypeRequirements  = "requirements"
	DisputeTypeCommunication = "communication"
	DisputeTypeOther         = "other"
)

// Приоритеты споров
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Типы резолюций
const (
	ResolutionFullRefund     = "full_refund"
	ResolutionPartialRefund  = "partial_refund"
	ResolutionFullRelease    = "full_release"
	ResolutionPartialRelease = "partial_release"
	ResolutionSplit          = "split"
)

// Отправитель системных сообщений в споре.
const SystemSender = "system"

// DisputeTransitions таблица допустимых переходов статусов споров.
var DisputeTransitions = map[string][]string{
	DisputeStatusOpen:          {DisputeStatusInvestigating, DisputeStatusMediation, DisputeStatusResolved, DisputeStatusClosed},
	DisputeStatusInvestigating: {DisputeStatusMediation, DisputeStatusResolved, DisputeStatusClosed},
	DisputeStatusMediation:     {DisputeStatusArbitration, DisputeStatusResolved, DisputeStatusClosed},
	DisputeStatusArbitration:   {DisputeStatusResolved, DisputeStatusClosed},
}

// CanTransitionDispute проверяет допустимость перехода статуса спора.
func CanTransitionDispute(from, to string) bool {
	for _, next := range DisputeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalDisputeStatus сообщает, завершён ли спор.
func IsTerminalDisputeStatus(status string) bool {
	return status == DisputeStatusResolved || status == DisputeStatusClosed
}

// ValidDisputeTypes список валидных типов споров.
var ValidDisputeTypes = map[string]struct{}{
	DisputeTypeQuality:       {},
	DisputeTypeTimeline:      {},
	DisputeTypePayment:       {},
	DisputeTypeRequirements:  {},
	DisputeTypeCommunication: {},
	DisputeTypeOther:         {},
}

// DisputeCase представляет формальное разногласие по одной escrow транзакции.
// На транзакцию одновременно может существовать не более одного
// незавершённого спора.
type DisputeCase struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	TransactionID    uuid.UUID  `db:"transaction_id" json:"transaction_id"`
	JobID            uuid.UUID  `db:"job_id" json:"job_id"`
	ClientID         uuid.UUID  `db:"client_id" json:"client_id"`
	WorkerID         uuid.UUID  `db:"worker_id" json:"worker_id"`
	InitiatorID      uuid.UUID  `db:"initiator_id" json:"initiator_id"`
	Type             string     `db:"type" json:"type"`
	Status           string     `db:"status" json:"status"`
	Priority         string     `db:"priority" json:"priority"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description"`
	AmountDisputed   float64    `db:"amount_disputed" json:"amount_disputed"`
	ResolutionType   *string    `db:"resolution_type" json:"resolution_type,omitempty"`
	ResolutionAmount *float64   `db:"resolution_amount" json:"resolution_amount,omitempty"`
	ResolutionNotes  *string    `db:"resolution_notes" json:"resolution_notes,omitempty"`
	MediatorID       *uuid.UUID `db:"mediator_id" json:"mediator_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	ResolvedAt       *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// DisputeEvidence неизменяемое доказательство, приложенное к спору.
type DisputeEvidence struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DisputeID   uuid.UUID `db:"dispute_id" json:"dispute_id"`
	SubmitterID uuid.UUID `db:"submitter_id" json:"submitter_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	FilePath    string    `db:"file_path" json:"file_path"`
	MimeType    *string   `db:"mime_type" json:"mime_type,omitempty"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DisputeMessage сообщение в переписке спора (append-only журнал).
// SenderID равен uuid.Nil и Sender равен "system" для автоматических уведомлений.
type DisputeMessage struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DisputeID    uuid.UUID `db:"dispute_id" json:"dispute_id"`
	SenderID     uuid.UUID `db:"sender_id" json:"sender_id"`
	Sender       string    `db:"sender" json:"sender"`
	Body         string    `db:"body" json:"body"`
	CounterOffer *float64  `db:"counter_offer" json:"counter_offer,omitempty"`
	IsAgreement  bool      `db:"is_agreement" json:"is_agreement"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Mediator представляет медиатора платформы.
type Mediator struct {
	ID             uuid.UUID `db:"id" json:"id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	Specialization string    `db:"specialization" json:"specialization"`
	MaxCaseValue   float64   `db:"max_case_value" json:"max_case_value"`
	ActiveCases    int       `db:"active_cases" json:"active_cases"`
	Rating         float64   `db:"rating" json:"rating"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Статусы сессий медиации
const (
	SessionStatusScheduled = "scheduled"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

// MediationSession запланированная сессия медиации по спору.
type MediationSession struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DisputeID   uuid.UUID `db:"dispute_id" json:"dispute_id"`
	MediatorID  uuid.UUID `db:"mediator_id" json:"mediator_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
