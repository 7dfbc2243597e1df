package dto

import "github.com/ignatzorin/escrow-backend/internal/models"

// LoginRequest represents the request to authenticate a user
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents the request to rotate a token pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateEscrowRequest represents the request to open an escrow transaction
type CreateEscrowRequest struct {
	JobID         string  `json:"job_id" binding:"required"`
	WorkerID      string  `json:"worker_id" binding:"required"`
	Amount        float64 `json:"amount" binding:"required"`
	MilestoneID   *string `json:"milestone_id"`
	PaymentMethod string  `json:"payment_method"`
	Notes         *string `json:"notes"`
}

// PreviewEscrowRequest represents the request to validate a payment
// and compute its fee without creating anything
type PreviewEscrowRequest struct {
	JobID       string  `json:"job_id" binding:"required"`
	WorkerID    string  `json:"worker_id" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	MilestoneID *string `json:"milestone_id"`
}

// ReleaseEscrowRequest represents the request to release held funds
type ReleaseEscrowRequest struct {
	Reason string `json:"reason"`
}

// RefundEscrowRequest represents the request to refund held funds,
// fully or partially
type RefundEscrowRequest struct {
	Reason        string   `json:"reason"`
	PartialAmount *float64 `json:"partial_amount"`
}

// CreateMilestoneSetRequest represents the request to split a job
// budget into milestones
type CreateMilestoneSetRequest struct {
	TotalAmount float64                        `json:"total_amount" binding:"required"`
	Milestones  []models.MilestoneTemplateItem `json:"milestones"`
}

// PayMilestoneRequest represents the request to fund a milestone
type PayMilestoneRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// SubmitMilestoneRequest represents the request to submit milestone work
type SubmitMilestoneRequest struct {
	Notes *string `json:"notes"`
}

// ApproveMilestoneRequest represents the request to approve milestone work
type ApproveMilestoneRequest struct {
	Notes  *string `json:"notes"`
	Rating *int    `json:"rating"`
}

// RevisionMilestoneRequest represents the request to send work back for revision
type RevisionMilestoneRequest struct {
	Notes      *string `json:"notes"`
	ExtraHours *int    `json:"extra_hours"`
}

// FileDisputeRequest represents the request to open a dispute
type FileDisputeRequest struct {
	TransactionID  string  `json:"transaction_id" binding:"required"`
	Type           string  `json:"type" binding:"required"`
	Title          string  `json:"title" binding:"required"`
	Description    string  `json:"description" binding:"required"`
	AmountDisputed float64 `json:"amount_disputed" binding:"required"`
}

// RespondDisputeRequest represents a party's message in a dispute
type RespondDisputeRequest struct {
	Message      string   `json:"message" binding:"required"`
	CounterOffer *float64 `json:"counter_offer"`
	IsAgreement  bool     `json:"is_agreement"`
}

// EscalateDisputeRequest represents the request to hand a dispute to a mediator
type EscalateDisputeRequest struct {
	Reason string `json:"reason"`
}

// ResolveDisputeRequest represents the request to close a dispute
// with a financial outcome
type ResolveDisputeRequest struct {
	ResolutionType string   `json:"resolution_type" binding:"required"`
	Amount         *float64 `json:"amount"`
	Notes          string   `json:"notes"`
}

// ExtendDeadlineRequest represents the request to push a deadline back
type ExtendDeadlineRequest struct {
	ExtraHours int    `json:"extra_hours" binding:"required"`
	Reason     string `json:"reason"`
}
