package dto

import (
	"github.com/ignatzorin/escrow-backend/internal/models"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code,omitempty"`
	Details   []string `json:"details,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// EscrowResponse represents a transaction with non-blocking validation warnings
type EscrowResponse struct {
	*models.EscrowTransaction
	Warnings []string `json:"warnings,omitempty"`
}

// TimelineResponse represents a transaction's event history and derived phase
type TimelineResponse struct {
	TransactionID string                 `json:"transaction_id"`
	Phase         string                 `json:"phase"`
	Events        []models.TimelineEvent `json:"events"`
}

// PreviewResponse represents the outcome of a payment dry run
type PreviewResponse struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Fee           float64  `json:"fee"`
	WorkerNet     float64  `json:"worker_net"`
	EffectiveRate float64  `json:"effective_rate"`
}

// DisputeDetailResponse represents a dispute with its messages and evidence
type DisputeDetailResponse struct {
	*models.DisputeCase
	Messages []models.DisputeMessage  `json:"messages"`
	Evidence []models.DisputeEvidence `json:"evidence"`
}

// SweepReportResponse represents one manual scheduler pass
type SweepReportResponse struct {
	Reminders   int `json:"reminders"`
	Actions     int `json:"actions"`
	Escalations int `json:"escalations"`
	Alerts      int `json:"alerts"`
}

// UnreadCountResponse represents the number of unread notifications
type UnreadCountResponse struct {
	Count int `json:"count"`
}
