package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы алертов мониторинга
const (
	AlertTypeDeadlineApproaching = "deadline_approaching"
	AlertTypeDeadlineOverdue     = "deadline_overdue"
	AlertTypeHighRisk            = "high_risk_transaction"
	AlertTypeSuspiciousActivity  = "suspicious_activity"
	AlertTypeProcessorFailures   = "processor_failure_spike"
)

// Уровни серьёзности алертов
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert результат работы монитора рисков. TransactionID равен uuid.Nil для
// находок уровня аккаунта. Разрешение алерта только аннотирует запись.
type Alert struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TransactionID uuid.UUID       `db:"transaction_id" json:"transaction_id"`
	Type          string          `db:"type" json:"type"`
	Severity      string          `db:"severity" json:"severity"`
	Message       string          `db:"message" json:"message"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	TriggeredAt   time.Time       `db:"triggered_at" json:"triggered_at"`
	ResolvedAt    *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

// SystemMetrics агрегированные показатели по активным транзакциям.
type SystemMetrics struct {
	ActiveTransactions   int       `json:"active_transactions"`
	OverdueDeadlines     int       `json:"overdue_deadlines"`
	DisputedTransactions int       `json:"disputed_transactions"`
	AvgResolutionHours   float64   `json:"avg_resolution_hours"`
	SuccessRate          float64   `json:"success_rate"`
	Recommendations      []string  `json:"recommendations"`
	CollectedAt          time.Time `json:"collected_at"`
}
