package models

// Роли пользователей
const (
	RoleClient = "client"
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

// Тарифные уровни исполнителей
const (
	WorkerTierStandard = "standard"
	WorkerTierPremium  = "premium"
	WorkerTierElite    = "elite"
)

// JobStatus константы статусов заказов
const (
	JobStatusDraft             = "draft"
	JobStatusPublished         = "published"
	JobStatusAccepted          = "accepted"
	JobStatusInProgress        = "in_progress"
	JobStatusPendingCompletion = "pending_completion"
	JobStatusCompleted         = "completed"
	JobStatusCancelled         = "cancelled"
)

// JobType влияет на множитель дедлайнов
const (
	JobTypeStandard = "standard"
	JobTypeComplex  = "complex"
	JobTypeUrgent   = "urgent"
)

// EscrowEligibleJobStatuses статусы заказа, при которых можно открыть escrow.
var EscrowEligibleJobStatuses = map[string]struct{}{
	JobStatusAccepted:          {},
	JobStatusInProgress:        {},
	JobStatusPendingCompletion: {},
}

// CompletionEligibleJobStatuses статусы заказа, при которых допустимо освобождение средств.
var CompletionEligibleJobStatuses = map[string]struct{}{
	JobStatusInProgress:        {},
	JobStatusPendingCompletion: {},
	JobStatusCompleted:         {},
}

// ValidWorkerTiers список валидных тарифных уровней.
var ValidWorkerTiers = map[string]struct{}{
	WorkerTierStandard: {},
	WorkerTierPremium:  {},
	WorkerTierElite:    {},
}
