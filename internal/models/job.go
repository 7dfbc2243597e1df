package models

import (
	"time"

	"github.com/google/uuid"
)

// Job описывает заказ, по которому открывается escrow.
// Создание и просмотр заказов живут вне этого сервиса; здесь заказ нужен
// для проверок участников и статуса при операциях с деньгами.
type Job struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ClientID  uuid.UUID `db:"client_id" json:"client_id"`
	WorkerID  uuid.UUID `db:"worker_id" json:"worker_id"`
	Title     string    `db:"title" json:"title"`
	Category  string    `db:"category" json:"category"`
	Type      string    `db:"type" json:"type"`
	Budget    float64   `db:"budget" json:"budget"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DeadlineMultiplier возвращает множитель сроков для типа заказа.
func (j *Job) DeadlineMultiplier() float64 {
	switch j.Type {
	case JobTypeComplex:
		return 1.5
	case JobTypeUrgent:
		return 0.5
	}
	return 1.0
}
