package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User описывает сущность пользователя платформы.
type User struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Email                string     `db:"email" json:"email"`
	Username             string     `db:"username" json:"username"`
	PasswordHash         string     `db:"password_hash" json:"-"`
	Role                 string     `db:"role" json:"role"`
	Tier                 string     `db:"tier" json:"tier"`
	IsActive             bool       `db:"is_active" json:"is_active"`
	HasDefaultPayMethod  bool       `db:"has_default_pay_method" json:"has_default_pay_method"`
	LastLoginAt          *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Notification представляет уведомление пользователя.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
