package entity

import (
	"time"

	"github.com/google/uuid"
)

// PasswordResetCode хранит хеш одноразового кода сброса пароля.
type PasswordResetCode struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Email        string     `gorm:"size:100;not null" json:"email"`
	CodeHash     string     `gorm:"size:64;not null" json:"-"`
	CodeSalt     string     `gorm:"size:64;not null" json:"-"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	AttemptCount int        `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts  int        `gorm:"not null;default:5" json:"max_attempts"`
	LastSentAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"last_sent_at"`
	ConsumedAt   *time.Time `gorm:"index" json:"consumed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PasswordResetCode) TableName() string {
	return "password_reset_codes"
}

func (c *PasswordResetCode) IsConsumed() bool {
	return c.ConsumedAt != nil
}

func (c *PasswordResetCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AttemptsExhausted сообщает, исчерпан ли лимит попыток ввода кода
func (c *PasswordResetCode) AttemptsExhausted() bool {
	return c.AttemptCount >= c.MaxAttempts
}
