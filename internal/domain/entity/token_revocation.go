package entity

import (
	"time"

	"github.com/google/uuid"
)

// TokenRevocation граница отзыва токенов пользователя.
// Токены с iat раньше ValidAfter считаются невалидными. На пользователя не больше одной записи.
type TokenRevocation struct {
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ValidAfter time.Time `gorm:"not null" json:"valid_after"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

// TableName задает имя таблицы для GORM
func (TokenRevocation) TableName() string {
	return "token_blacklist"
}
