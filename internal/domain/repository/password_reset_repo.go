package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/yourusername/survey-api/internal/domain/entity"
)

// PasswordResetRepository хранит одноразовые коды сброса пароля.
type PasswordResetRepository interface {
	Create(ctx context.Context, code *entity.PasswordResetCode) error
	GetLatestActiveByUserID(ctx context.Context, userID uuid.UUID) (*entity.PasswordResetCode, error)
	// IncrementAttempts атомарно списывает попытку; false, если списывать нечего.
	IncrementAttempts(ctx context.Context, id uint) (bool, error)
	// MarkConsumed атомарно помечает код использованным; false, если это уже сделано.
	MarkConsumed(ctx context.Context, id uint) (bool, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}
