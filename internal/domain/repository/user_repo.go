package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/yourusername/survey-api/internal/domain/entity"
)

// UserRepository определяет методы для работы с пользователями
type UserRepository interface {
	// Create сохраняет пользователя. Занятый email или username возвращает apperrors.ErrConflict
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, newPassword string) error
	Delete(ctx context.Context, userID uuid.UUID) error
}
