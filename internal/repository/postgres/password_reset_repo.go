package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourusername/survey-api/internal/domain/entity"
	apperrors "github.com/yourusername/survey-api/internal/pkg/errors"
)

type PasswordResetRepo struct {
	db *gorm.DB
}

func NewPasswordResetRepo(db *gorm.DB) *PasswordResetRepo {
	return &PasswordResetRepo{db: db}
}

func (r *PasswordResetRepo) Create(ctx context.Context, code *entity.PasswordResetCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *PasswordResetRepo) GetLatestActiveByUserID(ctx context.Context, userID uuid.UUID) (*entity.PasswordResetCode, error) {
	var code entity.PasswordResetCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND consumed_at IS NULL", userID).
		Order("created_at DESC").
		Take(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest active reset code: %w", err)
	}
	return &code, nil
}

// IncrementAttempts списывает одну попытку ввода кода одним условным UPDATE.
// false означает, что попытки исчерпаны или код уже использован.
func (r *PasswordResetRepo) IncrementAttempts(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.PasswordResetCode{}).
		Where("id = ? AND consumed_at IS NULL AND attempt_count < max_attempts", id).
		Update("attempt_count", gorm.Expr("attempt_count + 1"))
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment reset attempts: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkConsumed помечает код использованным; false, если его уже использовали.
func (r *PasswordResetRepo) MarkConsumed(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.PasswordResetCode{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", time.Now())
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark reset code consumed: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *PasswordResetRepo) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&entity.PasswordResetCode{}).Error
}
