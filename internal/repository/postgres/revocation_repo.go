package postgres

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourusername/survey-api/internal/domain/entity"
)

// RevocationRepo реализует repository.RevocationRepository поверх таблицы token_blacklist
type RevocationRepo struct {
	db *gorm.DB
}

// NewRevocationRepo создает новый репозиторий границ отзыва
func NewRevocationRepo(db *gorm.DB) *RevocationRepo {
	return &RevocationRepo{db: db}
}

// GetValidAfter возвращает границу отзыва пользователя
func (r *RevocationRepo) GetValidAfter(ctx context.Context, userID string) (time.Time, bool, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		// Такой пользователь не мог быть отозван
		return time.Time{}, false, nil
	}

	var rec entity.TokenRevocation
	result := r.db.WithContext(ctx).
		Raw("SELECT user_id, valid_after, updated_at FROM token_blacklist WHERE user_id = ?", id).
		Scan(&rec)
	if result.Error != nil {
		return time.Time{}, false, fmt.Errorf("get valid_after for user %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return time.Time{}, false, nil
	}
	return rec.ValidAfter, true, nil
}

// UpsertValidAfter создает или обновляет границу отзыва одним запросом.
// Граница только растет: повторный отзыв с более ранним временем ее не сдвигает назад.
func (r *RevocationRepo) UpsertValidAfter(ctx context.Context, userID string, validAfter time.Time) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	err = r.db.WithContext(ctx).Exec(`
		INSERT INTO token_blacklist (user_id, valid_after, updated_at)
		VALUES (?, ?, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET valid_after = GREATEST(token_blacklist.valid_after, EXCLUDED.valid_after),
		              updated_at = NOW()
	`, id, validAfter.UTC()).Error
	if err != nil {
		log.Printf("[RevocationRepo] Ошибка при обновлении token_blacklist для пользователя ID=%s: %v", userID, err)
		return err
	}
	return nil
}

// DeleteForUser удаляет запись об отзыве. Вызывается только при удалении аккаунта
func (r *RevocationRepo) DeleteForUser(ctx context.Context, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	result := r.db.WithContext(ctx).Exec("DELETE FROM token_blacklist WHERE user_id = ?", id)
	if result.Error != nil {
		log.Printf("[RevocationRepo] Ошибка при удалении записи token_blacklist для пользователя ID=%s: %v", userID, result.Error)
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[RevocationRepo] Удалена запись token_blacklist для пользователя ID=%s", userID)
	}
	return nil
}
