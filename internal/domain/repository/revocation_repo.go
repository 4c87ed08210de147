package repository

import (
	"context"
	"time"
)

// RevocationRepository хранит границы отзыва токенов (таблица token_blacklist).
// Удовлетворяет auth.RevocationStore.
type RevocationRepository interface {
	// GetValidAfter возвращает границу отзыва; found == false, если записи нет
	GetValidAfter(ctx context.Context, userID string) (validAfter time.Time, found bool, err error)

	// UpsertValidAfter создает или перезаписывает границу одним атомарным запросом
	UpsertValidAfter(ctx context.Context, userID string, validAfter time.Time) error

	// DeleteForUser удаляет запись. Используется только при удалении аккаунта
	DeleteForUser(ctx context.Context, userID string) error
}
