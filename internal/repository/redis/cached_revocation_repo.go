package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/survey-api/internal/domain/repository"
	apperrors "github.com/yourusername/survey-api/internal/pkg/errors"
)

const revocationKeyPrefix = "token_blacklist:"

// CachedRevocationRepo кеширует границы отзыва в Redis поверх основного хранилища.
// Источник истины всегда основное хранилище; в кеш попадают только существующие записи.
type CachedRevocationRepo struct {
	store repository.RevocationRepository
	cache repository.CacheRepository
	ttl   time.Duration
}

// NewCachedRevocationRepo создает кеширующий репозиторий. ttl обычно равен сроку жизни токена
func NewCachedRevocationRepo(store repository.RevocationRepository, cache repository.CacheRepository, ttl time.Duration) *CachedRevocationRepo {
	return &CachedRevocationRepo{store: store, cache: cache, ttl: ttl}
}

func revocationKey(userID string) string {
	return revocationKeyPrefix + userID
}

// GetValidAfter читает границу из кеша, при промахе или ошибке кеша идет в основное хранилище
func (r *CachedRevocationRepo) GetValidAfter(ctx context.Context, userID string) (time.Time, bool, error) {
	key := revocationKey(userID)

	cached, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		validAfter, parseErr := time.Parse(time.RFC3339Nano, cached)
		if parseErr == nil {
			return validAfter, true, nil
		}
		log.Printf("[RevocationCache] Некорректное значение в кеше для ключа %s: %v", key, parseErr)
	case !errors.Is(err, apperrors.ErrNotFound):
		log.Printf("[RevocationCache] Ошибка чтения кеша для ключа %s: %v", key, err)
	}

	validAfter, found, err := r.store.GetValidAfter(ctx, userID)
	if err != nil {
		return time.Time{}, false, err
	}
	if !found {
		return time.Time{}, false, nil
	}

	// SetNX: значение, записанное отзывом, не перетирается более старым прочитанным
	if _, err := r.cache.SetNX(ctx, key, validAfter.UTC().Format(time.RFC3339Nano), r.ttl); err != nil {
		log.Printf("[RevocationCache] Не удалось сохранить границу в кеш для ключа %s: %v", key, err)
	}
	return validAfter, true, nil
}

// UpsertValidAfter пишет границу в основное хранилище и обновляет кеш.
// Если кеш не удалось ни обновить, ни очистить, отзыв считается неуспешным.
func (r *CachedRevocationRepo) UpsertValidAfter(ctx context.Context, userID string, validAfter time.Time) error {
	if err := r.store.UpsertValidAfter(ctx, userID, validAfter); err != nil {
		return err
	}

	key := revocationKey(userID)

	// После GREATEST в базе может лежать более поздняя граница, кешируем именно ее
	current, found, err := r.store.GetValidAfter(ctx, userID)
	if err == nil && found {
		if err = r.cache.Set(ctx, key, current.UTC().Format(time.RFC3339Nano), r.ttl); err == nil {
			return nil
		}
	}
	if err != nil {
		log.Printf("[RevocationCache] Не удалось обновить кеш для ключа %s: %v", key, err)
	}

	if delErr := r.cache.Delete(ctx, key); delErr != nil {
		return fmt.Errorf("revocation stored but cache entry %s could not be invalidated: %w", key, delErr)
	}
	return nil
}

// DeleteForUser удаляет запись из основного хранилища и из кеша
func (r *CachedRevocationRepo) DeleteForUser(ctx context.Context, userID string) error {
	if err := r.store.DeleteForUser(ctx, userID); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, revocationKey(userID)); err != nil {
		return fmt.Errorf("revocation deleted but cache entry could not be removed: %w", err)
	}
	return nil
}
