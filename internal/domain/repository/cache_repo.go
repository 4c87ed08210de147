package repository

import (
	"context"
	"time"
)

// CacheRepository общий кеш (Redis) для границ отзыва и счетчиков rate limit
type CacheRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// SetNX записывает значение, только если ключа еще нет
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// IncrementWindow увеличивает счетчик окна и возвращает новое значение и оставшееся время жизни окна.
	// Первое обращение открывает окно длиной window.
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
