package middleware

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/survey-api/internal/domain/repository"
)

// RateLimitConfig фиксированное окно: не больше MaxRequests запросов за Window с одного IP на маршрут
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// LoginRateLimitConfig лимит попыток входа (защита от подбора пароля)
func LoginRateLimitConfig(maxRequests int, window time.Duration) RateLimitConfig {
	return RateLimitConfig{MaxRequests: maxRequests, Window: window, KeyPrefix: "rl:auth:login"}
}

// ResetRateLimitConfig лимит запросов кодов сброса и попыток сброса
func ResetRateLimitConfig(maxRequests int, window time.Duration) RateLimitConfig {
	return RateLimitConfig{MaxRequests: maxRequests, Window: window, KeyPrefix: "rl:auth:reset"}
}

// RateLimiter ограничивает частоту запросов счетчиками в общем кеше,
// поэтому лимит действует на все экземпляры сервиса сразу
type RateLimiter struct {
	cache repository.CacheRepository
}

// NewRateLimiter создает новый RateLimiter
func NewRateLimiter(cache repository.CacheRepository) *RateLimiter {
	return &RateLimiter{cache: cache}
}

// Limit возвращает gin middleware. При недоступном кеше запрос пропускается (fail-open):
// лимит защищает от перебора, а не от доступа.
func (rl *RateLimiter) Limit(cfg RateLimitConfig) gin.HandlerFunc {
	limit := strconv.Itoa(cfg.MaxRequests)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := cfg.KeyPrefix + ":" + c.ClientIP() + ":" + route

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, resetIn, err := rl.cache.IncrementWindow(ctx, key, cfg.Window)
		if err != nil {
			log.Printf("[RateLimiter] Cache error for key %s: %v", key, err)
			if count == 0 {
				c.Next()
				return
			}
		}

		remaining := cfg.MaxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(count) <= cfg.MaxRequests {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(resetIn.Seconds()))
		if retryAfter <= 0 {
			retryAfter = int(cfg.Window.Seconds())
		}
		log.Printf("[RateLimiter] Rate limit exceeded for IP=%s route=%s. Count=%d, Limit=%d",
			c.ClientIP(), route, count, cfg.MaxRequests)

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":     false,
			"error":       "Too many requests. Please try again later.",
			"retry_after": retryAfter,
		})
	}
}
