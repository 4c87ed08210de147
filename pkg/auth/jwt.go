package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL срок жизни сессионного токена, если Config.TTL не задан.
	DefaultTokenTTL = 24 * time.Hour
	// MinSecretLength минимальная длина HMAC-ключа.
	MinSecretLength = 32

	defaultIssuer = "survey-api"
)

// RevocationStore хранилище границ отзыва по пользователю.
type RevocationStore interface {
	// GetValidAfter возвращает границу отзыва для userID; found == false, если отзыва не было.
	GetValidAfter(ctx context.Context, userID string) (validAfter time.Time, found bool, err error)
	// UpsertValidAfter атомарно создает или перезаписывает границу для userID.
	UpsertValidAfter(ctx context.Context, userID string, validAfter time.Time) error
}

// Config параметры Authenticator, собираются один раз при старте.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	// Now источник времени для выпуска, проверки срока и отзыва. По умолчанию time.Now.
	Now func() time.Time
}

// Claims полезная нагрузка сессионного токена.
// Стандартный iat секундный; момент выпуска для сравнения с границей отзыва
// хранится отдельно целым числом микросекунд, как и граница в timestamptz.
type Claims struct {
	jwt.RegisteredClaims
	IssuedAtMicros int64 `json:"iat_us"`
}

// IssuedAtTime момент выпуска с точностью до микросекунды.
func (c *Claims) IssuedAtTime() time.Time {
	return time.UnixMicro(c.IssuedAtMicros)
}

// Authenticator выпускает, проверяет и отзывает сессионные токены.
// Изменяемого состояния не хранит, все границы отзыва лежат в RevocationStore.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	store  RevocationStore
	parser *jwt.Parser
}

// NewAuthenticator проверяет конфигурацию и создает Authenticator.
func NewAuthenticator(cfg Config, store RevocationStore) (*Authenticator, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if store == nil {
		return nil, errors.New("RevocationStore is required for Authenticator")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Authenticator{
		secret: secret,
		ttl:    ttl,
		issuer: issuer,
		now:    now,
		store:  store,
		// Сроки проверяются вручную по a.now
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// TTL возвращает срок жизни токена.
func (a *Authenticator) TTL() time.Duration {
	return a.ttl
}

// Issue подписывает новый токен для уже аутентифицированного пользователя.
func (a *Authenticator) Issue(subject string) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("subject is required to issue a token")
	}

	now := a.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			ID:        uuid.NewString(),
		},
		IssuedAtMicros: now.UnixMicro(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		log.Printf("[Auth] Failed to sign token for subject=%s: %v", subject, err)
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, claims, nil
}

// Verify проверяет подпись, срок действия и границу отзыва, возвращает subject.
// Если хранилище недоступно, токен отклоняется с ErrStorageUnavailable.
func (a *Authenticator) Verify(ctx context.Context, tokenString string) (string, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return "", err
	}

	validAfter, found, err := a.store.GetValidAfter(ctx, claims.Subject)
	if err != nil {
		log.Printf("[Auth] Revocation lookup failed for subject=%s: %v", claims.Subject, err)
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if found && claims.IssuedAtTime().Before(validAfter) {
		return "", ErrRevoked
	}

	return claims.Subject, nil
}

// Revoke сдвигает границу отзыва на текущий момент: все ранее выпущенные токены становятся невалидными.
func (a *Authenticator) Revoke(ctx context.Context, subject string) (time.Time, error) {
	if subject == "" {
		return time.Time{}, errors.New("subject is required to revoke tokens")
	}

	validAfter := a.now().Truncate(time.Microsecond)
	if err := a.store.UpsertValidAfter(ctx, subject, validAfter); err != nil {
		log.Printf("[Auth] Failed to store revocation boundary for subject=%s: %v", subject, err)
		return time.Time{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	log.Printf("[Auth] Tokens revoked for subject=%s, valid after %s", subject, validAfter.Format(time.RFC3339Nano))
	return validAfter, nil
}

// parse выполняет проверку без обращения к хранилищу: подпись, обязательные claims, срок.
func (a *Authenticator) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingCredential
	}

	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if claims.Subject == "" || claims.IssuedAt == nil || claims.IssuedAtMicros <= 0 || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: required claims missing", ErrMalformed)
	}
	if !a.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}

	return claims, nil
}
