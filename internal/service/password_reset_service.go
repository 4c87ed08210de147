package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/survey-api/internal/domain/entity"
	"github.com/yourusername/survey-api/internal/domain/repository"
	apperrors "github.com/yourusername/survey-api/internal/pkg/errors"
)

// PasswordResetConfig параметры одноразовых кодов сброса пароля
type PasswordResetConfig struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	CodePepper     string
	Now            func() time.Time
}

// PasswordResetService выпускает и проверяет коды сброса пароля
type PasswordResetService struct {
	resetRepo      repository.PasswordResetRepository
	emailService   EmailService
	codeTTL        time.Duration
	resendCooldown time.Duration
	maxAttempts    int
	codePepper     string
	now            func() time.Time
}

func NewPasswordResetService(
	resetRepo repository.PasswordResetRepository,
	emailService EmailService,
	cfg PasswordResetConfig,
) (*PasswordResetService, error) {
	if resetRepo == nil {
		return nil, fmt.Errorf("password reset repository is required")
	}
	if emailService == nil {
		return nil, fmt.Errorf("email service is required")
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 15 * time.Minute
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &PasswordResetService{
		resetRepo:      resetRepo,
		emailService:   emailService,
		codeTTL:        cfg.CodeTTL,
		resendCooldown: cfg.ResendCooldown,
		maxAttempts:    cfg.MaxAttempts,
		codePepper:     cfg.CodePepper,
		now:            cfg.Now,
	}, nil
}

// SendCode создает новый код для пользователя и отправляет его на email
func (s *PasswordResetService) SendCode(ctx context.Context, user *entity.User) error {
	now := s.now()
	latest, err := s.resetRepo.GetLatestActiveByUserID(ctx, user.ID)
	switch {
	case err == nil && latest != nil:
		if now.Before(latest.LastSentAt.Add(s.resendCooldown)) {
			return fmt.Errorf("%w: please wait before requesting a new code", ErrResetResendCooldown)
		}
	case err != nil && !errors.Is(err, apperrors.ErrNotFound):
		return err
	}

	code, err := generateResetCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	salt, err := generateResetSalt()
	if err != nil {
		return fmt.Errorf("failed to generate reset salt: %w", err)
	}

	record := &entity.PasswordResetCode{
		UserID:      user.ID,
		Email:       user.Email,
		CodeHash:    hashResetCode(code, salt, s.codePepper),
		CodeSalt:    salt,
		ExpiresAt:   now.Add(s.codeTTL),
		MaxAttempts: s.maxAttempts,
		LastSentAt:  now,
	}
	if err := s.resetRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create reset record: %w", err)
	}

	idempotencyKey := fmt.Sprintf("password-reset:%s:%d", user.ID, record.ID)
	if err := s.emailService.SendPasswordResetCode(ctx, user.Email, code, idempotencyKey); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// ConsumeCode проверяет код и помечает его использованным
func (s *PasswordResetService) ConsumeCode(ctx context.Context, userID uuid.UUID, code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: empty reset code", apperrors.ErrValidation)
	}

	record, err := s.resetRepo.GetLatestActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}

	if record.IsConsumed() {
		return ErrInvalidResetCode
	}
	if record.IsExpired(s.now()) {
		return ErrResetCodeExpired
	}
	if record.AttemptsExhausted() {
		return ErrResetAttemptsExceeded
	}

	// Попытка списывается до сравнения, поэтому параллельные запросы не обходят лимит
	reserved, err := s.resetRepo.IncrementAttempts(ctx, record.ID)
	if err != nil {
		return err
	}
	if !reserved {
		return ErrResetAttemptsExceeded
	}

	expectedHash := hashResetCode(strings.TrimSpace(code), record.CodeSalt, s.codePepper)
	if subtle.ConstantTimeCompare([]byte(expectedHash), []byte(record.CodeHash)) != 1 {
		if record.AttemptCount+1 >= record.MaxAttempts {
			return ErrResetAttemptsExceeded
		}
		return ErrInvalidResetCode
	}

	consumed, err := s.resetRepo.MarkConsumed(ctx, record.ID)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrInvalidResetCode
	}
	return nil
}

// DeleteForUser удаляет все коды пользователя
func (s *PasswordResetService) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	return s.resetRepo.DeleteByUserID(ctx, userID)
}

func generateResetCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateResetSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashResetCode(code, salt, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
