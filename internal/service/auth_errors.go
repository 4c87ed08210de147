package service

import (
	"errors"
	"fmt"

	apperrors "github.com/yourusername/survey-api/internal/pkg/errors"
)

// Ошибки сценариев аутентификации, которые обработчики отображают в стабильные ответы.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidResetCode      = errors.New("invalid_reset_code")
	ErrResetCodeExpired      = fmt.Errorf("%w: reset_code_expired", apperrors.ErrExpiredToken)
	ErrResetAttemptsExceeded = fmt.Errorf("%w: reset_attempts_exceeded", apperrors.ErrTooManyRequests)
	ErrResetResendCooldown   = fmt.Errorf("%w: reset_resend_cooldown", apperrors.ErrTooManyRequests)
)
