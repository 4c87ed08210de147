package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/survey-api/internal/domain/entity"
	"github.com/yourusername/survey-api/internal/domain/repository"
	apperrors "github.com/yourusername/survey-api/internal/pkg/errors"
	"github.com/yourusername/survey-api/pkg/auth"
)

const (
	defaultMinPasswordLength = 8
	// resetDeliveryTimeout покрывает все повторы отправки письма
	resetDeliveryTimeout = 2 * time.Minute
)

// AuthService предоставляет методы для работы с аутентификацией и учетными записями
type AuthService struct {
	userRepo          repository.UserRepository
	revocationRepo    repository.RevocationRepository
	authenticator     *auth.Authenticator
	passwordReset     *PasswordResetService
	minPasswordLength int

	// deliveries отслеживает фоновую отправку кодов сброса
	deliveries sync.WaitGroup
}

// SignupInput содержит данные для регистрации
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// AuthResult результат успешной аутентификации
type AuthResult struct {
	User      *entity.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService создает новый сервис аутентификации и возвращает ошибку при проблемах
func NewAuthService(
	userRepo repository.UserRepository,
	revocationRepo repository.RevocationRepository,
	authenticator *auth.Authenticator,
	passwordReset *PasswordResetService,
	minPasswordLength int,
) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if revocationRepo == nil {
		return nil, fmt.Errorf("RevocationRepository is required for AuthService")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("Authenticator is required for AuthService")
	}
	if passwordReset == nil {
		return nil, fmt.Errorf("PasswordResetService is required for AuthService")
	}
	if minPasswordLength <= 0 {
		minPasswordLength = defaultMinPasswordLength
	}

	return &AuthService{
		userRepo:          userRepo,
		revocationRepo:    revocationRepo,
		authenticator:     authenticator,
		passwordReset:     passwordReset,
		minPasswordLength: minPasswordLength,
	}, nil
}

// Signup регистрирует пользователя и сразу выдает токен
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.Username = strings.TrimSpace(input.Username)

	if input.Username == "" || input.Email == "" {
		return nil, fmt.Errorf("%w: username and email are required", apperrors.ErrValidation)
	}
	if err := s.validatePassword(input.Password); err != nil {
		return nil, err
	}

	// Проверяем, существует ли пользователь с таким email
	_, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err == nil {
		return nil, fmt.Errorf("%w: user with this email already exists", apperrors.ErrConflict)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	// Проверяем, существует ли пользователь с таким username
	_, err = s.userRepo.GetByUsername(ctx, input.Username)
	if err == nil {
		return nil, fmt.Errorf("%w: user with this username already exists", apperrors.ErrConflict)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username existence: %w", err)
	}

	user := &entity.User{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	}
	// Гонка между проверкой и вставкой закрывается уникальными индексами (ErrConflict из репозитория)
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("[AuthService] Пользователь ID=%s (%s) зарегистрирован", user.ID, user.Email)
	return s.issue(user)
}

// Login проверяет учетные данные и выдает новый токен.
// Неизвестный email и неверный пароль дают одинаковую ошибку.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.AuthenticateUser(ctx, email, password)
	if err != nil {
		return nil, err
	}

	log.Printf("[AuthService] Пользователь ID=%s успешно вошел в систему", user.ID)
	return s.issue(user)
}

// AuthenticateUser проверяет учетные данные пользователя без создания токена
func (s *AuthService) AuthenticateUser(ctx context.Context, email, password string) (*entity.User, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		log.Printf("[AuthService] Неудачная попытка входа: пользователь не найден")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, ErrInvalidCredentials)
	}

	if !user.CheckPassword(password) {
		log.Printf("[AuthService] Неудачная попытка входа: неверный пароль для пользователя ID=%s", user.ID)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, ErrInvalidCredentials)
	}

	return user, nil
}

// Logout отзывает все токены пользователя, выпущенные до текущего момента
func (s *AuthService) Logout(ctx context.Context, subject string) error {
	_, err := s.authenticator.Revoke(ctx, subject)
	return err
}

// GetProfile возвращает пользователя по subject из токена
func (s *AuthService) GetProfile(ctx context.Context, subject string) (*entity.User, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}
	return s.userRepo.GetByID(ctx, id)
}

// ChangePassword меняет пароль, отзывает все прежние токены и выдает новый
func (s *AuthService) ChangePassword(ctx context.Context, subject, oldPassword, newPassword string) (*AuthResult, error) {
	user, err := s.GetProfile(ctx, subject)
	if err != nil {
		return nil, err
	}

	if !user.CheckPassword(oldPassword) {
		return nil, fmt.Errorf("%w: incorrect old password", apperrors.ErrUnauthorized)
	}
	if err := s.validatePassword(newPassword); err != nil {
		return nil, err
	}

	return s.rotatePassword(ctx, user, newPassword)
}

// RequestPasswordReset отправляет код сброса, если аккаунт существует.
// Код создается и отправляется в фоне: время ответа и результат не зависят от существования email.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetDeliveryTimeout)
		defer cancel()
		if err := s.passwordReset.SendCode(sendCtx, user); err != nil {
			log.Printf("[AuthService] Код сброса пароля не отправлен для пользователя ID=%s: %v", user.ID, err)
		}
	}()
	return nil
}

// WaitDeliveries ждет завершения фоновых отправок кодов сброса.
func (s *AuthService) WaitDeliveries() {
	s.deliveries.Wait()
}

// ResetPassword проверяет код, устанавливает новый пароль, отзывает прежние токены и выдает новый
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) (*AuthResult, error) {
	if err := s.validatePassword(newPassword); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidResetCode
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.passwordReset.ConsumeCode(ctx, user.ID, code); err != nil {
		return nil, err
	}

	result, err := s.rotatePassword(ctx, user, newPassword)
	if err != nil {
		return nil, err
	}
	log.Printf("[AuthService] Пароль сброшен для пользователя ID=%s", user.ID)
	return result, nil
}

// DeleteAccount удаляет аккаунт вместе с кодами сброса и записью об отзыве
func (s *AuthService) DeleteAccount(ctx context.Context, subject, password string) error {
	user, err := s.GetProfile(ctx, subject)
	if err != nil {
		return err
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password is required for account deletion", apperrors.ErrValidation)
	}
	if !user.CheckPassword(password) {
		return fmt.Errorf("%w: invalid password", apperrors.ErrUnauthorized)
	}

	if err := s.passwordReset.DeleteForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to delete reset codes: %w", err)
	}
	if err := s.userRepo.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := s.revocationRepo.DeleteForUser(ctx, user.Subject()); err != nil {
		// Аккаунт уже удален, оставшаяся запись ни на что не влияет
		log.Printf("[AuthService] Не удалось удалить запись об отзыве для пользователя ID=%s: %v", user.ID, err)
	}

	log.Printf("[AuthService] Аккаунт ID=%s удален", user.ID)
	return nil
}

// rotatePassword отзывает прежние токены, затем меняет пароль и выдает новый токен.
// Если отзыв не удался, пароль остается прежним.
func (s *AuthService) rotatePassword(ctx context.Context, user *entity.User, newPassword string) (*AuthResult, error) {
	if _, err := s.authenticator.Revoke(ctx, user.Subject()); err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, newPassword); err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *entity.User) (*AuthResult, error) {
	token, claims, err := s.authenticator.Issue(user.Subject())
	if err != nil {
		log.Printf("[AuthService] Ошибка генерации токена для пользователя ID=%s: %v", user.ID, err)
		return nil, err
	}
	return &AuthResult{
		User:      user,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *AuthService) validatePassword(password string) error {
	if len(password) < s.minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, s.minPasswordLength)
	}
	if len(password) > 72 {
		// bcrypt учитывает только первые 72 байта
		return fmt.Errorf("%w: password must be at most 72 bytes", apperrors.ErrValidation)
	}
	return nil
}

// normalizeEmail приводит email к стандартному виду: trim пробелов + lowercase
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
