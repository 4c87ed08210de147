package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/survey-api/internal/domain/entity"
	apperrors "github.com/yourusername/survey-api/internal/pkg/errors"
	"github.com/yourusername/survey-api/pkg/auth"
)

// ============================================================================
// Моки и фейки для тестирования AuthService
// ============================================================================

// MockUserRepository реализует repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *entity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	args := m.Called(ctx, userID, newPassword)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockEmailService реализует EmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendPasswordResetCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	args := m.Called(ctx, toEmail, code, idempotencyKey)
	return args.Error(0)
}

// memoryRevocationRepo хранит границы отзыва в памяти с семантикой GREATEST
type memoryRevocationRepo struct {
	mu      sync.Mutex
	records map[string]time.Time
	err     error
}

func newMemoryRevocationRepo() *memoryRevocationRepo {
	return &memoryRevocationRepo{records: make(map[string]time.Time)}
}

func (r *memoryRevocationRepo) GetValidAfter(ctx context.Context, userID string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return time.Time{}, false, r.err
	}
	t, ok := r.records[userID]
	return t, ok, nil
}

func (r *memoryRevocationRepo) UpsertValidAfter(ctx context.Context, userID string, validAfter time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if cur, ok := r.records[userID]; !ok || validAfter.After(cur) {
		r.records[userID] = validAfter
	}
	return nil
}

func (r *memoryRevocationRepo) DeleteForUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, userID)
	return nil
}

// memoryResetRepo хранит коды сброса пароля в памяти
type memoryResetRepo struct {
	mu     sync.Mutex
	nextID uint
	codes  []*entity.PasswordResetCode
	now    func() time.Time

	incrementErr error
}

func (r *memoryResetRepo) Create(ctx context.Context, code *entity.PasswordResetCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	code.ID = r.nextID
	code.CreatedAt = r.now()
	r.codes = append(r.codes, code)
	return nil
}

func (r *memoryResetRepo) GetLatestActiveByUserID(ctx context.Context, userID uuid.UUID) (*entity.PasswordResetCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.codes) - 1; i >= 0; i-- {
		c := r.codes[i]
		if c.UserID == userID && c.ConsumedAt == nil {
			copied := *c
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memoryResetRepo) IncrementAttempts(ctx context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incrementErr != nil {
		return false, r.incrementErr
	}
	for _, c := range r.codes {
		if c.ID == id && c.ConsumedAt == nil && c.AttemptCount < c.MaxAttempts {
			c.AttemptCount++
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryResetRepo) MarkConsumed(ctx context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, c := range r.codes {
		if c.ID == id && c.ConsumedAt == nil {
			c.ConsumedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryResetRepo) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	for _, c := range r.codes {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	r.codes = kept
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testDeps struct {
	userRepo    *MockUserRepository
	email       *MockEmailService
	revocations *memoryRevocationRepo
	resets      *memoryResetRepo
	clock       *testClock
	auth        *auth.Authenticator
}

// createTestAuthService собирает AuthService с настоящим Authenticator и фейковыми хранилищами
func createTestAuthService(t *testing.T) (*AuthService, *testDeps) {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	deps := &testDeps{
		userRepo:    new(MockUserRepository),
		email:       new(MockEmailService),
		revocations: newMemoryRevocationRepo(),
		resets:      &memoryResetRepo{now: clock.Now},
		clock:       clock,
	}

	authenticator, err := auth.NewAuthenticator(auth.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Now:    clock.Now,
	}, deps.revocations)
	require.NoError(t, err)
	deps.auth = authenticator

	resetService, err := NewPasswordResetService(deps.resets, deps.email, PasswordResetConfig{
		CodePepper: "test-pepper",
		Now:        clock.Now,
	})
	require.NoError(t, err)

	svc, err := NewAuthService(deps.userRepo, deps.revocations, authenticator, resetService, 8)
	require.NoError(t, err)
	return svc, deps
}

func newTestUser(t *testing.T, password string) *entity.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &entity.User{
		ID:       uuid.New(),
		Username: "alice",
		Email:    "alice@example.com",
		Password: string(hash),
	}
}

// ============================================================================
// Тесты для AuthService
// ============================================================================

func TestNewAuthService_RequiresDependencies(t *testing.T) {
	_, err := NewAuthService(nil, newMemoryRevocationRepo(), nil, nil, 8)
	assert.Error(t, err)
}

func TestAuthService_Signup_Success(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()

	deps.userRepo.On("GetByEmail", ctx, "new@example.com").Return(nil, apperrors.ErrNotFound)
	deps.userRepo.On("GetByUsername", ctx, "newuser").Return(nil, apperrors.ErrNotFound)
	deps.userRepo.On("Create", ctx, mock.AnythingOfType("*entity.User")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*entity.User).ID = uuid.New()
		}).
		Return(nil)

	// Act
	result, err := svc.Signup(ctx, SignupInput{Username: "newuser", Email: "  New@Example.com ", Password: "password123"})

	// Assert
	require.NoError(t, err, "Регистрация должна быть успешной")
	assert.Equal(t, "new@example.com", result.User.Email, "Email должен быть нормализован")
	assert.NotEmpty(t, result.Token)

	subject, err := deps.auth.Verify(ctx, result.Token)
	require.NoError(t, err, "Выданный при регистрации токен должен быть валиден")
	assert.Equal(t, result.User.ID.String(), subject)
	deps.userRepo.AssertExpectations(t)
}

func TestAuthService_Signup_DuplicateEmail(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	existing := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, "alice@example.com").Return(existing, nil)

	// Act
	result, err := svc.Signup(ctx, SignupInput{Username: "alice2", Email: "alice@example.com", Password: "password123"})

	// Assert
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	deps.userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_Signup_ConflictOnInsert(t *testing.T) {
	// Arrange: проверки прошли, но вставку опередил параллельный запрос
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	deps.userRepo.On("GetByEmail", ctx, "bob@example.com").Return(nil, apperrors.ErrNotFound)
	deps.userRepo.On("GetByUsername", ctx, "bob").Return(nil, apperrors.ErrNotFound)
	deps.userRepo.On("Create", ctx, mock.Anything).Return(apperrors.ErrConflict)

	// Act
	_, err := svc.Signup(ctx, SignupInput{Username: "bob", Email: "bob@example.com", Password: "password123"})

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAuthService_Signup_ShortPassword(t *testing.T) {
	svc, deps := createTestAuthService(t)

	_, err := svc.Signup(context.Background(), SignupInput{Username: "bob", Email: "bob@example.com", Password: "short"})

	assert.ErrorIs(t, err, apperrors.ErrValidation)
	deps.userRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestAuthService_Login_Success(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)

	// Act
	result, err := svc.Login(ctx, "Alice@Example.com", "password123")

	// Assert
	require.NoError(t, err)
	subject, err := deps.auth.Verify(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), subject)
	assert.True(t, deps.clock.Now().Add(24*time.Hour).Equal(result.ExpiresAt))
}

func TestAuthService_Login_GenericErrorForBadCredentials(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
	deps.userRepo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	_, wrongPassword := svc.Login(ctx, "alice@example.com", "wrong-password")
	_, unknownEmail := svc.Login(ctx, "ghost@example.com", "password123")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error(), "Ответ не должен раскрывать существование email")
}

func TestAuthService_Login_RepositoryFailure(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	deps.userRepo.On("GetByEmail", ctx, "alice@example.com").Return(nil, errors.New("connection refused"))

	_, err := svc.Login(ctx, "alice@example.com", "password123")

	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrUnauthorized, "Ошибка хранилища не должна выглядеть как неверный пароль")
}

func TestAuthService_Logout_RevokesExistingTokens(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)

	first, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	// Act
	deps.clock.Advance(time.Second)
	require.NoError(t, svc.Logout(ctx, user.ID.String()))

	// Assert: выход отзывает все сессии пользователя
	_, err = deps.auth.Verify(ctx, first.Token)
	assert.ErrorIs(t, err, auth.ErrRevoked)
	_, err = deps.auth.Verify(ctx, second.Token)
	assert.ErrorIs(t, err, auth.ErrRevoked)

	// Повторный вход после выхода работает
	deps.clock.Advance(time.Second)
	third, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	_, err = deps.auth.Verify(ctx, third.Token)
	assert.NoError(t, err)
}

func TestAuthService_Logout_StorageFailure(t *testing.T) {
	svc, deps := createTestAuthService(t)
	deps.revocations.err = errors.New("db down")

	err := svc.Logout(context.Background(), uuid.NewString())

	assert.ErrorIs(t, err, auth.ErrStorageUnavailable)
}

func TestAuthService_ChangePassword(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
	deps.userRepo.On("GetByID", ctx, user.ID).Return(user, nil)
	deps.userRepo.On("UpdatePassword", ctx, user.ID, "new-password-1").Return(nil)

	old, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	deps.clock.Advance(time.Minute)

	// Act
	result, err := svc.ChangePassword(ctx, user.ID.String(), "password123", "new-password-1")

	// Assert
	require.NoError(t, err)
	_, err = deps.auth.Verify(ctx, old.Token)
	assert.ErrorIs(t, err, auth.ErrRevoked, "Старые токены должны быть отозваны")
	_, err = deps.auth.Verify(ctx, result.Token)
	assert.NoError(t, err, "Новый токен выпущен не раньше границы отзыва")
	deps.userRepo.AssertExpectations(t)
}

func TestAuthService_ChangePassword_WrongOldPassword(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByID", ctx, user.ID).Return(user, nil)

	_, err := svc.ChangePassword(ctx, user.ID.String(), "nope", "new-password-1")

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	deps.userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, deps.revocations.records)
}

func TestAuthService_ChangePassword_RevocationFailureKeepsPassword(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByID", ctx, user.ID).Return(user, nil)
	deps.revocations.err = errors.New("connection reset")

	// Act
	_, err := svc.ChangePassword(ctx, user.ID.String(), "password123", "new-password-1")

	// Assert
	assert.ErrorIs(t, err, auth.ErrStorageUnavailable)
	deps.userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_ResetPassword_RevocationFailureKeepsPassword(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

	var sentCode string
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sentCode = args.String(2) }).
		Return(nil)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()
	deps.revocations.err = errors.New("connection reset")

	_, err := svc.ResetPassword(ctx, user.Email, sentCode, "brand-new-pass")

	assert.ErrorIs(t, err, auth.ErrStorageUnavailable)
	deps.userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, user.CheckPassword("password123"), "Пароль не меняется, пока прежние токены не отозваны")
}

func TestAuthService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	deps.userRepo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	err := svc.RequestPasswordReset(ctx, "ghost@example.com")

	assert.NoError(t, err, "Неизвестный email не должен отличаться от известного")
	deps.email.AssertNotCalled(t, "SendPasswordResetCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_RequestPasswordReset_EmailFailureIsHidden(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).Return(errors.New("resend: 500"))

	err := svc.RequestPasswordReset(ctx, user.Email)
	svc.WaitDeliveries()

	assert.NoError(t, err)
	deps.email.AssertNumberOfCalls(t, "SendPasswordResetCode", 1)
}

func TestAuthService_RequestPasswordReset_DoesNotWaitForEmail(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	user := newTestUser(t, "password123")
	ctx, cancel := context.WithCancel(context.Background())
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

	release := make(chan struct{})
	var sendCtxErr error
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-release
			sendCtxErr = args.Get(0).(context.Context).Err()
		}).
		Return(nil)

	// Act
	done := make(chan error, 1)
	go func() { done <- svc.RequestPasswordReset(ctx, user.Email) }()

	// Assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Ответ не должен ждать отправки письма")
	}
	cancel()
	close(release)
	svc.WaitDeliveries()

	deps.email.AssertNumberOfCalls(t, "SendPasswordResetCode", 1)
	assert.NoError(t, sendCtxErr, "Отправка не прерывается завершением запроса")
}

func TestAuthService_RequestPasswordReset_Cooldown(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()
	deps.clock.Advance(10 * time.Second)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()
	deps.email.AssertNumberOfCalls(t, "SendPasswordResetCode", 1)

	deps.clock.Advance(time.Minute)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()
	deps.email.AssertNumberOfCalls(t, "SendPasswordResetCode", 2)
}

func TestAuthService_ResetPassword_FullFlow(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)
	deps.userRepo.On("UpdatePassword", ctx, user.ID, "brand-new-pass").Return(nil)

	var sentCode string
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sentCode = args.String(2) }).
		Return(nil)

	old, err := svc.Login(ctx, user.Email, "password123")
	require.NoError(t, err)

	deps.clock.Advance(time.Minute)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()
	require.Len(t, sentCode, 6, "Код сброса состоит из 6 цифр")

	// Act
	deps.clock.Advance(time.Minute)
	result, err := svc.ResetPassword(ctx, user.Email, sentCode, "brand-new-pass")

	// Assert
	require.NoError(t, err)
	_, err = deps.auth.Verify(ctx, old.Token)
	assert.ErrorIs(t, err, auth.ErrRevoked)
	subject, err := deps.auth.Verify(ctx, result.Token)
	require.NoError(t, err, "Токен из ответа на сброс пароля должен приниматься")
	assert.Equal(t, user.ID.String(), subject)

	_, err = svc.ResetPassword(ctx, user.Email, sentCode, "brand-new-pass")
	assert.ErrorIs(t, err, ErrInvalidResetCode, "Код одноразовый")
}

func TestAuthService_ResetPassword_WrongCodeExhaustsAttempts(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

	var sentCode string
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sentCode = args.String(2) }).
		Return(nil)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()

	wrong := "000000"
	if sentCode == wrong {
		wrong = "111111"
	}

	for i := 0; i < 4; i++ {
		_, err := svc.ResetPassword(ctx, user.Email, wrong, "brand-new-pass")
		assert.ErrorIs(t, err, ErrInvalidResetCode)
	}
	_, err := svc.ResetPassword(ctx, user.Email, wrong, "brand-new-pass")
	assert.ErrorIs(t, err, ErrResetAttemptsExceeded)

	_, err = svc.ResetPassword(ctx, user.Email, sentCode, "brand-new-pass")
	assert.ErrorIs(t, err, ErrResetAttemptsExceeded, "После исчерпания попыток даже верный код не принимается")
	deps.userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_ResetPassword_ConcurrentUseOfSameCode(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)
	deps.userRepo.On("UpdatePassword", ctx, user.ID, "brand-new-pass").Return(nil)

	var sentCode string
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sentCode = args.String(2) }).
		Return(nil)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()

	// Act
	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ResetPassword(ctx, user.Email, sentCode, "brand-new-pass"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Assert
	assert.Equal(t, 1, succeeded, "Код принимается ровно один раз")
	deps.userRepo.AssertNumberOfCalls(t, "UpdatePassword", 1)
}

func TestAuthService_ResetPassword_ConcurrentWrongGuessesBounded(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

	var sentCode string
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sentCode = args.String(2) }).
		Return(nil)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()

	wrong := "000000"
	if sentCode == wrong {
		wrong = "111111"
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ResetPassword(ctx, user.Email, wrong, "brand-new-pass")
		}()
	}
	wg.Wait()

	require.Len(t, deps.resets.codes, 1)
	assert.Equal(t, 5, deps.resets.codes[0].AttemptCount, "Параллельные попытки не превышают лимит")
	_, err := svc.ResetPassword(ctx, user.Email, sentCode, "brand-new-pass")
	assert.ErrorIs(t, err, ErrResetAttemptsExceeded)
}

func TestAuthService_ResetPassword_AttemptStorageFailure(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

	var sentCode string
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sentCode = args.String(2) }).
		Return(nil)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()
	deps.resets.incrementErr = errors.New("connection reset")

	_, err := svc.ResetPassword(ctx, user.Email, sentCode, "brand-new-pass")

	assert.Error(t, err, "Без списанной попытки код не проверяется")
	assert.NotErrorIs(t, err, ErrInvalidResetCode)
	deps.userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_ResetPassword_ExpiredCode(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

	var sentCode string
	deps.email.On("SendPasswordResetCode", mock.Anything, user.Email, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sentCode = args.String(2) }).
		Return(nil)
	require.NoError(t, svc.RequestPasswordReset(ctx, user.Email))
	svc.WaitDeliveries()

	deps.clock.Advance(16 * time.Minute)
	_, err := svc.ResetPassword(ctx, user.Email, sentCode, "brand-new-pass")

	assert.ErrorIs(t, err, ErrResetCodeExpired)
}

func TestAuthService_ResetPassword_UnknownEmail(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	deps.userRepo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	_, err := svc.ResetPassword(ctx, "ghost@example.com", "123456", "brand-new-pass")

	assert.ErrorIs(t, err, ErrInvalidResetCode)
}

func TestAuthService_DeleteAccount(t *testing.T) {
	// Arrange
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByID", ctx, user.ID).Return(user, nil)
	deps.userRepo.On("Delete", ctx, user.ID).Return(nil)
	_, err := deps.auth.Revoke(ctx, user.ID.String())
	require.NoError(t, err)
	require.NoError(t, deps.resets.Create(ctx, &entity.PasswordResetCode{UserID: user.ID, MaxAttempts: 5}))

	// Act
	err = svc.DeleteAccount(ctx, user.ID.String(), "password123")

	// Assert
	require.NoError(t, err)
	assert.NotContains(t, deps.revocations.records, user.ID.String(), "Запись об отзыве удаляется вместе с аккаунтом")
	assert.Empty(t, deps.resets.codes)
	deps.userRepo.AssertExpectations(t)
}

func TestAuthService_DeleteAccount_RequiresPassword(t *testing.T) {
	svc, deps := createTestAuthService(t)
	ctx := context.Background()
	user := newTestUser(t, "password123")
	deps.userRepo.On("GetByID", ctx, user.ID).Return(user, nil)

	err := svc.DeleteAccount(ctx, user.ID.String(), "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	err = svc.DeleteAccount(ctx, user.ID.String(), "wrong")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	deps.userRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestAuthService_GetProfile_InvalidSubject(t *testing.T) {
	svc, _ := createTestAuthService(t)

	_, err := svc.GetProfile(context.Background(), "not-a-uuid")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
