package errors

import "errors"

// Общие ошибки приложения. Слои оборачивают их через fmt.Errorf("%w: ..."),
// обработчики сопоставляют через errors.Is.
var (
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized неверные учетные данные при повторном подтверждении пароля.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation некорректные входные данные.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken истек одноразовый код.
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict email или username уже заняты.
	ErrConflict = errors.New("resource state conflict")

	// ErrTooManyRequests превышен лимит запросов или попыток.
	ErrTooManyRequests = errors.New("too many requests")
)
