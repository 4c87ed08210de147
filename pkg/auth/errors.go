package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Ошибки проверки токена
var (
	ErrMissingCredential  = errors.New("missing credential")
	ErrMalformed          = errors.New("malformed token")
	ErrExpired            = errors.New("token is expired")
	ErrRevoked            = errors.New("token has been invalidated")
	ErrStorageUnavailable = errors.New("revocation store unavailable")
)

// ExtractBearer извлекает токен из заголовка "Authorization: Bearer <token>".
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingCredential
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}

// Message возвращает текст ошибки для клиента. Деталей о пользователе и причине не раскрывает.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "Authorization token missing or malformed"
	case errors.Is(err, ErrExpired):
		return "Token has expired"
	case errors.Is(err, ErrRevoked):
		return "Token has been invalidated"
	case errors.Is(err, ErrStorageUnavailable):
		return "Unable to verify token at this time"
	default:
		return "Invalid token"
	}
}

// StatusCode возвращает HTTP-статус для ошибки проверки.
func StatusCode(err error) int {
	if errors.Is(err, ErrStorageUnavailable) {
		return http.StatusInternalServerError
	}
	return http.StatusUnauthorized
}
