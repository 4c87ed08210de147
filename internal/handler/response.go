package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/survey-api/internal/middleware"
	apperrors "github.com/yourusername/survey-api/internal/pkg/errors"
	"github.com/yourusername/survey-api/internal/service"
	"github.com/yourusername/survey-api/pkg/auth"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

// handleError переводит ошибку сервиса в HTTP-ответ. Внутренние детали клиенту не отдаются.
func handleError(c *gin.Context, component string, err error) {
	log.Printf("[%s] Error: %v", component, err)

	switch {
	case errors.Is(err, auth.ErrMissingCredential),
		errors.Is(err, auth.ErrMalformed),
		errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrRevoked),
		errors.Is(err, auth.ErrStorageUnavailable):
		respondError(c, auth.StatusCode(err), auth.Message(err))
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, service.ErrResetAttemptsExceeded):
		respondError(c, http.StatusTooManyRequests, "Too many invalid attempts, request a new code")
	case errors.Is(err, service.ErrResetCodeExpired):
		respondError(c, http.StatusBadRequest, "Reset code has expired")
	case errors.Is(err, service.ErrInvalidResetCode):
		respondError(c, http.StatusBadRequest, "Invalid or expired reset code")
	case errors.Is(err, apperrors.ErrValidation):
		respondError(c, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, apperrors.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, apperrors.ErrNotFound):
		respondError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, apperrors.ErrConflict):
		respondError(c, http.StatusConflict, "User with this email or username already exists")
	case errors.Is(err, apperrors.ErrTooManyRequests):
		respondError(c, http.StatusTooManyRequests, "Too many requests. Please try again later.")
	default:
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}

// validationMessage возвращает текст ошибки валидации без префикса sentinel-ошибки
func validationMessage(err error) string {
	prefix := apperrors.ErrValidation.Error() + ": "
	if msg := err.Error(); strings.HasPrefix(msg, prefix) {
		return strings.TrimPrefix(msg, prefix)
	}
	return "Invalid request data"
}

// subjectFromContext достает subject, положенный AuthMiddleware
func subjectFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.UserIDKey)
	if !exists {
		return "", false
	}
	subject, ok := v.(string)
	return subject, ok && subject != ""
}
