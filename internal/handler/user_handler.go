package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/survey-api/internal/service"
)

// UserHandler обрабатывает запросы к профилю текущего пользователя
type UserHandler struct {
	authService *service.AuthService
}

// NewUserHandler создает новый обработчик пользователей
func NewUserHandler(authService *service.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// DeleteAccountRequest подтверждение удаления аккаунта паролем
type DeleteAccountRequest struct {
	Password string `json:"password" binding:"required"`
}

// GetMe возвращает профиль текущего пользователя
func (h *UserHandler) GetMe(c *gin.Context) {
	subject, ok := subjectFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.authService.GetProfile(c.Request.Context(), subject)
	if err != nil {
		handleError(c, "UserHandler", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    profileResponse(user),
	})
}

// DeleteMe удаляет аккаунт текущего пользователя
func (h *UserHandler) DeleteMe(c *gin.Context) {
	subject, ok := subjectFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Password is required")
		return
	}

	if err := h.authService.DeleteAccount(c.Request.Context(), subject, req.Password); err != nil {
		handleError(c, "UserHandler", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Account deleted",
	})
}
