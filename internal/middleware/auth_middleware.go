package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/survey-api/pkg/auth"
)

// UserIDKey ключ subject аутентифицированного пользователя в gin.Context
const UserIDKey = "user_id"

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

// NewAuthMiddleware создает middleware поверх Authenticator
func NewAuthMiddleware(authenticator *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// RequireAuth проверяет Bearer-токен и кладет subject в контекст под ключом user_id
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearer(c.GetHeader("Authorization"))
		if err != nil {
			abortWithAuthError(c, err)
			return
		}

		subject, err := m.authenticator.Verify(c.Request.Context(), token)
		if err != nil {
			log.Printf("[AuthMiddleware] Токен отклонен для %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			abortWithAuthError(c, err)
			return
		}

		c.Set(UserIDKey, subject)
		c.Next()
	}
}

func abortWithAuthError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(auth.StatusCode(err), gin.H{
		"success": false,
		"error":   auth.Message(err),
	})
}
