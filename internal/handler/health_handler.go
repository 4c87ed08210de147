package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health отвечает на проверку живости сервиса
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "authentication",
	})
}
