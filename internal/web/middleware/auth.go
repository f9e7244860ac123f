package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AuthMiddleware valida o token Bearer no header Authorization.
// Token vazio desabilita a autenticação.
func AuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, "UNAUTHORIZED", "No authorization header provided")
			return
		}

		scheme, value, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || value == "" {
			abort(c, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			return
		}

		if subtle.ConstantTimeCompare([]byte(value), []byte(token)) != 1 {
			log.Warn().
				Str("path", c.Request.URL.Path).
				Str("client", c.ClientIP()).
				Msg("Token inválido na API")
			abort(c, "INVALID_TOKEN", "Invalid authentication token")
			return
		}

		c.Next()
	}
}

func abort(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
