package controller

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/auth"
)

// authenticate извлекает tenant id из подписанного токена ровно один раз
// Tenant id из тела запроса или query никогда не принимается:
// единственный источник — проверенный credential
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = ""
		}

		tc, err := s.resolver.Resolve(token)
		if err != nil {
			s.logger.Warn("Authentication failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
			return
		}

		c.Request = c.Request.WithContext(auth.WithTenant(c.Request.Context(), tc))
		c.Next()
	}
}

// tenantFrom достаёт TenantContext, положенный middleware'ом
func tenantFrom(c *gin.Context) (*auth.TenantContext, bool) {
	return auth.FromContext(c.Request.Context())
}
