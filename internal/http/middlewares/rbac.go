package middlewares

import (
	"net/http"

	"github.com/campuskiosk/kioskhub/internal/auth"
	"github.com/gin-gonic/gin"
)

// RequireStaff guards the management surface: room CRUD, bulk cancellation,
// jobs inspection.
func (m *AuthMiddleware) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)
		if !ok || role == "" {
			abortUnauthorized(c, "Missing identity context")
			return
		}
		if role != auth.RoleStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": "Staff role required",
				},
			})
			return
		}
		c.Next()
	}
}
