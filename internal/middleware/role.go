package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		caller, err := CallerFrom(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if _, ok := allowed[caller.Role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
