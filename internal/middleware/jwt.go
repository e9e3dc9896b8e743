package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/pkg/response"
)

// ContextCaller is the key for the authenticated auth.Caller in gin context.
const ContextCaller = "caller"

// JWT returns a middleware that validates JWT and sets the caller in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextCaller, auth.Caller{UserID: claims.UserID, Email: claims.Email, Role: claims.Role})
		c.Next()
	}
}

// CallerFrom returns the caller set by JWT, or an Unauthenticated error.
func CallerFrom(c *gin.Context) (auth.Caller, error) {
	v, ok := c.Get(ContextCaller)
	if !ok {
		return auth.Caller{}, errdef.NewUnauthenticated("missing user context")
	}
	caller, ok := v.(auth.Caller)
	if !ok {
		return auth.Caller{}, errdef.NewUnauthenticated("missing user context")
	}
	return caller, nil
}
