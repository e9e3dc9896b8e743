package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/corkboard/backend/pkg/response"
)

// CronSecretHeader carries the shared secret for scheduler-triggered endpoints.
const CronSecretHeader = "X-Cron-Secret"

// CronSecret rejects requests whose X-Cron-Secret header does not match secret.
// An empty secret rejects everything.
func CronSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(CronSecretHeader))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			response.Unauthorized(c, "invalid cron secret")
			c.Abort()
			return
		}
		c.Next()
	}
}
