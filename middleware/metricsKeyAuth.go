package middleware

// Expects "Authorization: Bearer <token>", the form Prometheus sends for bearer_token scrape configs
import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var ErrMissingMetricsToken = errors.New("missing or invalid metrics token")

func MetricsTokenAuthMiddleware(expectedToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedToken, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || providedToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Metrics token is required"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid metrics token"})
			return
		}

		c.Next()
	}
}
