package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tietpapers/models"
)

// identityKey is the gin context key RateLimit reads the caller identity from.
const identityKey = "client_identity"

// Auth returns API-key authentication middleware for the run endpoint.
//
// Supports two header styles:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// If apiKeys is empty, the middleware is a no-op (open access).
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][32]byte
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, failure(models.ErrCodeUnauthorized,
				"missing API key: provide X-API-Key header or Authorization: Bearer <key>"))
			return
		}

		got := sha256.Sum256([]byte(key))
		valid := 0
		for _, d := range digests {
			valid |= subtle.ConstantTimeCompare(got[:], d[:])
		}
		if valid != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, failure(models.ErrCodeUnauthorized, "invalid API key"))
			return
		}

		// Rate limiting keys on the digest so raw keys never sit in memory maps.
		c.Set(identityKey, "key:"+hex.EncodeToString(got[:8]))
		c.Next()
	}
}

// extractAPIKey tries X-API-Key first, then Authorization: Bearer.
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
