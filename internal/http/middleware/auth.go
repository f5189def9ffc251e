package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

// clientIDSalt keys the HMAC that turns API keys into stable client ids, so
// logs and the jobs table never carry raw keys.
const clientIDSalt = "dubwise-client-id-v1"

const clientIDContextKey = "clientId"

// AnonymousClient mirrors services.AnonymousClient; duplicated here so the
// middleware package does not import the services layer.
const AnonymousClient = "anonymous"

type AuthMiddleware struct {
	header string
	keys   map[string]bool
	log    *logger.Logger
}

func NewAuthMiddleware(header string, keys []string, baseLog *logger.Logger) *AuthMiddleware {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" {
			keySet[k] = true
		}
	}
	return &AuthMiddleware{
		header: header,
		keys:   keySet,
		log:    baseLog.With("Middleware", "AuthMiddleware"),
	}
}

// RequireKey enforces API-key auth. With no keys configured every caller is
// the anonymous client; otherwise the header must carry a configured key.
func (am *AuthMiddleware) RequireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(am.keys) == 0 {
			c.Set(clientIDContextKey, AnonymousClient)
			c.Next()
			return
		}
		key := c.GetHeader(am.header)
		if key == "" || !am.keys[key] {
			am.log.Warn("Rejected request with missing or unknown API key", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid API key", "code": "unauthorized"},
			})
			return
		}
		c.Set(clientIDContextKey, hashClientID(key))
		c.Next()
	}
}

// ClientID returns the hashed client id the auth middleware attached.
func ClientID(c *gin.Context) string {
	if v, ok := c.Get(clientIDContextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return AnonymousClient
}

func hashClientID(key string) string {
	mac := hmac.New(sha256.New, []byte(clientIDSalt))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
