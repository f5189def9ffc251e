package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

// RateLimiter is an in-process fixed-window limiter keyed by client id. Each
// API replica enforces its own budget.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	windows   map[string]*window
	now       func() time.Time
	log       *logger.Logger
}

type window struct {
	start time.Time
	count int
}

func NewRateLimiter(perMinute int, baseLog *logger.Logger) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		windows:   make(map[string]*window),
		now:       time.Now,
		log:       baseLog.With("Middleware", "RateLimiter"),
	}
}

func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.perMinute <= 0 {
			c.Next()
			return
		}
		key := ClientID(c)
		if key == AnonymousClient {
			key = AnonymousClient + "|" + c.ClientIP()
		}
		if !rl.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"message": "rate limit exceeded", "code": "rate_limited"},
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	minute := rl.now().Truncate(time.Minute)
	w, ok := rl.windows[key]
	if !ok || w.start != minute {
		// New minute; old windows for other clients are dropped lazily.
		if len(rl.windows) > 10000 {
			rl.windows = make(map[string]*window)
		}
		w = &window{start: minute}
		rl.windows[key] = w
	}
	if w.count >= rl.perMinute {
		return false
	}
	w.count++
	return true
}
