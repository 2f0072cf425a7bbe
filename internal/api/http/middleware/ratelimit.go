package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key (client IP by default).
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	keyFunc  func(*gin.Context) string
	now      func() time.Time
}

// NewRateLimiter allows burst requests and then one every interval per key.
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(interval),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		keyFunc:  func(c *gin.Context) string { return c.ClientIP() },
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	if len(rl.visitors) > 1024 {
		for k, other := range rl.visitors {
			if now.Sub(other.lastSeen) > rl.idleTTL {
				delete(rl.visitors, k)
			}
		}
	}

	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.FullPath() + "|" + rl.keyFunc(c)) {
			c.Header("Retry-After", "60")
			apierrors.Abort(c, http.StatusTooManyRequests, apierrors.MsgTooManyRequests, "")
			return
		}
		c.Next()
	}
}
