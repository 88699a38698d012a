package middleware

import (
	"net/http"
	"sync"
	"time"

	apperrors "github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/errors"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key (client IP or member id).
type RateLimiter struct {
	keys  map[string]*rateLimiterEntry
	mu    sync.Mutex
	r     rate.Limit
	burst int
	idle  time.Duration
	stop  chan struct{}
	once  sync.Once
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows r events per second with the given burst. Buckets
// idle for three minutes are dropped.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		keys:  make(map[string]*rateLimiterEntry),
		r:     r,
		burst: burst,
		idle:  3 * time.Minute,
		stop:  make(chan struct{}),
	}
	go rl.cleanup(time.Minute)
	return rl
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, entry := range rl.keys {
				if now.Sub(entry.lastSeen) > rl.idle {
					delete(rl.keys, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// GetLimiter returns the bucket for key, creating it on first use.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.keys[key]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.keys[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByIP charges the client IP.
func ByIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByMember charges the authenticated messaging identity, falling back to IP.
func ByMember(c *gin.Context) string {
	if id := c.GetString(UserIDKey); id != "" {
		return "member:" + id
	}
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware rejects requests once the key's bucket is empty.
func RateLimitMiddleware(limiter *RateLimiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if !limiter.GetLimiter(k).Allow() {
			logger.Warn().
				Str("key", k).
				Str("path", c.Request.URL.Path).
				Msg("Rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": apperrors.ErrRateLimit.Message,
			})
			return
		}
		c.Next()
	}
}

// Limits configures the limiters the API uses.
type Limits struct {
	// General is per client IP across the whole API.
	General *RateLimiter
	// Chat is per member on message sending.
	Chat *RateLimiter
}

// DefaultLimits: 600 requests per minute per IP and 30 messages per minute
// per member.
func DefaultLimits() Limits {
	return Limits{
		General: NewRateLimiter(rate.Limit(10.0), 50),
		Chat:    NewRateLimiter(rate.Limit(30.0/60.0), 10),
	}
}

// Stop releases both limiters.
func (l Limits) Stop() {
	if l.General != nil {
		l.General.Stop()
	}
	if l.Chat != nil {
		l.Chat.Stop()
	}
}
