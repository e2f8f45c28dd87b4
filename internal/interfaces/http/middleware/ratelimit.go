package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per caller. The bucket holds limit
// tokens and refills at limit per period.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	period  time.Duration
	every   rate.Limit
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows limit requests per period for each key. Call Stop to
// end the background sweep.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := newRateLimiter(limit, period, time.Now)
	go rl.sweepLoop()
	return rl
}

func newRateLimiter(limit int, period time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		period:  period,
		every:   rate.Every(period / time.Duration(limit)),
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Allow takes one token for key and reports whether one was available
func (rl *RateLimiter) Allow(key string) (allowed bool, remaining int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	if !b.limiter.AllowN(now, 1) {
		return false, 0
	}
	return true, max(0, int(b.limiter.TokensAt(now)))
}

// Stop ends the background sweep
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(2 * rl.period)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep drops buckets idle for a full period; they would be full again anyway
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.period {
			delete(rl.buckets, key)
		}
	}
}

// RateLimit limits by authenticated account, falling back to client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string {
		if accountID := c.GetString(AccountIDKey); accountID != "" {
			return "account:" + accountID
		}
		return "ip:" + c.ClientIP()
	})
}

// RateLimitByKey limits with a custom key extractor
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining := limiter.Allow(keyFunc(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(limiter.period/time.Duration(limiter.limit)/time.Second)+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				dto.NewErrorResponseWithRequestID(dto.ErrCodeRateLimited, "Too many requests. Please try again later.", GetRequestID(c)))
			return
		}
		c.Next()
	}
}
