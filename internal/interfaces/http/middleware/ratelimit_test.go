package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mxi/presale/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestRateLimiter_TokenBucket(t *testing.T) {
	clock := &fakeClock{t: authEpoch}
	rl := newRateLimiter(2, time.Minute, clock.now)

	ok, remaining := rl.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, remaining = rl.Allow("a")
	assert.True(t, ok)
	assert.Zero(t, remaining)
	ok, _ = rl.Allow("a")
	assert.False(t, ok)

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "keys are independent")

	// one token refills every period/limit
	clock.t = clock.t.Add(30 * time.Second)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.False(t, ok)

	clock.t = clock.t.Add(time.Minute)
	ok, remaining = rl.Allow("a")
	assert.True(t, ok, "bucket refills to capacity")
	assert.Equal(t, 1, remaining)
}

func TestRateLimiter_Sweep(t *testing.T) {
	clock := &fakeClock{t: authEpoch}
	rl := newRateLimiter(1, time.Minute, clock.now)
	rl.Allow("a")
	clock.t = clock.t.Add(30 * time.Second)
	rl.Allow("b")

	clock.t = clock.t.Add(40 * time.Second)
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.buckets, "a")
	assert.Contains(t, rl.buckets, "b")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(10, time.Second)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestRateLimit_Middleware(t *testing.T) {
	clock := &fakeClock{t: authEpoch}
	rl := newRateLimiter(1, time.Minute, clock.now)

	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Account"); id != "" {
			c.Set(AccountIDKey, id)
		}
		c.Next()
	}, RateLimit(rl))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(account string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if account != "" {
			req.Header.Set("X-Test-Account", account)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do("")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, dto.ErrCodeRateLimited, decodeResponse(t, w).Error.Code)
	assert.Equal(t, "61", w.Header().Get("Retry-After"))

	// same IP but authenticated, so a separate bucket
	assert.Equal(t, http.StatusOK, do("acct-1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do("acct-1").Code)
}
