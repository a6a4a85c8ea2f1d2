package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"formsmith/internal/platform/config"
)

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{SubmitPerMinute: 2})
	defer rl.Stop()

	clock := time.Now()
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("k", 2))
	assert.True(t, rl.Allow("k", 2))
	assert.False(t, rl.Allow("k", 2))
	assert.True(t, rl.Allow("other", 2), "buckets are per key")

	clock = clock.Add(30 * time.Second)
	assert.True(t, rl.Allow("k", 2))
}

func TestLimitByClientIP(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{SubmitPerMinute: 1})
	defer rl.Stop()

	h := rl.Limit(LimitSubmit)(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) })

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusCreated, send("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001"))
	assert.Equal(t, http.StatusCreated, send("10.0.0.2:5000"))

	unlimited := rl.Limit(LimitAPIRead)(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		unlimited(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}
