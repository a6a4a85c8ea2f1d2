package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"formsmith/internal/engine/permissions"
	"formsmith/internal/pkg/errors"
	"formsmith/internal/platform/config"
)

// Limit classes.
const (
	LimitSubmit   = "submit"
	LimitAPIRead  = "api_read"
	LimitAPIWrite = "api_write"
)

type RateLimiter struct {
	store  *sync.Map // map[string]*Bucket
	limits map[string]int
	done   chan struct{}
	now    func() time.Time
}

type Bucket struct {
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
	// for cleanup of idle buckets
	lastAccess time.Time
}

// NewRateLimiter builds per-minute token buckets for each limit class.
// Call Stop to end the cleanup goroutine.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		store: &sync.Map{},
		limits: map[string]int{
			LimitSubmit:   cfg.SubmitPerMinute,
			LimitAPIRead:  cfg.APIReadPerMinute,
			LimitAPIWrite: cfg.APIWritePerMinute,
		},
		done: make(chan struct{}),
		now:  time.Now,
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) Stop() {
	close(rl.done)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}
		now := rl.now()
		rl.store.Range(func(key, value interface{}) bool {
			bucket := value.(*Bucket)
			bucket.mu.Lock()
			if now.Sub(bucket.lastAccess) > 10*time.Minute {
				rl.store.Delete(key)
			}
			bucket.mu.Unlock()
			return true
		})
	}
}

func (rl *RateLimiter) Allow(key string, limit int) bool {
	now := rl.now()

	val, _ := rl.store.LoadOrStore(key, &Bucket{
		tokens:     limit,
		lastRefill: now,
		lastAccess: now,
	})

	bucket := val.(*Bucket)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.lastAccess = now

	// refill at limit per minute
	elapsed := now.Sub(bucket.lastRefill)
	refillRate := float64(limit) / 60.0
	refillTokens := int(elapsed.Seconds() * refillRate)

	if refillTokens > 0 {
		if bucket.tokens+refillTokens > limit {
			bucket.tokens = limit
		} else {
			bucket.tokens += refillTokens
		}
		bucket.lastRefill = now
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}

	return false
}

// Limit throttles a route per business when a scope is on the context and
// per client IP otherwise. A non-positive configured limit disables it.
func (rl *RateLimiter) Limit(limitType string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			limit := rl.limits[limitType]
			if limit <= 0 {
				next(w, r)
				return
			}

			var key string
			if scope, ok := permissions.ScopeFromContext(r.Context()); ok {
				key = fmt.Sprintf("%s:%s", scope.BusinessID, limitType)
			} else {
				key = fmt.Sprintf("%s:%s", clientIP(r), limitType)
			}

			if !rl.Allow(key, limit) {
				w.Header().Set("Retry-After", "60")
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
