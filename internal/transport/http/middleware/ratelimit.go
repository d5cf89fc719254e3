package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"docqa/internal/logging"
	"docqa/internal/transport/http/response"
)

const limiterIdleTTL = 5 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-IP token bucket of perMinute requests per
// minute with a burst of the same size. Idle IPs are evicted every minute.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
	retry    string
	now      func() time.Time
}

// NewRateLimiter starts the eviction goroutine; call the returned stop
// function to end it.
func NewRateLimiter(perMinute int) (*RateLimiter, func()) {
	if perMinute <= 0 {
		perMinute = 60
	}
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		retry:    strconv.Itoa(max(1, 60/perMinute)),
		now:      time.Now,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	var once sync.Once
	return rl, func() { once.Do(func() { close(stopCh) }) }
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.allow(ip) {
			logging.FromContext(c.Request.Context()).Warn("rate limit exceeded",
				"ip", ip,
				"path", c.Request.URL.Path,
			)
			c.Header("Retry-After", rl.retry)
			response.Abort(c, http.StatusTooManyRequests, response.CodeTooManyRequests, "rate limit exceeded, please try again later")
			return
		}
		c.Next()
	}
}
