package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window per-client limiter, used on the
// session exchange endpoint to slow token-stuffing attempts.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	clients map[string]*clientBucket
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientBucket),
	}
}

// ByIP enforces the limit keyed on the caller's IP.
func (rl *RateLimiter) ByIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientIP(c)
		now := time.Now()

		rl.mu.Lock()

		b, ok := rl.clients[key]

		if !ok || now.After(b.windowEnd) {
			rl.evictExpired(now)

			rl.clients[key] = &clientBucket{
				count:     1,
				windowEnd: now.Add(rl.window),
			}

			rl.mu.Unlock()
			c.Next()
			return
		}

		if b.count >= rl.limit {
			retryAfter := int(time.Until(b.windowEnd).Seconds())

			if retryAfter < 0 {
				retryAfter = 0
			}

			rl.mu.Unlock()

			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "Too many requests. Please try again shortly.",
				"code":   "rate_limited",
			})

			return
		}

		b.count++
		rl.mu.Unlock()
		c.Next()
	}
}

// evictExpired drops buckets whose window has passed so the map does
// not grow with every address ever seen. Caller holds the lock.
func (rl *RateLimiter) evictExpired(now time.Time) {
	for k, b := range rl.clients {
		if now.After(b.windowEnd) {
			delete(rl.clients, k)
		}
	}
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
