package middlewares

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newLimitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/", rl.ByIP(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return r
}

func hit(r *gin.Engine, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = addr

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	r := newLimitedRouter(rl)

	for i := 0; i < 3; i++ {
		if w := hit(r, "10.0.0.1:4000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}

	w := hit(r, "10.0.0.1:4000")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit request: status %d, want 429", w.Code)
	}

	// a different client is unaffected
	if w := hit(r, "10.0.0.2:4000"); w.Code != http.StatusOK {
		t.Fatalf("separate client: status %d", w.Code)
	}
}

func TestRateLimiterEvictsStaleBuckets(t *testing.T) {
	rl := NewRateLimiter(5, 15*time.Millisecond)
	r := newLimitedRouter(rl)

	for i := 0; i < 8; i++ {
		hit(r, fmt.Sprintf("10.0.0.%d:4000", i+1))
	}

	time.Sleep(30 * time.Millisecond)

	// the first request of a fresh window sweeps the dead buckets
	hit(r, "10.0.1.1:4000")

	rl.mu.Lock()
	n := len(rl.clients)
	rl.mu.Unlock()

	if n != 1 {
		t.Fatalf("bucket map holds %d entries, want only the live one", n)
	}
}
