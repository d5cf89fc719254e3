package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/pkg/jwtutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterEvictsIdleIPs(t *testing.T) {
	t.Parallel()
	rl, stop := NewRateLimiter(2)
	defer stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("1.1.1.1") || !rl.allow("1.1.1.1") {
		t.Fatal("burst of two should be allowed")
	}
	if rl.allow("1.1.1.1") {
		t.Fatal("third request in the same instant should be limited")
	}
	if !rl.allow("2.2.2.2") {
		t.Fatal("limits are per ip")
	}

	now = now.Add(limiterIdleTTL + time.Second)
	rl.evict()
	rl.mu.Lock()
	n := len(rl.limiters)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("limiters after evict = %d, want 0", n)
	}
}

func TestAuthJWTSetsUsername(t *testing.T) {
	t.Parallel()
	const secret = "test-secret"
	token, err := jwtutil.GenerateToken(secret, time.Minute, "alice")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	r := gin.New()
	r.GET("/me", AuthJWT(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsernameKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	t.Parallel()
	r := gin.New()
	r.POST("/", BodyLimit(4), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		body string
		want int
	}{
		{"abc", http.StatusNoContent},
		{"abcdef", http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("body %q: status = %d, want %d", tt.body, rec.Code, tt.want)
		}
	}
}
