package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupTestRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func get(router *gin.Engine, remote string) int {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestCORS(t *testing.T) {
	router := setupTestRouter(CORS(DefaultCORSConfig("http://localhost:8000/")))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"own origin", "GET", "http://localhost:8000", http.StatusOK, "http://localhost:8000"},
		{"preflight", "OPTIONS", "http://localhost:8000", http.StatusNoContent, "http://localhost:8000"},
		{"foreign origin", "GET", "https://evil.test", http.StatusForbidden, ""},
		{"no origin header", "GET", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == "OPTIONS" {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestDefaultCORSConfig(t *testing.T) {
	tests := []struct {
		root        string
		want        []string
		credentials bool
	}{
		{"http://localhost:8000/", []string{"http://localhost:8000"}, true},
		{"https://host.test/ext/pages/", []string{"https://host.test"}, true},
		{"not a url", []string{"*"}, false},
		{"", []string{"*"}, false},
	}
	for _, tt := range tests {
		cfg := DefaultCORSConfig(tt.root)
		assert.Equal(t, tt.want, cfg.AllowOrigins, tt.root)
		assert.Equal(t, tt.credentials, cfg.AllowCredentials, tt.root)
		assert.Equal(t, 12*time.Hour, cfg.MaxAge)
	}
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	// Burst capacity first
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, get(router, "192.168.1.1:1234"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(router, "192.168.1.1:1234"))
	assert.Equal(t, http.StatusOK, get(router, "192.168.1.2:1234"), "other clients keep their own bucket")
}

func TestRateLimitForgetsIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	l := newLimiters(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, func() time.Time { return now })

	l.get("a")
	l.get("b")
	assert.Equal(t, 2, l.size())

	now = now.Add(idleAfter / 2)
	l.get("b")

	now = now.Add(idleAfter/2 + time.Second)
	l.get("c")
	assert.Equal(t, 2, l.size(), "a was idle and is dropped, b was seen recently")
}

func TestGlobalRateLimit(t *testing.T) {
	router := setupTestRouter(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	assert.Equal(t, http.StatusOK, get(router, "192.168.1.1:1234"))
	assert.Equal(t, http.StatusOK, get(router, "192.168.1.2:1234"))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "192.168.1.3:1234"))
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	assert.Equal(t, 100, cfg.RequestsPerSecond)
	assert.Equal(t, 200, cfg.Burst)
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter(RateLimit(DefaultRateLimitConfig()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
