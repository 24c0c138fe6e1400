package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
)

const testSecret = "test-secret"

// fakeRedis is an in-memory RedisClient
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTAuth(t *testing.T) {
	hostToken, err := GenerateToken(testSecret, "urevent360", "u-1", "host@example.com", RoleHost, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(testSecret, "urevent360", "u-1", "host@example.com", RoleHost, -time.Hour)
	require.NoError(t, err)
	badRole, err := GenerateToken(testSecret, "urevent360", "u-1", "x@example.com", "superuser", time.Hour)
	require.NoError(t, err)
	wrongKey, err := GenerateToken("other", "urevent360", "u-1", "x@example.com", RoleAdmin, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		optional   bool
		header     string
		wantStatus int
		wantRole   string
	}{
		{name: "valid host", header: "Bearer " + hostToken, wantStatus: http.StatusOK, wantRole: RoleHost},
		{name: "missing required", wantStatus: http.StatusUnauthorized},
		{name: "missing optional is guest", optional: true, wantStatus: http.StatusOK, wantRole: RoleGuest},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "unknown role", header: "Bearer " + badRole, wantStatus: http.StatusUnauthorized},
		{name: "wrong signature", header: "Bearer " + wrongKey, wantStatus: http.StatusUnauthorized},
		{name: "malformed header", header: "Token abc", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			var gotRole string
			r.GET("/me", JWTAuth(&AuthConfig{Secret: testSecret, Issuer: "urevent360", Optional: tt.optional}), func(c *gin.Context) {
				gotRole = GetRole(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantRole != "" {
				assert.Equal(t, tt.wantRole, gotRole)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger(logger.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	calls := 0
	r := gin.New()
	r.POST("/leads", Idempotency(DefaultIdempotencyConfig(newFakeRedis())), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/leads", strings.NewReader(body))
		req.Header.Set(IdempotencyKeyHeader, "k-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send(`{"a":1}`)
	second := send(`{"a":1}`)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	reused := send(`{"a":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	calls := 0
	r := gin.New()
	r.POST("/x", Idempotency(DefaultIdempotencyConfig(newFakeRedis())), func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})
	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ServerErrorNotCached(t *testing.T) {
	rc := newFakeRedis()
	calls := 0
	r := gin.New()
	r.POST("/x", Idempotency(DefaultIdempotencyConfig(rc)), func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(IdempotencyKeyHeader, "k-2")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}
