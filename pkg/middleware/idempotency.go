package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
)

const (
	IdempotencyKeyHeader  = "X-Idempotency-Key"
	IdempotencyKeyPrefix  = "portal:idempotency:"
	DefaultIdempotencyTTL = 24 * time.Hour
)

type idempotencyStatus string

const (
	statusProcessing idempotencyStatus = "processing"
	statusCompleted  idempotencyStatus = "completed"
)

type idempotencyRecord struct {
	Status       idempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code"`
	ResponseBody string            `json:"response_body"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RedisClient is the subset of go-redis used for idempotency records
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Redis RedisClient
	// TTL for completed records
	TTL time.Duration
	// ProcessingTTL bounds how long an in-flight marker blocks retries
	ProcessingTTL time.Duration
	// Required rejects write requests without a key. Otherwise they pass through.
	Required bool
}

// DefaultIdempotencyConfig returns default configuration
func DefaultIdempotencyConfig(rc RedisClient) *IdempotencyConfig {
	return &IdempotencyConfig{
		Redis:         rc,
		TTL:           DefaultIdempotencyTTL,
		ProcessingTTL: 30 * time.Second,
	}
}

// Idempotency replays the stored response for a repeated X-Idempotency-Key.
// Redis failures fail open.
func Idempotency(cfg *IdempotencyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			if cfg.Required {
				c.AbortWithStatusJSON(http.StatusBadRequest, response.ErrorBody("MISSING_IDEMPOTENCY_KEY", "X-Idempotency-Key header is required"))
				return
			}
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}
		hash := requestHash(c, body)
		redisKey := IdempotencyKeyPrefix + key
		ctx := c.Request.Context()

		existing, err := loadRecord(ctx, cfg.Redis, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}
		if existing != nil {
			replay(c, existing, hash)
			return
		}

		marker := &idempotencyRecord{Status: statusProcessing, RequestHash: hash, CreatedAt: time.Now()}
		if ok := storeRecord(ctx, cfg.Redis, redisKey, marker, cfg.ProcessingTTL, true); !ok {
			if existing, _ = loadRecord(ctx, cfg.Redis, redisKey); existing != nil {
				replay(c, existing, hash)
				return
			}
		}

		rw := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}, status: http.StatusOK}
		c.Writer = rw
		c.Next()

		// server errors are not cached so the client can retry with the same key
		if rw.status >= http.StatusInternalServerError {
			_ = cfg.Redis.Del(ctx, redisKey).Err()
			return
		}
		marker.Status = statusCompleted
		marker.ResponseCode = rw.status
		marker.ResponseBody = rw.body.String()
		storeRecord(ctx, cfg.Redis, redisKey, marker, cfg.TTL, false)
	}
}

func replay(c *gin.Context, rec *idempotencyRecord, hash string) {
	if rec.RequestHash != hash {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, response.ErrorBody("IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with a different request"))
		return
	}
	if rec.Status == statusProcessing {
		c.AbortWithStatusJSON(http.StatusConflict, response.ErrorBody("REQUEST_IN_PROGRESS", "A request with this idempotency key is still being processed"))
		return
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(rec.ResponseCode, "application/json; charset=utf-8", []byte(rec.ResponseBody))
	c.Abort()
}

type capturingWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestHash(c *gin.Context, body []byte) string {
	h := sha256.New()
	h.Write([]byte(c.Request.Method))
	h.Write([]byte(c.Request.URL.Path))
	if userID, ok := GetUserID(c); ok {
		h.Write([]byte(userID))
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func loadRecord(ctx context.Context, rc RedisClient, key string) (*idempotencyRecord, error) {
	raw, err := rc.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var rec idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func storeRecord(ctx context.Context, rc RedisClient, key string, rec *idempotencyRecord, ttl time.Duration, onlyIfAbsent bool) bool {
	data, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	if onlyIfAbsent {
		ok, err := rc.SetNX(ctx, key, string(data), ttl).Result()
		return err == nil && ok
	}
	return rc.Set(ctx, key, string(data), ttl).Err() == nil
}
