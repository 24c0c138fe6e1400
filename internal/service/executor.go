package service

import (
	"context"
	"errors"
	"time"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/metrics"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
	"github.com/urevent360-byte/urevent360-plus/pkg/retry"
	"go.uber.org/zap"
)

const (
	// a lost optimistic write is refetched and retried once
	versionConflictAttempts = 2
	// store outages get three attempts in total
	storeUnavailableAttempts = 3
)

// RetryConfig tunes how whole operations are retried
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// executor runs an operation as read, verify, conditional write and retries it
// from the top when the write lost a race or the store was briefly unavailable
type executor struct {
	retrier *retry.Retrier
	log     *logger.Logger
}

func newExecutor(cfg *RetryConfig, log *logger.Logger) *executor {
	initial := 50 * time.Millisecond
	maxInterval := time.Second
	if cfg != nil {
		if cfg.InitialInterval > 0 {
			initial = cfg.InitialInterval
		}
		if cfg.MaxInterval > 0 {
			maxInterval = cfg.MaxInterval
		}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &executor{
		retrier: retry.New(&retry.Config{
			MaxRetries:      storeUnavailableAttempts - 1,
			InitialInterval: initial,
			MaxInterval:     maxInterval,
			Multiplier:      2.0,
			JitterFactor:    0.2,
			RetryIf:         shouldRetry,
		}),
		log: log,
	}
}

func shouldRetry(err error, attempt int) bool {
	switch {
	case errors.Is(err, domain.ErrVersionConflict):
		return attempt < versionConflictAttempts
	case errors.Is(err, domain.ErrStoreUnavailable):
		return attempt < storeUnavailableAttempts
	default:
		return false
	}
}

// run executes fn with retry. fn must reload everything it depends on.
func (e *executor) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	res := e.retrier.DoWithCallback(ctx, fn, func(attempt int, err error, next time.Duration) {
		reason := "store_unavailable"
		if errors.Is(err, domain.ErrVersionConflict) {
			reason = "version_conflict"
		}
		metrics.RecordStoreRetry(ctx, operation, reason)
		e.log.WarnContext(ctx, "retrying operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})

	metrics.RecordOperationDuration(ctx, operation, time.Since(start), res.Err == nil)
	if errors.Is(res.Err, domain.ErrVersionConflict) {
		metrics.RecordVersionConflict(ctx, operation)
	}
	return res.Err
}
