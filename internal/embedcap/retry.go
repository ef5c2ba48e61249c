package embedcap

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/EricBintner/codrag/internal/codraerr"
)

// RetryConfig controls WithRetry's exponential-backoff-with-jitter
// behavior. Grounded on the teacher's downloadWithRetry pattern
// (internal/embed/onnx/downloader.go) and original_source's OllamaEmbedder
// retry constants (base_delay_s = 0.35 * 2**attempt, jitter in [0, 0.25)).
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryConfig mirrors OllamaEmbedder's defaults: 4 attempts,
// 350ms base delay doubling each attempt, up to 250ms jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   350 * time.Millisecond,
		MaxJitter:   250 * time.Millisecond,
	}
}

// TransientError marks an error as retryable (e.g. HTTP 5xx, connection
// reset, malformed response). WithRetry only retries errors satisfying
// this; anything else propagates immediately as permanent.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return "transient: " + e.Cause.Error() }
func (e *TransientError) Unwrap() error { return e.Cause }

// WithRetry invokes fn up to cfg.MaxAttempts times, retrying only while fn
// returns a *TransientError, waiting an exponentially growing backoff plus
// random jitter between attempts. A non-transient error or context
// cancellation aborts immediately. Exhausting all attempts returns a
// codraerr.TransientExternal error wrapping the last cause.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(0)
			if cfg.MaxJitter > 0 {
				jitter = time.Duration(rand.Int63n(int64(cfg.MaxJitter)))
			}
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var transient *TransientError
		if !asTransient(err, &transient) {
			return err
		}
		lastErr = transient.Cause

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return codraerr.Wrap(codraerr.TransientExternal, fmt.Sprintf("failed after %d attempts", cfg.MaxAttempts), lastErr)
}

func asTransient(err error, target **TransientError) bool {
	for err != nil {
		if t, ok := err.(*TransientError); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
