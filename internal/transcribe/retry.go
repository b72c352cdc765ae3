package transcribe

import (
	"context"
	"fmt"
	"time"
)

// Retrier wraps a Transcriber with bounded retries and exponential backoff.
// Attempts beyond the first double the previous delay, capped at maxBackoff.
type Retrier struct {
	inner      Transcriber
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	// onRetry is invoked before each retry attempt; used for instrumentation.
	onRetry func(attempt int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier wraps inner with up to maxRetries additional attempts. A
// non-positive backoff falls back to 500ms.
func NewRetrier(inner Transcriber, maxRetries int, backoff time.Duration) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Retrier{
		inner:      inner,
		maxRetries: maxRetries,
		backoff:    backoff,
		maxBackoff: 30 * time.Second,
		sleep:      sleepCtx,
	}
}

// OnRetry registers a callback fired before each retry.
func (r *Retrier) OnRetry(fn func(attempt int, err error)) {
	r.onRetry = fn
}

// Transcribe calls the wrapped provider, retrying transient failures until
// the retry budget or the context is exhausted.
func (r *Retrier) Transcribe(ctx context.Context, req Request) (Result, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if r.onRetry != nil {
				r.onRetry(attempt, lastErr)
			}
			delay := r.backoff << (attempt - 1)
			if delay > r.maxBackoff {
				delay = r.maxBackoff
			}
			if err := r.sleep(ctx, delay); err != nil {
				return Result{}, err
			}
		}

		res, err := r.inner.Transcribe(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}

	return Result{}, fmt.Errorf("transcription failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
