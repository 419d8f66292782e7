package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// guard bounds and retries calls to an OpenAI-compatible endpoint. One guard
// is shared by the chat client and the embedder so both count against the
// same rate limit and concurrency budget.
type guard struct {
	limiter    *rate.Limiter
	sem        *semaphore.Weighted
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        *logger.Logger
}

func newGuard(ratePerSecond float64, burst int, concurrent int64, maxRetries int, baseDelay, maxDelay time.Duration, log *logger.Logger) *guard {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	if concurrent <= 0 {
		concurrent = 4
	}
	return &guard{
		limiter:    rate.NewLimiter(limit, burst),
		sem:        semaphore.NewWeighted(concurrent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		log:        log,
	}
}

// do runs call until it succeeds, fails with a non-retryable error or the
// retry budget is spent. observe, when set, sees every attempt.
func (g *guard) do(ctx context.Context, stage string, call func(ctx context.Context) error, observe func(err error, elapsed time.Duration)) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return callerErr(ctx, err)
	}
	defer g.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := exponentialBackoff(attempt, g.baseDelay, g.maxDelay)
			g.log.Warnw("llm_retry", "stage", stage, "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", lastErr)
			select {
			case <-ctx.Done():
				return callerErr(ctx, ctx.Err())
			case <-time.After(delay):
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return callerErr(ctx, err)
		}

		start := time.Now()
		err := call(ctx)
		if observe != nil {
			observe(err, time.Since(start))
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return err
		}
	}
	return lastErr
}

// upstreamErr maps a failed provider call onto the upstream sentinels.
func upstreamErr(callCtx context.Context, stage string, timeout time.Duration, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ports.ErrUpstreamTimeout, stage, timeout)
	}
	if status := httpStatus(err); status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: %s: %v", ports.ErrUpstreamUnavailable, stage, err)
	}
	return fmt.Errorf("llm: %s: %w", stage, err)
}

// callerErr reports a cancelled or expired caller context.
func callerErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ports.ErrUpstreamTimeout, err)
	}
	return err
}

func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func retryable(err error) bool {
	return errors.Is(err, ports.ErrUpstreamTimeout) || errors.Is(err, ports.ErrUpstreamUnavailable)
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if attempt <= 0 {
		return initial
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
