// guard.go composes rate limiting, circuit breaking, and retry/backoff
// around a single vendor call, the way the teacher's
// internal/providers/guards/guard.go composes ProviderGuard.Execute — but
// built on the real third-party libraries the pack's go.mod already
// carries (sony/gobreaker, golang.org/x/time/rate) instead of the
// teacher's hand-rolled CircuitBreaker/RateLimiter.
package databento

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
)

// CallError carries vendor call disposition so the caller (and the
// orchestrator) can distinguish retryable transient errors from fatal
// non-retryable ones (spec §7 error-kind table).
type CallError struct {
	StatusCode int
	Message    string
	Retryable  bool
	RetryAfter time.Duration
}

func (e *CallError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("vendor call failed (status %d): %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("vendor call failed (status %d): %s", e.StatusCode, e.Message)
}

// Guard wraps vendor HTTP calls with a token-bucket rate limiter, a
// gobreaker circuit breaker, and exponential backoff with jitter bounded
// by config.RetryConfig.
type Guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retry   config.RetryConfig
}

// NewGuard builds a Guard. rps/burst shape the vendor's published rate
// limit; retry shapes the backoff protocol (spec §4.1).
func NewGuard(retry config.RetryConfig, rps float64, burst int) *Guard {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	st := gobreaker.Settings{
		Name:        "databento",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     retry.MaxDelay(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(retry.MaxAttempts)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("vendor circuit breaker state change")
		},
	}
	return &Guard{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		retry:   retry,
	}
}

// Execute runs fn with rate limiting, circuit breaking, and retry/backoff.
// fn returns the raw HTTP response; Execute turns a non-2xx status into a
// *CallError classified by retry_on_status. A plain error from fn
// (connection reset, timeout) is retried as transient unless ctx is done.
// A non-retryable status returns the response together with its *CallError.
func (g *Guard) Execute(ctx context.Context, fn func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt, lastErr)
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("retrying vendor call")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		result, err := g.breaker.Execute(func() (interface{}, error) {
			resp, err := fn(ctx)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			retryable := g.retry.IsRetryableStatus(resp.StatusCode)
			ce := &CallError{
				StatusCode: resp.StatusCode,
				Message:    resp.Status,
				Retryable:  retryable,
				RetryAfter: extractRetryAfter(resp.Header.Get("Retry-After")),
			}
			if !retryable {
				// Non-retryable status: surface the response body to the
				// caller (e.g. 4xx auth) without further attempts.
				return resp, ce
			}
			return nil, ce
		})

		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &CallError{Message: "circuit breaker open", Retryable: false}
		}

		var ce *CallError
		if errors.As(err, &ce) {
			if !ce.Retryable {
				if result != nil {
					return result.(*http.Response), ce
				}
				return nil, ce
			}
			lastErr = ce
			continue
		}

		// Network-level error (connection reset, timeout): treated as
		// transient unless ctx itself is done.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, fmt.Errorf("vendor call exhausted %d attempts: %w", g.retry.MaxAttempts, lastErr)
}

// backoff computes exponential delay with +/-25% jitter, capped at
// retry.max_delay, honoring a server Retry-After hint when present and
// config.RespectRetryAfter is set (spec §4.1, §4.2).
func (g *Guard) backoff(attempt int, lastErr error) time.Duration {
	var ce *CallError
	if g.retry.RespectRetryAfter && errors.As(lastErr, &ce) && ce.RetryAfter > 0 {
		return ce.RetryAfter
	}

	base := float64(g.retry.BaseDelay())
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= g.retry.Multiplier
	}
	if max := float64(g.retry.MaxDelay()); delay > max {
		delay = max
	}
	jitter := delay * 0.25
	delay = delay - jitter + rand.Float64()*2*jitter
	return time.Duration(delay)
}

func extractRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}
