// Package retrylimit wraps calls to a rate-limited remote API (the chat
// platform's application-command endpoints) in an adaptive limiter and an
// exponential-backoff retry loop.
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	cfg := retrylimit.DefaultRetryConfig()
//	cfg.Logger = log
//	err := retrylimit.WithRetryConfig(ctx, createCommand, lim, cfg)
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter manages a rate limit that adjusts automatically based
// on the outcome of requests. It increases on success and decreases on
// errors. Thread-safe and works with any error types.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
}

// NewAdaptiveLimiter creates an AdaptiveLimiter with the given configuration.
//
// Parameters:
//   - initial: starting requests per second
//   - minLimit: minimum allowed rate
//   - maxLimit: maximum allowed rate
//   - stepUp: increment on success
//   - stepDown: multiplier applied on failure (e.g., 0.5 to halve)
func NewAdaptiveLimiter(initial, minLimit, maxLimit rate.Limit, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if initial < 1 {
		initial = 1
	}
	if minLimit < 1 {
		minLimit = 1
	}
	burst := max(1, int(initial))
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burst),
		minLimit: minLimit,
		maxLimit: maxLimit,
		stepUp:   stepUp,
		stepDown: stepDown,
	}
}

// Wait blocks until a token is available or the context is canceled.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.limiter.Wait(ctx)
}

// Success increases the rate after a successful request.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > 10*time.Second {
		a.adjustLimit(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited reduces the rate after a failure or server response indicating overload.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	newLimit := rate.Limit(float64(a.limiter.Limit()) * a.stepDown)
	a.adjustLimit(newLimit)
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

// CurrentBurst returns the current burst size.
func (a *AdaptiveLimiter) CurrentBurst() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limiter.Burst()
}

// MaxLimit returns the configured maximum rate.
func (a *AdaptiveLimiter) MaxLimit() rate.Limit { return a.maxLimit }

// MinLimit returns the configured minimum rate.
func (a *AdaptiveLimiter) MinLimit() rate.Limit { return a.minLimit }

// adjustLimit sets the limiter to a new rate, respecting min/max boundaries.
func (a *AdaptiveLimiter) adjustLimit(newLimit rate.Limit) {
	oldLimit := a.limiter.Limit()

	if newLimit > a.maxLimit {
		newLimit = a.maxLimit
	} else if newLimit < a.minLimit {
		newLimit = a.minLimit
	}

	if newLimit != oldLimit {
		a.limiter.SetLimit(newLimit)
		a.limiter.SetBurst(max(1, int(newLimit)))
	}
}

var ErrMaxAttempts = errors.New("max attempts exceeded")

// HTTPError interface for errors that carry HTTP status codes.
// Optional interface - errors don't need to implement this for basic retry.
type HTTPError interface {
	error
	StatusCode() int
}

// FatalError wraps errors that should stop retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// ErrorClassifier allows custom error classification for retry logic.
// Return true if the error should trigger rate limiting.
type ErrorClassifier func(error) bool

// DefaultClassifier provides HTTP-aware error classification.
// Returns true for 429 (rate limit) and 5xx (server errors).
func DefaultClassifier(err error) bool {
	return isRateLimitError(err) || isServerError(err)
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts     int                          // Maximum number of attempts (0 = unlimited, capped at 100)
	InitialDelay    time.Duration                // Initial delay between retries
	MaxDelay        time.Duration                // Maximum delay between retries
	RateLimitDelay  time.Duration                // Fixed delay for rate limit errors
	Multiplier      float64                      // Delay multiplier for exponential backoff
	Jitter          bool                         // Add random jitter to prevent thundering herd
	ErrorClassifier ErrorClassifier              // Custom error classifier (nil = use DefaultClassifier)
	OnRetry         func(attempt int, err error) // Optional callback on each retry
	Logger          zerolog.Logger
}

// DefaultRetryConfig returns a sensible default configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     100,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		RateLimitDelay:  100 * time.Millisecond,
		Multiplier:      2.0,
		Jitter:          true,
		ErrorClassifier: DefaultClassifier,
		Logger:          zerolog.Nop(),
	}
}

// WithRetryConfig executes fn with exponential backoff and optional adaptive
// rate limiting. Stops retrying if:
//   - fn returns nil (success)
//   - fn returns FatalError
//   - context is cancelled or expires
//   - maximum attempts is reached (if configured)
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5)
//	err := retrylimit.WithRetryConfig(ctx, func() error { return MyRequest() }, lim, retrylimit.DefaultRetryConfig())
func WithRetryConfig(ctx context.Context, fn func() error, lim *AdaptiveLimiter, cfg RetryConfig) error {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 100 // safety limit for "unlimited"
	}
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = DefaultClassifier
	}

	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Wait for rate limiter permission before making request
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			if lim != nil {
				lim.Success()
				if attempt > 1 {
					cfg.Logger.Info().Int("attempt", attempt).Float64("rps", lim.CurrentLimit()).Msg("retry succeeded")
				}
			}
			return nil
		}

		// Check for fatal errors
		if isFatalError(err) {
			return err
		}

		// Call user callback if provided
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		// Handle rate limit errors with special treatment
		if isRateLimitError(err) {
			if lim != nil {
				lim.RateLimited()
				cfg.Logger.Warn().Int("attempt", attempt).Float64("rps", lim.CurrentLimit()).Msg("rate limited")
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.RateLimitDelay):
			}
			continue
		}

		// Handle server errors or errors matching custom classifier
		shouldRateLimit := cfg.ErrorClassifier(err)
		if shouldRateLimit && lim != nil {
			lim.RateLimited()
		}

		cfg.Logger.Warn().Err(err).Int("attempt", attempt).Bool("server_error", isServerError(err)).
			Dur("sleep", delay).Msg("request failed")

		// Calculate next delay with optional jitter
		nextDelay := delay
		if cfg.Jitter {
			nextDelay = addJitter(delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(nextDelay):
		}

		// Increase delay for next attempt
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("%w (%d)", ErrMaxAttempts, cfg.MaxAttempts)
}

// addJitter adds random jitter (0-25% of delay) to prevent thundering herd problem.
func addJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	quarter := int64(delay / 4)
	if quarter <= 0 {
		return delay
	}
	jitter := time.Duration(rand.Int64N(quarter))
	return delay + jitter
}

// isFatalError returns true if err is of type FatalError.
func isFatalError(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// isRateLimitError returns true if err implements HTTPError and code == 429.
func isRateLimitError(err error) bool {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode() == http.StatusTooManyRequests
	}
	return false
}

// isServerError returns true if err implements HTTPError and code is 5xx.
func isServerError(err error) bool {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode()
		return code >= 500 && code < 600
	}
	return false
}
