package google

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

// Retry defaults.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 15 * time.Second
)

// RetryConfig configures a Retrier.
type RetryConfig struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	// BaseDelay is the wait before the second attempt. It doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	Logger *slog.Logger
}

// Retrier retries transient Google API failures with exponential backoff.
type Retrier struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *slog.Logger
}

// NewRetrier creates a retrier, filling unset fields with defaults.
func NewRetrier(cfg RetryConfig) *Retrier {
	r := &Retrier{
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
		logger:    cfg.Logger,
	}
	if r.attempts <= 0 {
		r.attempts = DefaultAttempts
	}
	if r.baseDelay <= 0 {
		r.baseDelay = DefaultBaseDelay
	}
	if r.maxDelay <= 0 {
		r.maxDelay = DefaultMaxDelay
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned unchanged.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.attempts || !Retryable(err) || ctx.Err() != nil {
			return err
		}

		wait := r.delay(attempt, err)
		r.logger.Warn("retrying Google API call",
			"op", op,
			"attempt", attempt,
			"max_attempts", r.attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err)

		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// delay returns the wait after the given failed attempt. A Retry-After header
// on the error wins over the computed backoff. Both are capped at maxDelay.
func (r *Retrier) delay(attempt int, err error) time.Duration {
	wait := r.baseDelay << (attempt - 1)
	if d, ok := retryAfter(err); ok {
		wait = d
	}
	if wait <= 0 || wait > r.maxDelay {
		wait = r.maxDelay
	}
	return wait
}

func retryAfter(err error) (time.Duration, bool) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0, false
	}
	secs, convErr := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if convErr != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var retryableCodes = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Retryable reports whether err is a transient failure worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retryableCodes[gerr.Code]
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// IsGone reports whether err means the resource no longer exists.
func IsGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
}
