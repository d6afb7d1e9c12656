package l1

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/vietddude/batchwatch/internal/core/config"
)

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = config.RetryConfig{
	MaxAttempts:     5,
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// Fatal (Code or Request issues)
	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionFatal
	}

	if strings.Contains(sLower, "not found") {
		return ActionFatal
	}

	// Default to Retry (Network, timeouts, 429/5xx, etc)
	return ActionRetry
}

// withRetry executes an RPC call with exponential backoff. The call is retried
// on transient errors up to cfg.MaxAttempts; fatal errors return immediately.
func withRetry(ctx context.Context, cfg config.RetryConfig, call func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if ClassifyError(err) == ActionFatal {
			return err // Stop immediately, do not retry
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, cfg)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &UnavailableError{Attempts: cfg.MaxAttempts, Err: lastErr}
}

func calculateBackoff(attempt int, cfg config.RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiple, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
