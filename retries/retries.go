// Package retries implements a small bounded-retry helper with exponential
// backoff. It is used by readiness probes only; the flush path deliberately
// does not retry (unflushed data stays buffered until the next trigger).
package retries

import (
	"context"
	"errors"
	"time"

	"github.com/aws/smithy-go"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 100 * time.Millisecond

	HealthAttempts  = 2
	HealthBaseDelay = 50 * time.Millisecond
)

// Retry runs fn up to attempts times, doubling the delay between attempts.
// It stops early when fn succeeds, when retriable reports the error as
// permanent, or when ctx is done.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error, retriable func(error) bool) error {
	var err error
	delay := baseDelay

	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retriable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}

// IsRetriableS3Error reports whether an S3 call is worth re-attempting:
// throttling and service-side transients are; auth and permission errors
// are not.
func IsRetriableS3Error(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return true
		}
		return false
	}
	// Not an API error: connection-level failure, assume transient.
	return true
}
