// Package sink delivers telemetry records to their destination.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"resmon/internal/telemetry"
)

// maxRetries is the number of immediate retries after a failed network send.
const maxRetries = 1

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// DeliveryError is returned once every attempt to deliver a batch failed.
type DeliveryError struct {
	Sink     string
	Rows     int
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %d rows not delivered after %d attempts: %v", e.Sink, e.Rows, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// withRetry runs op, retrying it once immediately on failure.
func withRetry(ctx context.Context, log *slog.Logger, sink string, rows int, op func() error) error {
	attempts := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxRetries), ctx)
	err := backoff.RetryNotify(func() error {
		attempts++
		return op()
	}, policy, func(err error, _ time.Duration) {
		log.Warn("send failed, retrying once", "sink", sink, "rows", rows, "error", err)
	})
	if err != nil {
		return &DeliveryError{Sink: sink, Rows: rows, Attempts: attempts, Err: err}
	}
	return nil
}

// writeNDJSON encodes rows as newline-delimited JSON.
func writeNDJSON(w io.Writer, rows []telemetry.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}
