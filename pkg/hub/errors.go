package hub

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout indicates that a single hub request hit the configured request timeout.
// It is retriable and surfaces wrapped inside AllHubsFailedError when every attempt
// timed out.
var ErrTimeout = errors.New("hub request timed out")

// AllHubsFailedError indicates that every configured hub failed for every retry
// attempt. It is the only fatal error of the client.
type AllHubsFailedError struct {
	Attempts int
	LastErr  error
}

func (e *AllHubsFailedError) Error() string {
	return fmt.Sprintf("all hubs failed after %d attempts: %s", e.Attempts, e.LastErr)
}

// Unwrap returns the error of the last failed request.
func (e *AllHubsFailedError) Unwrap() error {
	return e.LastErr
}

// DecodeError indicates that a hub returned a 2xx response whose body could not
// be decoded.
type DecodeError struct {
	Hub string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from hub %s: %s", e.Hub, e.Err)
}

// Unwrap returns the underlying decoding error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RateLimitedError indicates that a hub answered 429 or reported an exhausted
// rate-limit window. Requests suspend until RetryAfter has passed.
type RateLimitedError struct {
	Hub        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("hub %s rate limited, retry after %s", e.Hub, e.RetryAfter)
}
