// Package eventprocessor has the single writer of message tables. It consumes
// process-event jobs, buffers inserts per table, and flushes them in batches.
package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/castsync/go-castsync/pkg/jobqueue"
)

// Config contains configuration attributes for an event processor.
type Config struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: time.Second,
	}
}

// Option modifies a configuration attribute.
type Option func(*Config) error

// WithBatchSize sets how many buffered rows trigger a flush.
func WithBatchSize(size int) Option {
	return func(c *Config) error {
		if size < 1 {
			return fmt.Errorf("batch size cannot be less than 1")
		}
		c.BatchSize = size
		return nil
	}
}

// WithBatchTimeout sets how long buffered rows may wait before a flush.
func WithBatchTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 {
			return fmt.Errorf("batch timeout must be positive")
		}
		c.BatchTimeout = timeout
		return nil
	}
}

// EventProcessor translates hub events into writes against the message tables.
type EventProcessor interface {
	// Start runs the flush daemon.
	Start() error
	// Stop flushes pending buffers and stops the daemon.
	Stop()
	// Handle is the jobqueue handler of the process-event queue.
	Handle(ctx context.Context, job jobqueue.Job) error
}
