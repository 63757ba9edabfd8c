package hub

import (
	"context"
	"net/http"
	"time"
)

// Config contains configuration attributes for the hub client.
type Config struct {
	RateLimitDelay time.Duration
	MaxRetries     int
	RequestTimeout time.Duration
}

// DefaultConfig returns the default configuration for the hub client.
func DefaultConfig() *Config {
	return &Config{
		RateLimitDelay: time.Second,
		MaxRetries:     3,
		RequestTimeout: time.Second * 30,
	}
}

// Option modifies a configuration attribute.
type Option func(*Config) error

// WithRateLimitDelay limits the rate of requests to a hub by forcing a minimum
// delay between consecutive requests.
func WithRateLimitDelay(delay time.Duration) Option {
	return func(c *Config) error {
		c.RateLimitDelay = delay
		return nil
	}
}

// WithMaxRetries changes the total number of attempts for a request. Each attempt
// tries every configured hub once.
func WithMaxRetries(retries int) Option {
	return func(c *Config) error {
		c.MaxRetries = retries
		return nil
	}
}

// WithRequestTimeout changes the timeout of a single hub request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.RequestTimeout = timeout
		return nil
	}
}

// Endpoint is a single hub to fetch from. Endpoints are tried in order; the
// request transform, when present, is applied to every outgoing request and is
// typically used to attach auth headers.
type Endpoint struct {
	Name             string
	URL              string
	RequestTransform func(r *http.Request)
}

// PageRequest has the pagination attributes of by-fid endpoints.
type PageRequest struct {
	PageSize  int
	PageToken string
	Reverse   bool
}

// GetEventsRequest has the attributes for fetching a page of the event stream.
type GetEventsRequest struct {
	FromEventID uint64
	PageSize    int
}

// Client defines the API for fetching messages and events from the configured hubs.
type Client interface {
	GetHubInfo(ctx context.Context) (Info, error)
	GetEvents(ctx context.Context, req GetEventsRequest) (EventsPage, error)

	GetCastsByFID(ctx context.Context, fid uint64, req PageRequest) (MessagesPage, error)
	GetReactionsByFID(ctx context.Context, fid uint64, req PageRequest) (MessagesPage, error)
	GetLinksByFID(ctx context.Context, fid uint64, req PageRequest) (MessagesPage, error)
	GetVerificationsByFID(ctx context.Context, fid uint64, req PageRequest) (MessagesPage, error)
	GetUserDataByFID(ctx context.Context, fid uint64, req PageRequest) (MessagesPage, error)
	GetOnChainSignersByFID(ctx context.Context, fid uint64, req PageRequest) (OnChainEventsPage, error)

	GetAllCastsByFID(ctx context.Context, fid uint64) ([]Message, error)
	GetAllReactionsByFID(ctx context.Context, fid uint64) ([]Message, error)
	GetAllLinksByFID(ctx context.Context, fid uint64) ([]Message, error)
	GetAllVerificationsByFID(ctx context.Context, fid uint64) ([]Message, error)
	GetAllUserDataByFID(ctx context.Context, fid uint64) ([]Message, error)
	GetAllOnChainSignersByFID(ctx context.Context, fid uint64) ([]OnChainEvent, error)
}
