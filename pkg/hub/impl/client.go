package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/castsync/go-castsync/pkg/hub"
	jsoniter "github.com/json-iterator/go"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric/instrument"
)

var log = logger.With().
	Str("component", "hubclient").
	Logger()

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultPageSize = 100

// backoffBase is the base delay of the exponential backoff between attempts.
const backoffBase = time.Second

// defaultRetryAfter is used when a 429 response has no usable Retry-After header.
const defaultRetryAfter = time.Minute

// Client is a hub.Client that fetches from an ordered list of hubs with
// failover. Requests are serialized so the inter-request spacing holds for
// the whole instance.
type Client struct {
	endpoints []hub.Endpoint
	config    *hub.Config
	http      *http.Client

	mu             sync.Mutex
	currentHub     int
	lastRequestAt  time.Time
	rateLimitUntil time.Time

	// metrics
	mRequestCount   instrument.Int64Counter
	mRequestLatency instrument.Int64Histogram
}

var _ hub.Client = (*Client)(nil)

// NewClient creates a new hub client.
func NewClient(endpoints []hub.Endpoint, opts ...hub.Option) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("no hub endpoints configured")
	}

	config := hub.DefaultConfig()
	for _, o := range opts {
		if err := o(config); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}

	c := &Client{
		endpoints: endpoints,
		config:    config,
		http:      &http.Client{},
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics: %s", err)
	}

	return c, nil
}

// GetHubInfo returns version and stats of the first healthy hub.
func (c *Client) GetHubInfo(ctx context.Context) (hub.Info, error) {
	var info hub.Info
	q := url.Values{"dbstats": {"1"}}
	if err := c.doJSON(ctx, "/v1/info", q, &info); err != nil {
		return hub.Info{}, err
	}
	return info, nil
}

// GetEvents fetches a page of the hub event stream starting at FromEventID.
func (c *Client) GetEvents(ctx context.Context, req hub.GetEventsRequest) (hub.EventsPage, error) {
	q := url.Values{}
	q.Set("from_event_id", strconv.FormatUint(req.FromEventID, 10))
	if req.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(req.PageSize))
	}

	var page hub.EventsPage
	if err := c.doJSON(ctx, "/v1/events", q, &page); err != nil {
		return hub.EventsPage{}, err
	}
	return page, nil
}

// GetCastsByFID fetches one page of casts authored by fid.
func (c *Client) GetCastsByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return c.getMessagesPage(ctx, "/v1/castsByFid", fid, req)
}

// GetReactionsByFID fetches one page of reactions authored by fid.
func (c *Client) GetReactionsByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return c.getMessagesPage(ctx, "/v1/reactionsByFid", fid, req)
}

// GetLinksByFID fetches one page of links authored by fid.
func (c *Client) GetLinksByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return c.getMessagesPage(ctx, "/v1/linksByFid", fid, req)
}

// GetVerificationsByFID fetches one page of verifications of fid.
func (c *Client) GetVerificationsByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return c.getMessagesPage(ctx, "/v1/verificationsByFid", fid, req)
}

// GetUserDataByFID fetches one page of user data entries of fid.
func (c *Client) GetUserDataByFID(ctx context.Context, fid uint64, req hub.PageRequest) (hub.MessagesPage, error) {
	return c.getMessagesPage(ctx, "/v1/userDataByFid", fid, req)
}

// GetOnChainSignersByFID fetches one page of signer on-chain events of fid.
func (c *Client) GetOnChainSignersByFID(
	ctx context.Context,
	fid uint64,
	req hub.PageRequest,
) (hub.OnChainEventsPage, error) {
	var page hub.OnChainEventsPage
	if err := c.doJSON(ctx, "/v1/onChainSignersByFid", pageQuery(fid, req), &page); err != nil {
		return hub.OnChainEventsPage{}, err
	}
	return page, nil
}

// GetAllCastsByFID drives pagination to completion for casts of fid.
func (c *Client) GetAllCastsByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	return c.getAllMessages(ctx, fid, c.GetCastsByFID)
}

// GetAllReactionsByFID drives pagination to completion for reactions of fid.
func (c *Client) GetAllReactionsByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	return c.getAllMessages(ctx, fid, c.GetReactionsByFID)
}

// GetAllLinksByFID drives pagination to completion for links of fid.
func (c *Client) GetAllLinksByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	return c.getAllMessages(ctx, fid, c.GetLinksByFID)
}

// GetAllVerificationsByFID drives pagination to completion for verifications of fid.
func (c *Client) GetAllVerificationsByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	return c.getAllMessages(ctx, fid, c.GetVerificationsByFID)
}

// GetAllUserDataByFID drives pagination to completion for user data of fid.
func (c *Client) GetAllUserDataByFID(ctx context.Context, fid uint64) ([]hub.Message, error) {
	return c.getAllMessages(ctx, fid, c.GetUserDataByFID)
}

// GetAllOnChainSignersByFID drives pagination to completion for signer events of fid.
func (c *Client) GetAllOnChainSignersByFID(ctx context.Context, fid uint64) ([]hub.OnChainEvent, error) {
	var all []hub.OnChainEvent
	req := hub.PageRequest{PageSize: defaultPageSize}
	for {
		page, err := c.GetOnChainSignersByFID(ctx, fid, req)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Events...)
		if page.NextPageToken == "" || len(page.Events) == 0 {
			break
		}
		req.PageToken = page.NextPageToken
	}
	return all, nil
}

func (c *Client) getMessagesPage(
	ctx context.Context,
	path string,
	fid uint64,
	req hub.PageRequest,
) (hub.MessagesPage, error) {
	var page hub.MessagesPage
	if err := c.doJSON(ctx, path, pageQuery(fid, req), &page); err != nil {
		return hub.MessagesPage{}, err
	}
	return page, nil
}

func (c *Client) getAllMessages(
	ctx context.Context,
	fid uint64,
	fetch func(context.Context, uint64, hub.PageRequest) (hub.MessagesPage, error),
) ([]hub.Message, error) {
	var all []hub.Message
	req := hub.PageRequest{PageSize: defaultPageSize}
	for {
		page, err := fetch(ctx, fid, req)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Messages...)
		if page.NextPageToken == "" || len(page.Messages) == 0 {
			break
		}
		req.PageToken = page.NextPageToken
	}
	return all, nil
}

func pageQuery(fid uint64, req hub.PageRequest) url.Values {
	q := url.Values{}
	q.Set("fid", strconv.FormatUint(fid, 10))
	if req.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(req.PageSize))
	}
	if req.PageToken != "" {
		q.Set("pageToken", req.PageToken)
	}
	if req.Reverse {
		q.Set("reverse", "1")
	}
	return q
}

// doJSON runs a request against the hubs with failover and decodes the
// response into out. Hubs are tried in order starting at the current index;
// if every hub fails, the whole round is retried with exponential backoff up
// to MaxRetries attempts total.
func (c *Client) doJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffBase << (attempt - 1)
			log.Debug().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Str("path", path).
				Msg("all hubs failed, backing off before next attempt")
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			c.currentHub = 0
		}

		for i := 0; i < len(c.endpoints); i++ {
			endpoint := c.endpoints[c.currentHub]
			err := c.tryHub(ctx, endpoint, path, query, out)
			if err == nil {
				c.currentHub = 0
				return nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return fmt.Errorf("request canceled: %w", lastErr)
			}

			log.Warn().
				Err(err).
				Str("hub", endpoint.Name).
				Str("path", path).
				Msg("hub request failed, trying next hub")
			c.currentHub = (c.currentHub + 1) % len(c.endpoints)
		}
	}

	return &hub.AllHubsFailedError{Attempts: c.config.MaxRetries, LastErr: lastErr}
}

// tryHub runs a single request against a single hub, respecting the
// rate-limit window and the minimum inter-request spacing.
func (c *Client) tryHub(
	ctx context.Context,
	endpoint hub.Endpoint,
	path string,
	query url.Values,
	out interface{},
) error {
	if wait := time.Until(c.rateLimitUntil); wait > 0 {
		log.Debug().Dur("wait", wait).Msg("suspending until rate limit window passes")
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	if elapsed := time.Since(c.lastRequestAt); elapsed < c.config.RateLimitDelay {
		if err := sleepCtx(ctx, c.config.RateLimitDelay-elapsed); err != nil {
			return err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint.URL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %s", err)
	}
	req.URL.RawQuery = query.Encode()
	if endpoint.RequestTransform != nil {
		endpoint.RequestTransform(req)
	}

	c.lastRequestAt = time.Now()
	startTime := time.Now()
	resp, err := c.http.Do(req)
	c.recordRequest(endpoint.Name, time.Since(startTime), err == nil && resp.StatusCode < 300)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", hub.ErrTimeout, err)
		}
		return fmt.Errorf("executing request: %s", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.rateLimitUntil = time.Now().Add(retryAfter)
		return &hub.RateLimitedError{Hub: endpoint.Name, RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hub %s returned status %d", endpoint.Name, resp.StatusCode)
	}

	c.noteRateLimitHeaders(resp)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &hub.DecodeError{Hub: endpoint.Name, Err: err}
	}
	return nil
}

// noteRateLimitHeaders suspends future requests when the hub reports an
// exhausted rate-limit window on an otherwise successful response.
func (c *Client) noteRateLimitHeaders(resp *http.Response) {
	if resp.Header.Get("x-ratelimit-remaining") != "0" {
		return
	}
	reset := resp.Header.Get("x-ratelimit-reset")
	if reset == "" {
		return
	}
	resetUnix, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return
	}
	until := time.Unix(resetUnix, 0)
	if until.After(time.Now()) {
		c.rateLimitUntil = until
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
