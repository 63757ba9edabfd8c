package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/castsync/go-castsync/pkg/hub"
	"github.com/stretchr/testify/require"
)

func TestFailover(t *testing.T) {
	t.Parallel()

	var badCalls, goodCalls int
	badHub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badCalls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(badHub.Close)
	goodHub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodCalls++
		_, _ = w.Write([]byte(`{"version":"v"}`))
	}))
	t.Cleanup(goodHub.Close)

	client, err := NewClient([]hub.Endpoint{
		{Name: "bad", URL: badHub.URL},
		{Name: "good", URL: goodHub.URL},
	}, hub.WithRateLimitDelay(0))
	require.NoError(t, err)

	info, err := client.GetHubInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v", info.Version)
	require.Equal(t, 1, badCalls)

	// The hub index was reset on success, so the next request starts at the
	// failing hub again.
	_, err = client.GetHubInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, badCalls)
	require.Equal(t, 2, goodCalls)
}

func TestAllHubsFailed(t *testing.T) {
	t.Parallel()

	var calls int
	badHub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(badHub.Close)

	client, err := NewClient(
		[]hub.Endpoint{{Name: "bad", URL: badHub.URL}},
		hub.WithRateLimitDelay(0),
		hub.WithMaxRetries(2),
	)
	require.NoError(t, err)

	// Keep the test fast; the second attempt backs off 1s.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, err = client.GetHubInfo(ctx)
	var allFailed *hub.AllHubsFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Equal(t, 2, allFailed.Attempts)
	require.Equal(t, 2, calls)
}

func TestRequestTransform(t *testing.T) {
	t.Parallel()

	hubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"version":"authed"}`))
	}))
	t.Cleanup(hubServer.Close)

	client, err := NewClient([]hub.Endpoint{{
		Name: "authed",
		URL:  hubServer.URL,
		RequestTransform: func(r *http.Request) {
			r.Header.Set("Api-Key", "secret")
		},
	}}, hub.WithRateLimitDelay(0))
	require.NoError(t, err)

	info, err := client.GetHubInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "authed", info.Version)
}

func TestRateLimited(t *testing.T) {
	t.Parallel()

	hubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(hubServer.Close)

	client, err := NewClient(
		[]hub.Endpoint{{Name: "limited", URL: hubServer.URL}},
		hub.WithRateLimitDelay(0),
		hub.WithMaxRetries(1),
	)
	require.NoError(t, err)

	_, err = client.GetHubInfo(context.Background())
	var allFailed *hub.AllHubsFailedError
	require.ErrorAs(t, err, &allFailed)
	var rateLimited *hub.RateLimitedError
	require.ErrorAs(t, allFailed.LastErr, &rateLimited)
	require.Equal(t, time.Second*2, rateLimited.RetryAfter)

	// Subsequent requests suspend at least until the window passes.
	require.GreaterOrEqual(t, time.Until(client.rateLimitUntil), time.Second)
}

func TestRateLimitHeadersOnSuccess(t *testing.T) {
	t.Parallel()

	reset := time.Now().Add(time.Minute).Unix()
	hubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "0")
		w.Header().Set("x-ratelimit-reset", strconv.FormatInt(reset, 10))
		_, _ = w.Write([]byte(`{"version":"v"}`))
	}))
	t.Cleanup(hubServer.Close)

	client, err := NewClient(
		[]hub.Endpoint{{Name: "h", URL: hubServer.URL}},
		hub.WithRateLimitDelay(0),
	)
	require.NoError(t, err)

	_, err = client.GetHubInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, time.Unix(reset, 0), client.rateLimitUntil)
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	hubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(hubServer.Close)
	t.Cleanup(func() { close(release) })

	client, err := NewClient(
		[]hub.Endpoint{{Name: "slow", URL: hubServer.URL}},
		hub.WithRateLimitDelay(0),
		hub.WithMaxRetries(1),
		hub.WithRequestTimeout(time.Millisecond*100),
	)
	require.NoError(t, err)

	_, err = client.GetHubInfo(context.Background())
	var allFailed *hub.AllHubsFailedError
	require.ErrorAs(t, err, &allFailed)
	require.True(t, errors.Is(allFailed.LastErr, hub.ErrTimeout))
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	hubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	t.Cleanup(hubServer.Close)

	client, err := NewClient(
		[]hub.Endpoint{{Name: "garbled", URL: hubServer.URL}},
		hub.WithRateLimitDelay(0),
		hub.WithMaxRetries(1),
	)
	require.NoError(t, err)

	_, err = client.GetHubInfo(context.Background())
	var allFailed *hub.AllHubsFailedError
	require.ErrorAs(t, err, &allFailed)
	var decodeErr *hub.DecodeError
	require.ErrorAs(t, allFailed.LastErr, &decodeErr)
}

func TestGetAllCastsByFIDPagination(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"":   `{"messages":[{"hash":"0x01"},{"hash":"0x02"}],"nextPageToken":"p2"}`,
		"p2": `{"messages":[{"hash":"0x03"},{"hash":"0x04"}],"nextPageToken":"p3"}`,
		"p3": `{"messages":[{"hash":"0x05"}]}`,
	}
	hubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/castsByFid", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("fid"))
		body, ok := pages[r.URL.Query().Get("pageToken")]
		require.True(t, ok)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(hubServer.Close)

	client, err := NewClient(
		[]hub.Endpoint{{Name: "h", URL: hubServer.URL}},
		hub.WithRateLimitDelay(0),
	)
	require.NoError(t, err)

	msgs, err := client.GetAllCastsByFID(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		require.Equal(t, fmt.Sprintf("0x%02d", i+1), msg.Hash)
	}
}

func TestGetEvents(t *testing.T) {
	t.Parallel()

	hubServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/events", r.URL.Path)
		require.Equal(t, "55", r.URL.Query().Get("from_event_id"))
		require.Equal(t, "100", r.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"nextPageEventId":60,"events":[{"id":56,"type":"HUB_EVENT_TYPE_MERGE_MESSAGE"}]}`))
	}))
	t.Cleanup(hubServer.Close)

	client, err := NewClient(
		[]hub.Endpoint{{Name: "h", URL: hubServer.URL}},
		hub.WithRateLimitDelay(0),
	)
	require.NoError(t, err)

	page, err := client.GetEvents(context.Background(), hub.GetEventsRequest{FromEventID: 55, PageSize: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(60), page.NextPageEventID)
	require.Len(t, page.Events, 1)
	require.Equal(t, uint64(56), page.Events[0].ID)
}
