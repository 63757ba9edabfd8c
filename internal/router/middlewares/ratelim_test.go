package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimit1Addr(t *testing.T) {
	t.Parallel()

	type testCase struct {
		name     string
		callRPS  int
		limitRPS int
	}

	tests := []testCase{
		{name: "success", callRPS: 100, limitRPS: 500},
		{name: "block-me", callRPS: 1000, limitRPS: 500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(tc testCase) func(t *testing.T) {
			return func(t *testing.T) {
				t.Parallel()

				cfg := RateLimiterConfig{
					MaxRPI:   uint64(tc.limitRPS),
					Interval: time.Second,
				}
				rlcm, err := RateLimitController(cfg)
				require.NoError(t, err)
				rlc := rlcm(dummyHandler{})

				r, err := http.NewRequest("GET", "/api/v1/targets", nil)
				require.NoError(t, err)
				r.Header.Set("X-Forwarded-For", "10.0.0.1")

				// Verify that after some seconds making requests with the configured
				// callRPS with the limitRPS, we are getting the expected output:
				// - If callRPS < limitRPS, we never get a 429.
				// - If callRPS > limitRPS, we eventually should see a 429.
				assertFunc := require.Eventually
				if tc.callRPS < tc.limitRPS {
					assertFunc = require.Never
				}
				assertFunc(t, func() bool {
					res := httptest.NewRecorder()
					rlc.ServeHTTP(res, r)
					return res.Code == 429
				}, time.Second*5, time.Second/time.Duration(tc.callRPS))
			}
		}(tc))
	}
}

func TestRateLimitKeyedByIP(t *testing.T) {
	t.Parallel()

	cfg := RateLimiterConfig{MaxRPI: 2, Interval: time.Minute}
	rlcm, err := RateLimitController(cfg)
	require.NoError(t, err)
	rlc := rlcm(dummyHandler{})

	call := func(ip string) int {
		r, err := http.NewRequest("GET", "/api/v1/targets", nil)
		require.NoError(t, err)
		r.Header.Set("X-Forwarded-For", ip)
		res := httptest.NewRecorder()
		rlc.ServeHTTP(res, r)
		return res.Code
	}

	require.Equal(t, http.StatusOK, call("10.0.0.1"))
	require.Equal(t, http.StatusOK, call("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))

	// A different client keeps its own budget.
	require.Equal(t, http.StatusOK, call("10.0.0.2"))
}

type dummyHandler struct{}

func (dh dummyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
