// Package client provides a Go client for the castsync admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned when the requested resource doesn't exist in the node.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when the resource being created already exists in the node.
var ErrAlreadyExists = errors.New("already exists")

// Client is the castsync admin API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	apiKey     string
}

type config struct {
	httpClient *http.Client
	apiKey     string
}

// NewClientOption controls the behavior of NewClient.
type NewClientOption func(*config)

// NewClientHTTPClient specifies a custom http client to use.
func NewClientHTTPClient(httpClient *http.Client) NewClientOption {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// NewClientAPIKey specifies the api key sent on every request.
func NewClientAPIKey(apiKey string) NewClientOption {
	return func(c *config) {
		c.apiKey = apiKey
	}
}

// NewClient creates a new Client pointed at the given node endpoint.
func NewClient(endpoint string, opts ...NewClientOption) (*Client, error) {
	config := config{}
	for _, opt := range opts {
		opt(&config)
	}

	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %s", err)
	}
	if config.httpClient == nil {
		config.httpClient = &http.Client{
			Timeout: time.Second * 30,
		}
	}

	return &Client{
		httpClient: config.httpClient,
		baseURL:    baseURL,
		apiKey:     config.apiKey,
	}, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %s", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %s", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %s", method, path, err)
	}
	defer func() { _ = response.Body.Close() }()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case response.StatusCode == http.StatusConflict:
		return ErrAlreadyExists
	case response.StatusCode >= http.StatusBadRequest:
		msg, _ := io.ReadAll(response.Body)
		return fmt.Errorf("failed call (status: %d, body: %s)", response.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			return fmt.Errorf("unmarshaling result: %s", err)
		}
	}
	return nil
}

// CheckHealth returns true if the targeted node endpoint is considered healthy, and false otherwise.
func (c *Client) CheckHealth(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL.String()+"/healthz", nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %s", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("http get error: %s", err)
	}
	defer func() { _ = res.Body.Close() }()

	return res.StatusCode == http.StatusOK, nil
}
