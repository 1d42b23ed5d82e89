package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client fetches the raw gateway document over HTTP.
type Client struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a gateway client for the given poll URL with a
// per-request deadline.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		url:     url,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch performs one GET against the gateway and returns the raw body.
// Failures are classified per the poll error taxonomy.
func (c *Client) Fetch(ctx context.Context) ([]byte, *PollError) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &PollError{Type: ErrUnknown, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, &PollError{
			Type: ErrHTTP,
			Err:  fmt.Errorf("gateway returned HTTP %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}
	return raw, nil
}
