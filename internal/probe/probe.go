// Package probe is a client for the seer's query API. Test harnesses use it
// to wait for a state and to read answers the way an external checker would.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL matches the default REST port.
const DefaultBaseURL = "http://127.0.0.1:8000"

const maxBody = 64 << 10

// httpClient is shared by every Client. Only transport errors are retried;
// a 503 from the seer is an answer, not a failure.
var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.RetryWaitMin = 100 * time.Millisecond
		httpClient.RetryWaitMax = time.Second
		httpClient.HTTPClient.Timeout = 5 * time.Second
		httpClient.Logger = nil
		httpClient.CheckRetry = transportOnly
	})
	return httpClient
}

func transportOnly(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// StatusError is returned when the seer answers with a non-200 status.
// Message is the decoded JSON string body, if there was one.
type StatusError struct {
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("GET %s: status %d", e.Path, e.Code)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.Path, e.Code, e.Message)
}

// IsUnavailable reports whether err is a 503 from the seer.
func IsUnavailable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusServiceUnavailable
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client queries one seer instance.
type Client struct {
	base string
}

// New returns a Client for base, e.g. "http://127.0.0.1:8000".
func New(base string) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{base: strings.TrimRight(base, "/")}
}

// ServiceState returns the state name reported by /service_state.
func (c *Client) ServiceState(ctx context.Context) (string, error) {
	var s string
	err := c.get(ctx, "/service_state", &s)
	return s, err
}

// Answer returns an answer from /answer.
func (c *Client) Answer(ctx context.Context) (string, error) {
	var s string
	err := c.get(ctx, "/answer", &s)
	return s, err
}

// PerspectiveIndex returns the index from /perspective_index.
func (c *Client) PerspectiveIndex(ctx context.Context) (int, error) {
	var n int
	err := c.get(ctx, "/perspective_index", &n)
	return n, err
}

// WaitForState polls /service_state every interval until it reports want or
// ctx ends. Transport errors while polling are tolerated.
func (c *Client) WaitForState(ctx context.Context, want string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		got, err := c.ServiceState(ctx)
		if err == nil && got == want {
			return nil
		}
		if err != nil {
			slog.Debug("probe poll failed", "error", err)
		} else {
			last = got
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s (last %q): %w", want, last, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := getHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Path: path, Code: resp.StatusCode}
		_ = json.Unmarshal(body, &se.Message)
		return se
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
