// Package upstream is the outbound leg of the proxy: one HTTP request to the
// remote chat completions API per inbound request.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/utils"
)

const (
	// MaxErrorBody is the number of upstream error body bytes kept in a
	// StatusError.
	MaxErrorBody = 4 << 10

	defaultConnectTimeout = 30 * time.Second
)

var (
	// ErrUnreachable wraps every failure to obtain upstream response headers:
	// DNS, connect, TLS and header timeouts.
	ErrUnreachable = errors.New("upstream unreachable")

	// ErrNotConfigured is returned when no upstream URL is configured.
	ErrNotConfigured = errors.New("upstream url is not configured")
)

// StatusError reports an upstream response with a non-2xx status.
type StatusError struct {
	StatusCode int

	// Body is the start of the upstream response body, at most MaxErrorBody
	// bytes plus an ellipsis.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Config configures a Client.
type Config struct {
	// URL is the chat completions endpoint.
	URL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// ConnectTimeout bounds dialing, the TLS handshake and the wait for
	// response headers. It does not bound reading the body, which for a
	// stream may legitimately take minutes. Zero means 30 seconds.
	ConnectTimeout time.Duration

	// Transport overrides the HTTP transport. Tests use it; production code
	// leaves it nil.
	Transport http.RoundTripper
}

// Client sends requests to the configured upstream.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient validates cfg and builds a Client. An empty URL is accepted so
// the static endpoints keep working; requests then fail with ErrNotConfigured.
func NewClient(cfg Config) (*Client, error) {
	rawURL := strings.TrimSpace(cfg.URL)
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing upstream url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("upstream url must be http or https, got %q", rawURL)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("upstream url has no host: %q", rawURL)
		}
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = newTransport(timeout)
	}

	return &Client{
		url:    strings.TrimRight(rawURL, "/"),
		apiKey: cfg.APIKey,
		// No overall Timeout: it would cut off long running streams.
		httpClient: &http.Client{Transport: transport},
	}, nil
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = dialer.DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

// URL returns the configured chat completions endpoint.
func (c *Client) URL() string {
	return c.url
}

// Stream POSTs body unmodified to the configured URL and returns the
// response body as an incremental byte stream. The caller must close it.
//
// Canceling ctx aborts the request, including a body read in progress.
// A non-2xx response is returned as a *StatusError.
func (c *Client) Stream(ctx context.Context, body []byte) (io.ReadCloser, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	return resp.Body, nil
}

// NewRequest builds a request for the configured URL with path appended.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}
	return req, nil
}

// Do sets the credential and user agent on req and sends it. Transport
// failures are wrapped with ErrUnreachable unless ctx was canceled.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("upstream request canceled: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody+1))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       utils.Truncate(string(data), MaxErrorBody),
	}
}
