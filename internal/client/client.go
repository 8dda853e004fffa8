// ABOUTME: HTTP client for the chat server's REST API
// ABOUTME: Shared request plumbing, auth headers, and error-body handling

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/coven-chat/internal/wire"
)

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response body is read.
const maxErrorBody = 64 << 10

// ErrNoBaseURL is returned by New when Config.BaseURL is empty.
var ErrNoBaseURL = errors.New("base URL is required")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Unauthorized reports whether the server rejected the session token.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. https://chat.example.com/api.
	BaseURL string
	// Token is the session token sent with every request.
	Token string
	// CookieName, when set, also sends Token as a cookie of that name.
	CookieName string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the chat server's REST API.
type Client struct {
	baseURL    string
	token      string
	cookieName string
	client     *http.Client
	logger     *slog.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		cookieName: cfg.CookieName,
		client:     httpClient,
		logger:     logger.With("component", "rest"),
	}, nil
}

// newRequest builds a request for path, which is joined to the base URL.
// Path segments in args are escaped.
func (c *Client) newRequest(ctx context.Context, method string, body io.Reader, format string, args ...string) (*http.Request, error) {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+fmt.Sprintf(format, escaped...), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		if c.cookieName != "" {
			req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.token})
		}
	}
	return req, nil
}

// do sends req and returns the response body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request complete",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.handleErrorResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// handleErrorResponse turns a non-2xx response into a *StatusError.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := ""
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		msg = wire.ErrorMessage(body)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
