package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/muurk/printhost/internal/settings"
	"github.com/muurk/printhost/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 10 * time.Second

	// APIKeyHeader carries the API key on every request
	APIKeyHeader = "X-Api-Key"

	settingsPath = "/api/settings"
	versionPath  = "/api/version"

	maxErrorBody = 4096
)

// Client is an HTTP client for the settings API
type Client struct {
	// BaseURL is the server URL (e.g., "http://octopi.local:5000")
	BaseURL string

	// APIKey is sent in the X-Api-Key header when set
	APIKey string

	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for failed requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff enables exponential backoff for retries
	UseExponentialBackoff bool
}

// VersionInfo is the body of GET /api/version
type VersionInfo struct {
	Server string `json:"server"`
	Commit string `json:"commit"`
	Go     string `json:"go"`
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:               strings.TrimSuffix(baseURL, "/"),
		APIKey:                apiKey,
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Version fetches the server version
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	err := c.do(ctx, http.MethodGet, versionPath, nil, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetSettings fetches the settings document. Numbers are normalized the way
// the engine stores them.
func (c *Client) GetSettings(ctx context.Context) (map[string]any, error) {
	return c.settingsRequest(ctx, http.MethodGet, nil)
}

// UpdateSettings posts a partial settings document and returns the
// document the server answers with
func (c *Client) UpdateSettings(ctx context.Context, patch map[string]any) (map[string]any, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings patch: %w", err)
	}
	return c.settingsRequest(ctx, http.MethodPost, body)
}

func (c *Client) settingsRequest(ctx context.Context, method string, payload []byte) (map[string]any, error) {
	var tree settings.Tree
	err := c.do(ctx, method, settingsPath, payload, func(body io.Reader) error {
		dec := json.NewDecoder(body)
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		normalized, err := settings.NormalizeTree(raw)
		if err != nil {
			return err
		}
		tree = normalized
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// do runs one request with retries. decode reads a successful response body.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, decode func(io.Reader) error) error {
	var lastErr error
	currentDelay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(currentDelay):
			}

			if c.UseExponentialBackoff {
				currentDelay *= 2
				if currentDelay > c.MaxRetryDelay {
					currentDelay = c.MaxRetryDelay
				}
			}
		}

		err := c.attempt(ctx, method, path, payload, decode)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		if !IsRetryable(err) {
			return err
		}
	}

	return lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, decode func(io.Reader) error) error {
	host := c.host()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return NewNetworkError("failed to create request", host, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set(APIKeyHeader, c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return NewNetworkError(fmt.Sprintf("%s %s failed", method, path), host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return NewStatusError(resp.StatusCode, strings.TrimSpace(string(text)))
	}

	if err := decode(resp.Body); err != nil {
		return NewParseError("failed to parse JSON response", err)
	}
	return nil
}

func (c *Client) host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL
	}
	return u.Hostname()
}
