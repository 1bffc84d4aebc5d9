// Package spapi is the selling-partner REST adapter. It implements the
// ports declared in domain/marketplace.
package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/sellersync/internal/domain/marketplace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxResponseSize = 10 * 1024 * 1024
	userAgent       = "sellersync/1.0 (Language=Go)"
)

// RequestObserver receives one call per completed vendor request.
type RequestObserver interface {
	ObserveVendorRequest(ctx context.Context, operation string, statusCode int)
}

// Client talks to the selling-partner API.
type Client struct {
	config     *Config
	httpClient *http.Client
	tokens     *tokenSource
	limiter    *rate.Limiter
	logger     *zap.Logger
	observer   RequestObserver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRequestObserver reports every request to o.
func WithRequestObserver(o RequestObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithRateLimit overrides the limiter configured in Config.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient validates config and builds a client.
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, marketplace.ErrNotConfigured
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = newTokenSource(config, c.httpClient)
	c.logger = c.logger.Named("spapi")
	return c, nil
}

// Config returns the client configuration
func (c *Client) Config() *Config {
	return c.config
}

// doJSON performs an authenticated request against the API endpoint and
// decodes a JSON response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, operation, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("spapi: %s: encode request: %w", operation, err)
		}
		payload = b
	}

	respBody, err := c.doAuthorized(ctx, operation, method, path, query, payload, false)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s: %v", marketplace.ErrInvalidResponse, operation, err)
	}
	return nil
}

func (c *Client) doAuthorized(ctx context.Context, operation, method, path string, query url.Values, payload []byte, retried bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.config.Endpoint, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("spapi: %s: failed to create request: %w", operation, err)
	}
	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.observe(ctx, operation, 0)
		return nil, fmt.Errorf("%w: %s: %v", marketplace.ErrVendorUnavailable, operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("spapi: %s: failed to read response: %w", operation, err)
	}
	c.observe(ctx, operation, resp.StatusCode)

	if (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && !retried {
		c.logger.Warn("access token rejected, refreshing",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode))
		c.tokens.Invalidate()
		return c.doAuthorized(ctx, operation, method, path, query, payload, true)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
		if errors.Is(apiErr, marketplace.ErrRateLimited) {
			c.logger.Warn("vendor rate limit hit", zap.String("operation", operation))
		}
		return nil, apiErr
	}

	return body, nil
}

func (c *Client) observe(ctx context.Context, operation string, status int) {
	if c.observer != nil {
		c.observer.ObserveVendorRequest(ctx, operation, status)
	}
}

func parseVendorTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
