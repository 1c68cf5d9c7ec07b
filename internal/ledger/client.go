// Package ledger provides a client for the ledger gateway, the HTTP service
// that exposes the game programs' accounts and accepts settlement
// instructions.
//
// The client retries network failures, rate limits and server errors with
// capped exponential backoff, paces every request through a token bucket and
// reports everything else as a *TransportError. A missing account is
// round.ErrNotFound. Writes are only retried when they carry an idempotency
// key.
//
// # Usage
//
//	client, err := ledger.NewClient(ledger.Config{
//	    BaseURL: "http://localhost:8899",
//	    Token:   "secret",
//	})
//
//	state, err := client.FetchProgramState(ctx, round.GameLottery)
package ledger

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

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lamas-finance/round-settler/internal/round"
)

// IdempotencyKeyHeader carries the key the gateway deduplicates writes by.
const IdempotencyKeyHeader = "Idempotency-Key"

// Config holds configuration for the ledger client.
type Config struct {
	// BaseURL is the gateway root, e.g. "http://localhost:8899". Required.
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// RequestsPerSecond paces outgoing requests. Defaults to 20 if zero.
	RequestsPerSecond float64

	// Burst is the token bucket size. Defaults to 5 if zero.
	Burst int

	// MaxRetries is the maximum number of retry attempts for retryable errors.
	// Defaults to 3 if zero.
	MaxRetries uint64

	// BaseRetryDelay is the initial delay before the first retry.
	// Defaults to 500ms if zero.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff delay.
	// Defaults to 10 seconds if zero.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with 30s timeout.
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header. Optional.
	UserAgent string

	// Logger receives retry diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Client is a ledger gateway client. It is safe for concurrent use.
type Client struct {
	config  Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient creates a new ledger client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("ledger: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ledger: base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("ledger: base URL %q must be http or https", cfg.BaseURL)
	}

	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst == 0 {
		cfg.Burst = 5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		config:  cfg,
		base:    base,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:     log,
	}, nil
}

// BaseURL returns the configured gateway root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// --- Core request methods ---

// doRequest sends a single request and decodes a 200 response into out.
func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, hdr http.Header, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ledger: marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", round.ErrNotFound, op)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid response JSON: %w", err)}
	}
	return nil
}

// doRequestWithRetry paces and sends a request, retrying retryable transport
// errors with capped exponential backoff. Exhausted retries surface the last
// *TransportError.
func (c *Client) doRequestWithRetry(ctx context.Context, op, method, path string, query url.Values, hdr http.Header, body, out any) error {
	b := retry.NewExponential(c.config.BaseRetryDelay)
	b = retry.WithCappedDuration(c.config.MaxRetryDelay, b)
	b = retry.WithMaxRetries(c.config.MaxRetries, b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.doRequest(ctx, op, method, path, query, hdr, body, out)
		var te *TransportError
		if errors.As(err, &te) && te.IsRetryable() {
			c.log.Debug("retrying ledger request",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Int("status", te.StatusCode),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.doRequestWithRetry(ctx, op, http.MethodGet, path, query, nil, nil, out)
}

// post sends a write. With an idempotency key the gateway collapses resends,
// so retryable failures are retried under the same key. Without one the
// request is sent exactly once.
func (c *Client) post(ctx context.Context, op, path, key string, body, out any) error {
	if key == "" {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.doRequest(ctx, op, http.MethodPost, path, nil, nil, body, out)
	}
	hdr := http.Header{}
	hdr.Set(IdempotencyKeyHeader, key)
	return c.doRequestWithRetry(ctx, op, http.MethodPost, path, nil, hdr, body, out)
}

func programPath(game round.Game, parts ...string) string {
	return "/programs/" + url.PathEscape(string(game)) + strings.Join(parts, "")
}
