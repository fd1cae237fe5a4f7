package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/logging"
)

// maxResponseBytes bounds how much of a cloud response is read into memory.
// Network detail payloads with embedded mesh exports run to a few megabytes.
const maxResponseBytes = 16 << 20

// networkFetchTimeout overrides the per-request timeout for network detail
// fetches. The cloud assembles the full mesh export server-side and can take
// far longer than a status read.
const networkFetchTimeout = 60 * time.Second

// retryableStatus lists HTTP codes that indicate a transient condition.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client talks to the Häfele Connect Mesh cloud API.
//
// All requests carry the configured bearer token and are retried on
// transient failures with exponential backoff. Device status reads are
// additionally rate limited per device to keep the bridge within the
// cloud's polling allowance.
type Client struct {
	baseURL       string
	token         string
	httpc         *http.Client
	logger        *logging.Logger
	maxAttempts   int
	initialDelay  time.Duration
	maxDelay      time.Duration
	timeout       time.Duration
	statusLimiter *minIntervalLimiter
}

// New creates a cloud API client from configuration.
//
// Parameters:
//   - cfg: cloud section of the bridge configuration
//   - logger: structured logger for retry and decode warnings
//
// Returns:
//   - *Client: ready-to-use client (no connection is established here)
func New(cfg config.CloudConfig, logger *logging.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		httpc:         &http.Client{},
		logger:        logger,
		maxAttempts:   cfg.Retry.MaxAttempts,
		initialDelay:  time.Duration(cfg.Retry.InitialDelay) * time.Second,
		maxDelay:      time.Duration(cfg.Retry.MaxDelay) * time.Second,
		timeout:       cfg.RequestTimeout(),
		statusLimiter: newMinIntervalLimiter(cfg.StatusSpacing()),
	}
}

// HealthCheck verifies cloud connectivity by listing networks.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.Networks(ctx); err != nil {
		return fmt.Errorf("cloud health check failed: %w", err)
	}
	return nil
}

// get performs a GET request and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, c.timeout)
}

// put performs a PUT request with a JSON body and decodes the response
// into out when out is non-nil.
func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out, c.timeout)
}

// post performs a POST request with a JSON body and decodes the response
// into out when out is non-nil.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, c.timeout)
}

// do runs one API call with retries. The request body is marshalled once
// up front so each attempt can replay it.
func (c *Client) do(ctx context.Context, method, path string, body, out any, timeout time.Duration) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt-1, c.initialDelay, c.maxDelay)
			c.logger.Debug("retrying cloud request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"delay", delay.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.attempt(ctx, method, path, payload, out, timeout)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// attempt executes a single HTTP round trip with its own timeout.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any, timeout time.Duration) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", errTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncateBody(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// isRetryable reports whether an attempt error is worth retrying.
// Transport failures and retryable HTTP statuses qualify; decode errors
// and client errors are terminal.
func isRetryable(err error) bool {
	if errors.Is(err, errTransport) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus[apiErr.StatusCode]
	}
	return false
}

// backoffDelay returns the sleep before retry number attempt (1-based),
// doubling from initial up to max with +/-25% jitter. A non-positive
// initial delay disables the wait entirely.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		return 0
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return delay
}

// truncateBody keeps error bodies short enough to log safely.
func truncateBody(data []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
