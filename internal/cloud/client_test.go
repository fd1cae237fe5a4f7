package cloud

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/logging"
)

// testLogger returns a logger that only emits errors, keeping test
// output quiet.
func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{
		Level:  "error",
		Format: "text",
		Output: "stderr",
	}, "test")
}

// newTestClient binds a client to the test server with retries tuned for
// fast tests: no backoff sleep between attempts.
func newTestClient(server *httptest.Server, maxAttempts int) *Client {
	return New(config.CloudConfig{
		BaseURL: server.URL,
		Token:   "test-token",
		Timeout: 5,
		Retry: config.RetryConfig{
			MaxAttempts:  maxAttempts,
			InitialDelay: 0,
			MaxDelay:     0,
		},
		MinStatusInterval: 0,
	}, testLogger())
}

// TestClientSendsAuthHeaders verifies bearer token and content negotiation
// headers on every request.
func TestClientSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotAccept, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server, 1)

	if err := client.SetPower(context.Background(), "dev-1", true, nil); err != nil {
		t.Fatalf("SetPower() error = %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-token")
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want application/json", gotAccept)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
}

// TestClientRetriesTransientFailures verifies that retryable statuses are
// retried until the request succeeds.
func TestClientRetriesTransientFailures(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(server, 5)

	if _, err := client.Devices(context.Background()); err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

// TestClientDoesNotRetryClientErrors verifies that 4xx responses other
// than 408 and 429 fail immediately.
func TestClientDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server, 5)

	if _, err := client.Devices(context.Background()); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

// TestClientRetriesExhausted verifies the last error surfaces after the
// attempt budget is spent.
func TestClientRetriesExhausted(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server, 3)

	_, err := client.Devices(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !errors.Is(err, ErrServer) {
		t.Errorf("error = %v, want ErrServer", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

// TestClientErrorSentinels verifies status codes map onto the package
// sentinels through errors.Is.
func TestClientErrorSentinels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "401 unauthorised", status: http.StatusUnauthorized, want: ErrUnauthorized},
		{name: "403 forbidden", status: http.StatusForbidden, want: ErrUnauthorized},
		{name: "404 not found", status: http.StatusNotFound, want: ErrNotFound},
		{name: "429 rate limited", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "500 server error", status: http.StatusInternalServerError, want: ErrServer},
		{name: "503 unavailable", status: http.StatusServiceUnavailable, want: ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(server, 1)

			_, err := client.Devices(context.Background())
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestClientContextCancellation verifies a cancelled context stops the
// retry loop.
func TestClientContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server, 5)
	client.initialDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Devices(ctx)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// TestHealthCheck verifies connectivity probing through the networks
// endpoint.
func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/networks" {
				t.Fatalf("path = %q, want /networks", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()

		client := newTestClient(server, 1)
		if err := client.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck() error = %v", err)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newTestClient(server, 1)
		if err := client.HealthCheck(context.Background()); err == nil {
			t.Fatal("expected error for failing backend")
		}
	})
}

// TestBackoffDelay verifies exponential growth, the max cap, and that
// jitter stays within a quarter of the base delay.
func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		initial time.Duration
		max     time.Duration
		base    time.Duration
	}{
		{name: "first retry", attempt: 1, initial: 2 * time.Second, max: 30 * time.Second, base: 2 * time.Second},
		{name: "doubles", attempt: 3, initial: 2 * time.Second, max: 30 * time.Second, base: 8 * time.Second},
		{name: "capped at max", attempt: 10, initial: 2 * time.Second, max: 30 * time.Second, base: 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := backoffDelay(tt.attempt, tt.initial, tt.max)
			lo := tt.base - tt.base/4
			hi := tt.base + tt.base/4
			if got < lo || got > hi {
				t.Errorf("backoffDelay() = %v, want within [%v, %v]", got, lo, hi)
			}
		})
	}

	if got := backoffDelay(3, 0, 30*time.Second); got != 0 {
		t.Errorf("backoffDelay() with zero initial = %v, want 0", got)
	}
}
