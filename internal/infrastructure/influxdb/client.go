package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client carries the bridge's telemetry connection: buffered
// non-blocking writes for state samples and the Flux query side for
// the history endpoint. Safe for concurrent use.
type Client struct {
	influx   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	cfg      config.InfluxDBConfig

	connected atomic.Bool

	mu      sync.RWMutex // guards onError
	onError func(err error)
}

// clientOptions translates the YAML batching knobs into client
// options, falling back to defaults for zero or negative values. The
// flush interval is configured in seconds; the client wants
// milliseconds.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000)
}

// Connect builds a client for the configured server and verifies it
// answers a ping before handing it out. Returns ErrDisabled when
// telemetry is switched off in the configuration, so callers can treat
// that separately from a dead server.
//
// Writes are batched and sent in the background; failures surface
// through the SetOnError callback rather than a return value.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := influx.Ping(ctx)
	if err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		influx.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		influx:   influx,
		writeAPI: influx.WriteAPI(cfg.Org, cfg.Bucket),
		queryAPI: influx.QueryAPI(cfg.Org),
		cfg:      cfg,
	}
	c.connected.Store(true)

	go c.drainWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// drainWriteErrors forwards async write failures to the registered
// callback. The channel closes when the client does.
func (c *Client) drainWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError registers a callback for asynchronous write failures.
// Writes are fire-and-forget, so this is the only place they report.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// IsConnected reports the last known connection state. It does not
// probe the server; HealthCheck does.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// HealthCheck pings the server, bounding the wait with pingTimeout
// even when ctx carries no deadline of its own.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.influx.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server not healthy")
	}
	return nil
}

// Flush blocks until buffered points are handed to the server. Used in
// tests and before shutdown; a disconnected client flushes nothing.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending writes and shuts the client down. Safe on a
// client that never connected.
func (c *Client) Close() error {
	if c.influx == nil {
		return nil
	}

	// Flush while still marked connected, then stop accepting writes.
	c.writeAPI.Flush()
	c.connected.Store(false)
	c.influx.Close()
	return nil
}
