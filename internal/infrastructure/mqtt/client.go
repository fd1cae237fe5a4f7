package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
)

// MessageHandler receives inbound messages. Paho invokes handlers on
// its own goroutines; a handler that blocks stalls delivery on its
// connection, so long work belongs elsewhere. A returned error is
// logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Logger is the slice of the logging interface this package needs.
// Both logging.Logger and slog.Logger satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// storedSub remembers an active subscription so it can be replayed
// after a reconnect.
type storedSub struct {
	qos     byte
	handler MessageHandler
}

// Client is the bridge's MQTT connection: paho underneath, plus
// subscription replay on reconnect, an availability announcement tied
// to the broker session (LWT), payload limits and panic containment
// around handlers. All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected atomic.Bool

	mu   sync.RWMutex // guards subs, onConnect, onDisconnect, logger
	subs map[string]storedSub

	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker described by cfg and blocks until the
// session is up or the connect timeout passes. The session carries a
// last-will publishing the retained offline payload on the bridge
// availability topic, so consumers see the bridge drop even when it
// dies without running Close. Reconnection is automatic; on each
// (re)connect the client replays its subscriptions and republishes the
// retained online payload.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg),
		subs:   make(map[string]storedSub),
	}

	opts := brokerOptions(cfg)
	opts.SetWill(c.topics.BridgeAvailability(), PayloadOffline, 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.brokerConnected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.brokerLost(err) })

	c.paho = pahomqtt.NewClient(opts)

	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have fired
	// yet; mark connected here so IsConnected is true on return.
	c.connected.Store(true)

	return c, nil
}

// Topics returns the topic builder for this client's configuration.
func (c *Client) Topics() Topics {
	return c.topics
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho.IsConnected()
}

// HealthCheck reports connection state in error form for the startup
// checks and the health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// SetOnConnect registers a callback invoked on the initial connect and
// every reconnect, after subscriptions have been replayed.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback invoked with the reason each
// time the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger routes handler errors and recovered panics to logger.
// Without one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Close announces offline with the same retained payload as the LWT,
// waits briefly for in-flight publishes and disconnects. Safe on an
// already-closed client.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.paho.Publish(c.topics.BridgeAvailability(), byte(c.cfg.QoS), true, PayloadOffline)
		token.WaitTimeout(publishTimeout)
	}

	c.paho.Disconnect(disconnectQuiesceMs)
	c.connected.Store(false)
	return nil
}

// brokerConnected runs on every established session: replay
// subscriptions, announce online, then hand off to the user callback.
func (c *Client) brokerConnected() {
	c.connected.Store(true)

	c.mu.RLock()
	subs := make(map[string]storedSub, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	callback := c.onConnect
	c.mu.RUnlock()

	for topic, sub := range subs {
		// Failures here resolve themselves on the next reconnect.
		c.paho.Subscribe(topic, sub.qos, c.guard(sub.handler))
	}

	c.paho.Publish(c.topics.BridgeAvailability(), byte(c.cfg.QoS), true, PayloadOnline)

	if callback != nil {
		callback()
	}
}

func (c *Client) brokerLost(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// guard adapts a MessageHandler to paho's signature, containing panics
// so one bad payload cannot take down the paho router goroutine.
func (c *Client) guard(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.log(); logger != nil {
					logger.Error("mqtt handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.log(); logger != nil {
				logger.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// validateTopicQoS front-runs the broker round trip for inputs that
// can never succeed.
func validateTopicQoS(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await blocks on a paho token, folding both the wait timeout and the
// broker's verdict into sentinel.
func await(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: no acknowledgement within %v", sentinel, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
