package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// disconnectQuiesceMs gives in-flight work a moment to finish on
	// Disconnect (paho takes milliseconds).
	disconnectQuiesceMs = 1000

	keepAlive = 60 * time.Second

	maxQoS = 2
)

// brokerOptions translates the mqtt config section into paho client
// options: broker URL, identity, credentials, clean session and
// bounded-backoff reconnection. TLS (when enabled) floors at 1.2.
func brokerOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// No persistent broker session; subscriptions are replayed by the
	// client on reconnect instead.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}
