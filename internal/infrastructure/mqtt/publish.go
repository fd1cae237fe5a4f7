package mqtt

import "fmt"

// maxPayloadSize caps outbound payloads at 1 MiB, in line with common
// broker defaults.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic at the given QoS, optionally asking
// the broker to retain it for future subscribers. Retention suits
// state and availability topics; commands and events go unretained.
// Blocks until the broker acknowledges or the publish timeout passes.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateTopicQoS(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, cap is %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishRetained publishes a retained message at the configured
// default QoS. The usual call for state updates.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
