package mqtt

import "fmt"

// Subscribe registers handler for topic, which may carry MQTT
// wildcards (+ single level, # remainder). The subscription is
// remembered and replayed on every reconnect until Unsubscribe. The
// handler runs wrapped in panic containment.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateTopicQoS(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Remember before subscribing so a reconnect racing this call
	// still replays the topic; forget again on failure.
	c.mu.Lock()
	c.subs[topic] = storedSub{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.paho.Subscribe(topic, qos, c.guard(handler)), ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for topic and drops it from the replay
// set. Messages already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)

	return await(c.paho.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// SubscriptionCount reports the size of the replay set.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

func (c *Client) forget(topic string) {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
}
