package mqtt

import (
	"encoding/json"
	"fmt"
)

// PublishState publishes a vent's record, retained, on venthub/state/<id>.
func (c *Client) PublishState(deviceID string, state any) error {
	return c.publishJSON(Topics{}.DeviceState(deviceID), state, true)
}

// PublishEvent publishes a hub event such as "discovered".
func (c *Client) PublishEvent(name string, payload any) error {
	return c.publishJSON(Topics{}.Event(name), payload, false)
}

// PublishAck publishes the result of a group command on venthub/ack/<id>.
func (c *Client) PublishAck(commandID string, ack any) error {
	return c.publishJSON(Topics{}.Ack(commandID), ack, false)
}

// SubscribeCommands routes every venthub/command/# message to h. The
// subscription is re-created after each reconnect; a later call replaces h.
func (c *Client) SubscribeCommands(h MessageHandler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(Topics{}.AllCommands(), c.qos, c.wrapHandler(h))
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.mu.Lock()
	c.commands = h
	c.mu.Unlock()
	return nil
}

func (c *Client) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: encoding: %w", ErrPublishFailed, topic, err)
	}
	if len(payload) > maxPayloadBytes {
		return fmt.Errorf("%w: %s: payload of %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadBytes)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.qos, retained, payload)
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
