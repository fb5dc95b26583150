package mqtt

import "errors"

var (
	// ErrNotConnected is returned when publishing or subscribing while the
	// broker connection is down. Paho keeps reconnecting in the background.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed is returned by Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps encode, size and broker failures on publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps broker failures on the command subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for topics outside the hub's command tree.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
