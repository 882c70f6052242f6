package mqtt

import "errors"

var (
	// ErrNotConnected is returned while the broker link is down, including
	// between automatic reconnect attempts.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the reason Connect gave up.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed covers timeouts, broker rejections, oversize payloads
	// and events that could not be encoded.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
