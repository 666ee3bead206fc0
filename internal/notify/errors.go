package notify

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("channel not configured")
	ErrDisabled      = errors.New("channel disabled")
	ErrQueueFull     = errors.New("notify queue full")
	ErrStopped       = errors.New("notify service stopped")
)

// ConfigError means a channel config is unusable. No network request is
// attempted for a channel whose build fails with one.
type ConfigError struct {
	Channel ChannelType
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Channel, e.Reason)
}

func configErr(ch ChannelType, format string, args ...any) error {
	return &ConfigError{Channel: ch, Reason: fmt.Sprintf(format, args...)}
}

// StatusError means the endpoint answered with a non-2xx status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}
