package notify

import (
	"context"
	"net/http"
	"time"
)

// ChannelType identifies one of the supported push targets.
type ChannelType string

const (
	ChannelDingTalk ChannelType = "dingtalk"
	ChannelWeCom    ChannelType = "wecom"
	ChannelFeishu   ChannelType = "feishu"
	ChannelWebhook  ChannelType = "webhook"
)

// ChannelTypes returns the closed set of supported channel kinds.
func ChannelTypes() []ChannelType {
	return []ChannelType{ChannelDingTalk, ChannelWeCom, ChannelFeishu, ChannelWebhook}
}

func (c ChannelType) Valid() bool {
	switch c {
	case ChannelDingTalk, ChannelWeCom, ChannelFeishu, ChannelWebhook:
		return true
	}
	return false
}

// Channel is a configured push target. Config keys depend on the type:
// dingtalk wants secretKey (+ optional signSecret), wecom wants secretKey,
// feishu wants secretKey (+ optional signSecret), webhook wants url plus
// optional method/body/headers.
type Channel struct {
	Type    ChannelType
	Enabled bool
	Config  map[string]any
}

// Source yields the current channel set. Implemented by the storage layer.
type Source interface {
	Channels(ctx context.Context) ([]Channel, error)
}

// Event is one inbound SMS worth notifying about.
type Event struct {
	From    string
	Content string
	At      time.Time
}

const timeLayout = "2006-01-02 15:04:05"

// Vars exposes the event as template variables.
func (e Event) Vars() map[string]string {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return map[string]string{
		"from":      e.From,
		"content":   e.Content,
		"timestamp": at.Format(timeLayout),
	}
}

// Text renders the event as the plain-text body used by the bot channels.
func (e Event) Text() string {
	return Render("收到来自 {{from}} 的短信：\n{{content}}\n时间：{{timestamp}}", e.Vars())
}

// Request is a fully rendered outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// DeliveryResult records one channel attempt. Err is nil on success;
// Status is the HTTP status when a response was received, 0 otherwise.
type DeliveryResult struct {
	Channel ChannelType
	Status  int
	Err     error
}

func (r DeliveryResult) OK() bool { return r.Err == nil }

// Deliverer executes a rendered request against one channel.
type Deliverer interface {
	Do(ctx context.Context, ch ChannelType, req *Request) DeliveryResult
}

// Config tunes the async dispatch pipeline.
type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
	Timeout    time.Duration
}
