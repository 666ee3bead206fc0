package notify

import (
	"encoding/json"
	"net/http"
	"strings"
)

// BuildRequest renders a channel config plus an event into the HTTP request
// that delivers it. It never touches the network; a failure is always a
// *ConfigError.
func BuildRequest(ch Channel, ev Event) (*Request, error) {
	switch ch.Type {
	case ChannelDingTalk:
		return buildDingTalk(ch.Config, ev)
	case ChannelWeCom:
		return buildWeCom(ch.Config, ev)
	case ChannelFeishu:
		return buildFeishu(ch.Config, ev)
	case ChannelWebhook:
		return buildWebhook(ch.Config, ev)
	default:
		return nil, configErr(ch.Type, "unknown channel type")
	}
}

func cfgString(cfg map[string]any, key string) string {
	if cfg == nil {
		return ""
	}
	if v, ok := cfg[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func jsonRequest(url string, payload any) (*Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &Request{Method: http.MethodPost, URL: url, Header: h, Body: body}, nil
}
