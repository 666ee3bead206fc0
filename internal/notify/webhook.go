package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultWebhookBody = `{"from": "{{from}}", "content": "{{content}}", "timestamp": "{{timestamp}}"}`

// buildWebhook targets an arbitrary HTTP endpoint. url is required; method,
// body and headers are optional. Placeholders render in the URL (query
// escaped), the body (JSON escaped when the template looks like JSON) and
// header values.
func buildWebhook(cfg map[string]any, ev Event) (*Request, error) {
	rawURL := cfgString(cfg, "url")
	if rawURL == "" {
		return nil, configErr(ChannelWebhook, "url is required")
	}

	method := strings.ToUpper(cfgString(cfg, "method"))
	if method == "" {
		method = http.MethodPost
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, configErr(ChannelWebhook, "unsupported method %q", method)
	}

	vars := ev.Vars()

	queryVars := make(map[string]string, len(vars))
	for k, v := range vars {
		queryVars[k] = url.QueryEscape(v)
	}
	target := Render(rawURL, queryVars)
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, configErr(ChannelWebhook, "invalid url: %v", err)
	}

	header, err := webhookHeaders(cfg["headers"], vars)
	if err != nil {
		return nil, err
	}

	bodyTmpl, hasBody := cfg["body"].(string)
	if !hasBody || strings.TrimSpace(bodyTmpl) == "" {
		bodyTmpl = defaultWebhookBody
	}
	var body string
	if looksLikeJSON(bodyTmpl) {
		body = RenderJSON(bodyTmpl, vars)
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	} else {
		body = Render(bodyTmpl, vars)
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	}

	req := &Request{Method: method, URL: target, Header: header}
	if method != http.MethodGet {
		req.Body = []byte(body)
	}
	return req, nil
}

// webhookHeaders accepts either a headers object or a JSON object string.
func webhookHeaders(raw any, vars map[string]string) (http.Header, error) {
	h := http.Header{}
	switch v := raw.(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			s, ok := val.(string)
			if !ok {
				return nil, configErr(ChannelWebhook, "header %q is not a string", k)
			}
			h.Set(k, Render(s, vars))
		}
	case string:
		if strings.TrimSpace(v) == "" {
			break
		}
		var m map[string]string
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, configErr(ChannelWebhook, "headers is not a JSON object: %v", err)
		}
		for k, val := range m {
			h.Set(k, Render(val, vars))
		}
	default:
		return nil, configErr(ChannelWebhook, "headers must be an object, got %s", fmt.Sprintf("%T", raw))
	}
	return h, nil
}
