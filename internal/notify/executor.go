package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"smsrelay/pkg/logx"
)

const defaultSendTimeout = 10 * time.Second

// HTTPDeliverer executes rendered requests with one shared client.
type HTTPDeliverer struct {
	client *http.Client
	log    logx.Logger
}

func NewHTTPDeliverer(timeout time.Duration, log logx.Logger) *HTTPDeliverer {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPDeliverer{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (d *HTTPDeliverer) Do(ctx context.Context, ch ChannelType, req *Request) DeliveryResult {
	res := DeliveryResult{Channel: ch}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		res.Err = err
		return res
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		res.Err = &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		return res
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return res
}
