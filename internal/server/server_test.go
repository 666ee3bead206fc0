package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"smsrelay/internal/modem"
	"smsrelay/internal/notify"
	"smsrelay/internal/scheduler"
	"smsrelay/internal/storage"
	"smsrelay/pkg/logx"
)

type fakeTriggerer struct {
	err    error
	lastID string
}

func (f *fakeTriggerer) Trigger(ctx context.Context, id string) error {
	f.lastID = id
	return f.err
}

type fakeTester struct {
	err      error
	lastType notify.ChannelType
}

func (f *fakeTester) Test(ctx context.Context, typ notify.ChannelType) error {
	f.lastType = typ
	return f.err
}

type testEnv struct {
	srv     *httptest.Server
	store   storage.Store
	trigger *fakeTriggerer
	tester  *fakeTester
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "relay.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	trigger := &fakeTriggerer{}
	tester := &fakeTester{}
	stub := modem.NewStub(logx.Nop())
	s := New(Config{}, store, trigger, tester, stub, stub, logx.Nop())

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, trigger: trigger, tester: tester}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	resp := env.do(t, http.MethodGet, "/api/scheduled-tasks", nil)
	if got := decodeBody[[]storage.ScheduledTask](t, resp); len(got) != 0 {
		t.Fatalf("fresh store must list no tasks, got %+v", got)
	}

	resp = env.do(t, http.MethodPost, "/api/scheduled-tasks", map[string]any{
		"name":         "monthly balance",
		"intervalDays": 30,
		"phoneNumber":  "10086",
		"content":      "YE",
		"enabled":      true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[storage.ScheduledTask](t, resp)
	if created.ID == "" || created.LastRunAt != 0 {
		t.Fatalf("unexpected created task: %+v", created)
	}

	created.Content = "CXYE"
	resp = env.do(t, http.MethodPut, "/api/scheduled-tasks/"+created.ID, created)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d, want 200", resp.StatusCode)
	}
	if got := decodeBody[storage.ScheduledTask](t, resp); got.Content != "CXYE" {
		t.Fatalf("update lost content: %+v", got)
	}

	resp = env.do(t, http.MethodDelete, "/api/scheduled-tasks/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d, want 200", resp.StatusCode)
	}
	resp = env.do(t, http.MethodDelete, "/api/scheduled-tasks/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete missing = %d, want 404", resp.StatusCode)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "empty name", body: map[string]any{"name": " ", "intervalDays": 7, "phoneNumber": "10086", "content": "x"}},
		{name: "zero interval", body: map[string]any{"name": "t", "intervalDays": 0, "phoneNumber": "10086", "content": "x"}},
		{name: "missing phone", body: map[string]any{"name": "t", "intervalDays": 7, "content": "x"}},
		{name: "missing content", body: map[string]any{"name": "t", "intervalDays": 7, "phoneNumber": "10086"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/scheduled-tasks", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestTriggerTaskStatuses(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	resp := env.do(t, http.MethodPost, "/api/scheduled-tasks/abc/trigger", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trigger = %d, want 200", resp.StatusCode)
	}
	if env.trigger.lastID != "abc" {
		t.Fatalf("trigger called with %q", env.trigger.lastID)
	}

	env.trigger.err = storage.ErrNotFound
	resp = env.do(t, http.MethodPost, "/api/scheduled-tasks/abc/trigger", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("trigger missing = %d, want 404", resp.StatusCode)
	}

	env.trigger.err = scheduler.ErrTaskRunning
	resp = env.do(t, http.MethodPost, "/api/scheduled-tasks/abc/trigger", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("trigger busy = %d, want 409", resp.StatusCode)
	}
}

func TestChannelRoundTrip(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	payload := []storage.Channel{
		{Type: "dingtalk", Enabled: true, Config: map[string]any{"secretKey": "tok", "signSecret": "SEC"}},
		{Type: "webhook", Enabled: false, Config: map[string]any{}},
	}
	resp := env.do(t, http.MethodPut, "/api/notification-channels", payload)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save = %d, want 200", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/notification-channels", nil)
	got := decodeBody[[]storage.Channel](t, resp)
	if len(got) != 2 {
		t.Fatalf("list = %d channels, want 2", len(got))
	}
}

func TestSaveChannelsValidation(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	tests := []struct {
		name    string
		payload []storage.Channel
	}{
		{name: "unknown type", payload: []storage.Channel{{Type: "telegram", Enabled: true}}},
		{name: "duplicate type", payload: []storage.Channel{
			{Type: "wecom", Enabled: false, Config: map[string]any{}},
			{Type: "wecom", Enabled: false, Config: map[string]any{}},
		}},
		{name: "enabled without key", payload: []storage.Channel{
			{Type: "wecom", Enabled: true, Config: map[string]any{}},
		}},
		{name: "webhook bad method", payload: []storage.Channel{
			{Type: "webhook", Enabled: true, Config: map[string]any{"url": "https://example.com", "method": "TRACE"}},
		}},
		{name: "webhook broken headers", payload: []storage.Channel{
			{Type: "webhook", Enabled: true, Config: map[string]any{"url": "https://example.com", "headers": "not json"}},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPut, "/api/notification-channels", tt.payload)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}

	// Disabled channels may be saved half-configured.
	resp := env.do(t, http.MethodPut, "/api/notification-channels", []storage.Channel{
		{Type: "feishu", Enabled: false, Config: map[string]any{}},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disabled incomplete channel = %d, want 200", resp.StatusCode)
	}
}

func TestTestChannelStatuses(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	resp := env.do(t, http.MethodPost, "/api/notification-channels/test", map[string]string{"type": "dingtalk"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("test ok = %d, want 200", resp.StatusCode)
	}
	if env.tester.lastType != notify.ChannelDingTalk {
		t.Fatalf("tester called with %q", env.tester.lastType)
	}

	env.tester.err = notify.ErrNotConfigured
	resp = env.do(t, http.MethodPost, "/api/notification-channels/test", map[string]string{"type": "wecom"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("not configured = %d, want 400", resp.StatusCode)
	}

	env.tester.err = &notify.StatusError{Status: 500, Body: "upstream down"}
	resp = env.do(t, http.MethodPost, "/api/notification-channels/test", map[string]string{"type": "wecom"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("delivery failure = %d, want 502", resp.StatusCode)
	}

	env.tester.err = errors.New("dial tcp: timeout")
	resp = env.do(t, http.MethodPost, "/api/notification-channels/test", map[string]string{"type": "wecom"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("transport failure = %d, want 502", resp.StatusCode)
	}
}

func TestStatsAndStatus(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	if err := env.store.AppendMessage(context.Background(), storage.InboundMessage{From: "10086", Content: "hi"}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	resp := env.do(t, http.MethodGet, "/api/stats", nil)
	stats := decodeBody[storage.MessageStats](t, resp)
	if stats.TotalCount != 1 || stats.TodayCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	resp = env.do(t, http.MethodGet, "/api/status", nil)
	status := decodeBody[map[string]modem.Status](t, resp)
	if status["mobile"].Operator == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSendSMS(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	resp := env.do(t, http.MethodPost, "/api/sms/send", map[string]string{"phoneNumber": "10086", "content": "CXYE"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send = %d, want 200", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/sms/send", map[string]string{"phoneNumber": "", "content": "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty phone = %d, want 400", resp.StatusCode)
	}
}
