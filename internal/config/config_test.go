package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
server:
  addr: "0.0.0.0:9000"
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: sqlite
  path: ./relay.db
scheduler:
  enabled: true
  tick_interval: 30s
  notify_on_send: true
notify:
  workers: 4
  rate_per_sec: 10
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
	if cfg.Scheduler.Enabled == nil || !*cfg.Scheduler.Enabled {
		t.Fatalf("scheduler.enabled = %v", cfg.Scheduler.Enabled)
	}
	if !cfg.Scheduler.NotifyOnSend {
		t.Fatal("notify_on_send lost")
	}
	if cfg.Notify.Workers != 4 || cfg.Notify.RatePerSec != 10 {
		t.Fatalf("unexpected notify: %+v", cfg.Notify)
	}
	if m.Get() != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
server:
  addr: ":9000"
  unknown_knob: true
logging:
  level: info
storage:
  driver: sqlite
scheduler: {}
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field must be rejected")
	}
}

func TestParseJSONPassthrough(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"server":{"addr":":9000"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"storage":{"driver":"file","path":"./relay.json"},"scheduler":{}}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("Driver = %q", cfg.Storage.Driver)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", " 90s ")
	if err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "ninety"); err == nil {
		t.Fatal("garbage duration must fail")
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration must fail")
	}
	d, err = ParseDurationOrDefault("x", "", 7*time.Second)
	if err != nil || d != 7*time.Second {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
}

func TestWatchReload(t *testing.T) {
	t.Parallel()
	base := `
server:
  addr: "127.0.0.1:8989"
logging:
  level: %s
storage:
  driver: sqlite
scheduler: {}
`
	path := writeConfig(t, "config.yaml", "")
	write := func(level string) {
		content := []byte(fmt.Sprintf(base, level))
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
	}
	write("info")

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Give the watcher a moment to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	write("debug")

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("reloaded level = %q", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload never published")
	}
}
