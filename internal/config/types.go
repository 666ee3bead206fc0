package config

type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
	Modem     ModemConfig     `json:"modem,omitempty"`
}

// ServerConfig controls the admin console HTTP API.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type ServerConfig struct {
	Addr         string `json:"addr"` // default: "127.0.0.1:8989"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file":   dependency-free file backend (snapshot + jsonl)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the scheduled-SMS runner.
//
// Enabled is a pointer so we can distinguish "omitted" (default true)
// from an explicit false.
type SchedulerConfig struct {
	Enabled *bool `json:"enabled,omitempty"`

	// TickInterval is how often due tasks are scanned. Default "60s".
	TickInterval string `json:"tick_interval,omitempty"`

	// SendTimeout bounds one modem send. Default "30s".
	SendTimeout string `json:"send_timeout,omitempty"`

	// NotifyOnSend mirrors every scheduled send into the notification channels.
	NotifyOnSend bool `json:"notify_on_send,omitempty"`
}

// NotifyConfig controls the async notification dispatch pipeline.
//
// If the whole section is omitted, the dispatcher runs with defaults.
type NotifyConfig struct {
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"` // per outbound HTTP call, default "10s"
}

// ModemConfig describes the attached serial modem.
//
// The serial driver itself lives outside this repo; when Device is empty a
// logging stub is wired in so the engine stays usable in development.
type ModemConfig struct {
	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`
}
