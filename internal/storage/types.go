package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": dependency-free file backend (snapshot + jsonl)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ScheduledTask is one periodic SMS job. Field names match the wire format
// the admin console expects; LastRunAt is unix milliseconds, 0 = never run.
type ScheduledTask struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	IntervalDays int    `json:"intervalDays"`
	PhoneNumber  string `json:"phoneNumber"`
	Content      string `json:"content"`
	LastRunAt    int64  `json:"lastRunAt"`
}

// Due reports whether the task should run at now. A never-run enabled task is
// always due; otherwise the task is due once a full interval has elapsed since
// the last run.
func (t ScheduledTask) Due(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	if t.LastRunAt <= 0 {
		return true
	}
	interval := int64(t.IntervalDays) * 24 * int64(time.Hour/time.Millisecond)
	return now.UnixMilli() >= t.LastRunAt+interval
}

// Channel is one configured notification endpoint. Config keys depend on
// the channel type; the store keeps them as an opaque map.
type Channel struct {
	Type    string         `json:"type"`
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config"`
}

// InboundMessage is one SMS received by the modem.
type InboundMessage struct {
	ID         int64  `json:"id"`
	From       string `json:"from"`
	Content    string `json:"content"`
	ReceivedAt int64  `json:"receivedAt"` // unix milliseconds
}

// MessageStats backs the dashboard counters.
type MessageStats struct {
	TotalCount int64 `json:"totalCount"`
	TodayCount int64 `json:"todayCount"`
}

// Store is the persistence API used by the scheduler, the dispatcher and the
// HTTP layer.
type Store interface {
	ListTasks(ctx context.Context) ([]ScheduledTask, error)
	GetTask(ctx context.Context, id string) (ScheduledTask, error)
	CreateTask(ctx context.Context, t ScheduledTask) (string, error)
	UpdateTask(ctx context.Context, id string, t ScheduledTask) error
	DeleteTask(ctx context.Context, id string) error
	ListDueTasks(ctx context.Context, now time.Time) ([]ScheduledTask, error)
	MarkTaskRun(ctx context.Context, id string, when time.Time) error

	ListChannels(ctx context.Context) ([]Channel, error)
	ReplaceChannels(ctx context.Context, channels []Channel) error

	AppendMessage(ctx context.Context, m InboundMessage) error
	Stats(ctx context.Context, now time.Time) (MessageStats, error)

	Close() error
}
