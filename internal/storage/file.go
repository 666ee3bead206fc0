package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smsrelay/pkg/logx"
)

// fileStore is a dependency-free persistence backend for boxes where even
// SQLite is unwelcome.
//
// Files:
//   - <prefix>.state.json     (tasks + channels snapshot, atomically replaced)
//   - <prefix>.messages.jsonl (append-only inbound message journal)
//
// The snapshot is rewritten on every mutation; the journal is replayed on open
// to rebuild the dashboard counters.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	statePath string
	state     fileState

	msgFile *os.File
	msgs    []InboundMessage
	nextID  int64
}

type fileState struct {
	Tasks    []ScheduledTask `json:"tasks"`
	Channels []Channel       `json:"channels"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	statePath := prefix + ".state.json"
	msgPath := prefix + ".messages.jsonl"

	var state fileState
	if err := loadState(statePath, &state); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	msgs, err := replayMessages(msgPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	mf, err := os.OpenFile(msgPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	var nextID int64 = 1
	if len(msgs) > 0 {
		nextID = msgs[len(msgs)-1].ID + 1
	}

	return &fileStore{
		log:       log,
		statePath: statePath,
		state:     state,
		msgFile:   mf,
		msgs:      msgs,
		nextID:    nextID,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.msgFile != nil {
		err := s.msgFile.Close()
		s.msgFile = nil
		return err
	}
	return nil
}

// saveStateLocked writes the snapshot via tmp+rename so a crash mid-write
// never corrupts the previous state.
func (s *fileStore) saveStateLocked() error {
	tmp := s.statePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.state); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath)
}

// ---- Scheduled tasks ----

func (s *fileStore) ListTasks(ctx context.Context) ([]ScheduledTask, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScheduledTask(nil), s.state.Tasks...), nil
}

func (s *fileStore) GetTask(ctx context.Context, id string) (ScheduledTask, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.state.Tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return ScheduledTask{}, ErrNotFound
}

func (s *fileStore) CreateTask(ctx context.Context, t ScheduledTask) (string, error) {
	_ = ctx
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tasks = append(s.state.Tasks, t)
	if err := s.saveStateLocked(); err != nil {
		s.state.Tasks = s.state.Tasks[:len(s.state.Tasks)-1]
		return "", err
	}
	return t.ID, nil
}

func (s *fileStore) UpdateTask(ctx context.Context, id string, t ScheduledTask) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Tasks {
		if s.state.Tasks[i].ID == id {
			// Full field replace; the run anchor stays scheduler-owned.
			t.ID = id
			t.LastRunAt = s.state.Tasks[i].LastRunAt
			s.state.Tasks[i] = t
			return s.saveStateLocked()
		}
	}
	return ErrNotFound
}

func (s *fileStore) DeleteTask(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Tasks {
		if s.state.Tasks[i].ID == id {
			s.state.Tasks = append(s.state.Tasks[:i], s.state.Tasks[i+1:]...)
			return s.saveStateLocked()
		}
	}
	return ErrNotFound
}

func (s *fileStore) ListDueTasks(ctx context.Context, now time.Time) ([]ScheduledTask, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ScheduledTask
	for _, t := range s.state.Tasks {
		if t.Due(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fileStore) MarkTaskRun(ctx context.Context, id string, when time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Tasks {
		if s.state.Tasks[i].ID == id {
			s.state.Tasks[i].LastRunAt = when.UnixMilli()
			return s.saveStateLocked()
		}
	}
	return ErrNotFound
}

// ---- Notification channels ----

func (s *fileStore) ListChannels(ctx context.Context) ([]Channel, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Channel(nil), s.state.Channels...), nil
}

func (s *fileStore) ReplaceChannels(ctx context.Context, channels []Channel) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state.Channels
	s.state.Channels = append([]Channel(nil), channels...)
	if err := s.saveStateLocked(); err != nil {
		s.state.Channels = prev
		return err
	}
	return nil
}

// ---- Inbound messages ----

func (s *fileStore) AppendMessage(ctx context.Context, m InboundMessage) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.msgFile == nil {
		return errors.New("message journal closed")
	}
	if m.ReceivedAt <= 0 {
		m.ReceivedAt = time.Now().UnixMilli()
	}
	m.ID = s.nextID

	if err := json.NewEncoder(s.msgFile).Encode(m); err != nil {
		return err
	}
	s.nextID++
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *fileStore) Stats(ctx context.Context, now time.Time) (MessageStats, error) {
	_ = ctx
	midnight := startOfDay(now).UnixMilli()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := MessageStats{TotalCount: int64(len(s.msgs))}
	for _, m := range s.msgs {
		if m.ReceivedAt >= midnight {
			st.TodayCount++
		}
	}
	return st, nil
}

func loadState(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func replayMessages(path string) ([]InboundMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []InboundMessage
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m InboundMessage
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, sc.Err()
}
