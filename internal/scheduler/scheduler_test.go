package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smsrelay/internal/storage"
	"smsrelay/pkg/logx"
)

type memStore struct {
	mu    sync.Mutex
	tasks map[string]storage.ScheduledTask
}

func newMemStore(tasks ...storage.ScheduledTask) *memStore {
	m := &memStore{tasks: map[string]storage.ScheduledTask{}}
	for _, t := range tasks {
		m.tasks[t.ID] = t
	}
	return m
}

func (m *memStore) GetTask(ctx context.Context, id string) (storage.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return storage.ScheduledTask{}, storage.ErrNotFound
	}
	return t, nil
}

func (m *memStore) ListDueTasks(ctx context.Context, now time.Time) ([]storage.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ScheduledTask
	for _, t := range m.tasks {
		if t.Due(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) MarkTaskRun(ctx context.Context, id string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.LastRunAt = when.UnixMilli()
	m.tasks[id] = t
	return nil
}

func (m *memStore) lastRun(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id].LastRunAt
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	err   error
	block chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, phone, content string) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, phone+":"+content)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunDueSendsAndAdvances(t *testing.T) {
	t.Parallel()
	now := time.Now()
	store := newMemStore(
		storage.ScheduledTask{ID: "a", Name: "due", Enabled: true, IntervalDays: 30, PhoneNumber: "10086", Content: "YE"},
		storage.ScheduledTask{ID: "b", Name: "fresh", Enabled: true, IntervalDays: 30, PhoneNumber: "10086", Content: "YE", LastRunAt: now.UnixMilli()},
	)
	sender := &fakeSender{}
	svc := New(Config{}, store, sender, nil, logx.Nop())

	svc.RunDue(context.Background(), now)
	waitFor(t, func() bool { return sender.count() == 1 })
	waitFor(t, func() bool { return store.lastRun("a") > 0 })

	// Second tick: nothing is due anymore.
	svc.RunDue(context.Background(), time.Now())
	time.Sleep(50 * time.Millisecond)
	if sender.count() != 1 {
		t.Fatalf("sent %d, want 1", sender.count())
	}
}

func TestFailedSendStillAdvances(t *testing.T) {
	t.Parallel()
	store := newMemStore(storage.ScheduledTask{ID: "a", Enabled: true, IntervalDays: 7, PhoneNumber: "10086", Content: "x"})
	sender := &fakeSender{err: errors.New("modem busy")}

	var gotErr error
	var hookWG sync.WaitGroup
	hookWG.Add(1)
	svc := New(Config{}, store, sender, func(task storage.ScheduledTask, sendErr error) {
		gotErr = sendErr
		hookWG.Done()
	}, logx.Nop())

	svc.RunDue(context.Background(), time.Now())
	hookWG.Wait()

	if gotErr == nil {
		t.Fatal("hook must see the send error")
	}
	if store.lastRun("a") == 0 {
		t.Fatal("failed send must still advance the schedule")
	}
}

func TestTrigger(t *testing.T) {
	t.Parallel()
	store := newMemStore(storage.ScheduledTask{ID: "a", Enabled: true, IntervalDays: 7, PhoneNumber: "10086", Content: "x", LastRunAt: time.Now().UnixMilli()})
	sender := &fakeSender{}
	svc := New(Config{}, store, sender, nil, logx.Nop())

	// Trigger ignores the schedule: the task is not due but runs anyway.
	if err := svc.Trigger(context.Background(), "a"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("sent %d, want 1", sender.count())
	}

	if err := svc.Trigger(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Trigger missing = %v, want ErrNotFound", err)
	}
}

func TestTriggerConflict(t *testing.T) {
	t.Parallel()
	store := newMemStore(storage.ScheduledTask{ID: "a", Enabled: true, IntervalDays: 7, PhoneNumber: "10086", Content: "x"})
	block := make(chan struct{})
	sender := &fakeSender{block: block}
	svc := New(Config{}, store, sender, nil, logx.Nop())

	done := make(chan error, 1)
	go func() {
		done <- svc.Trigger(context.Background(), "a")
	}()

	waitFor(t, func() bool {
		svc.mu.Lock()
		_, busy := svc.running["a"]
		svc.mu.Unlock()
		return busy
	})

	if err := svc.Trigger(context.Background(), "a"); !errors.Is(err, ErrTaskRunning) {
		t.Fatalf("concurrent Trigger = %v, want ErrTaskRunning", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first Trigger: %v", err)
	}
	// Slot is released once the run finishes.
	if err := svc.Trigger(context.Background(), "a"); err != nil {
		t.Fatalf("Trigger after release: %v", err)
	}
}

func TestTriggerSendFailureNotReturned(t *testing.T) {
	t.Parallel()
	store := newMemStore(storage.ScheduledTask{ID: "a", Enabled: true, IntervalDays: 7, PhoneNumber: "10086", Content: "x"})
	sender := &fakeSender{err: errors.New("no signal")}
	svc := New(Config{}, store, sender, nil, logx.Nop())

	if err := svc.Trigger(context.Background(), "a"); err != nil {
		t.Fatalf("Trigger = %v, send failures are logged not returned", err)
	}
	if store.lastRun("a") == 0 {
		t.Fatal("trigger must advance the schedule")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	store := newMemStore(storage.ScheduledTask{ID: "a", Enabled: true, IntervalDays: 1, PhoneNumber: "10086", Content: "x"})
	sender := &fakeSender{}
	svc := New(Config{Enabled: true, TickInterval: time.Second}, store, sender, nil, logx.Nop())

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for sender.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("tick never fired")
		}
		time.Sleep(25 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	svc.Stop(stopCtx)
}
