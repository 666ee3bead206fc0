// Package scheduler runs the recurring SMS tasks: every tick it finds tasks
// whose interval has elapsed, sends them through the modem and advances the
// schedule anchor. A failed send still advances the anchor, so a broken
// upstream retries on the next interval rather than every tick.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"smsrelay/internal/storage"
	"smsrelay/pkg/logx"
)

// ErrTaskRunning is returned by Trigger when the task is mid-send.
var ErrTaskRunning = errors.New("task is already running")

// SMSSender submits one outbound SMS. Implemented by the modem layer.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, content string) error
}

// Store is the slice of the storage layer the scheduler needs.
type Store interface {
	GetTask(ctx context.Context, id string) (storage.ScheduledTask, error)
	ListDueTasks(ctx context.Context, now time.Time) ([]storage.ScheduledTask, error)
	MarkTaskRun(ctx context.Context, id string, when time.Time) error
}

type Config struct {
	Enabled      bool
	TickInterval time.Duration
	SendTimeout  time.Duration
}

// OnSent is called after each task execution with the send outcome.
type OnSent func(task storage.ScheduledTask, sendErr error)

type Service struct {
	log    logx.Logger
	store  Store
	sender SMSSender
	cfg    Config
	onSent OnSent

	cron  *cron.Cron
	runWG sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, store Store, sender SMSSender, onSent OnSent, log logx.Logger) *Service {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		store:   store,
		sender:  sender,
		cfg:     cfg,
		onSent:  onSent,
		running: map[string]struct{}{},
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}

	s.runCtx, s.runCancel = context.WithCancel(ctx)
	c := cron.New()
	_, err := c.AddFunc("@every "+s.cfg.TickInterval.String(), func() {
		s.RunDue(s.runCtx, time.Now())
	})
	if err != nil {
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("scheduler started", logx.Duration("tick", s.cfg.TickInterval))
	return nil
}

// Stop halts the tick and waits for in-flight sends until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	cancel := s.runCancel
	s.cron = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}
}

// RunDue executes every task due at now. Tasks run concurrently; one that is
// still mid-send from a previous tick is skipped, not queued.
func (s *Service) RunDue(ctx context.Context, now time.Time) {
	due, err := s.store.ListDueTasks(ctx, now)
	if err != nil {
		s.log.Error("list due tasks", logx.Err(err))
		return
	}
	for _, task := range due {
		task := task
		if !s.acquire(task.ID) {
			s.log.Debug("task still running, skipping tick", logx.String("task", task.ID))
			continue
		}
		s.runWG.Add(1)
		go func() {
			defer s.runWG.Done()
			defer s.release(task.ID)
			s.execute(ctx, task)
		}()
	}
}

// Trigger runs one task immediately, regardless of its schedule. It returns
// storage.ErrNotFound for an unknown id and ErrTaskRunning when the task is
// mid-send; a failed send is logged, not returned, and still advances the
// schedule.
func (s *Service) Trigger(ctx context.Context, id string) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !s.acquire(id) {
		return ErrTaskRunning
	}
	defer s.release(id)
	s.execute(ctx, task)
	return nil
}

func (s *Service) execute(ctx context.Context, task storage.ScheduledTask) {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	sendErr := s.sender.Send(sendCtx, task.PhoneNumber, task.Content)
	cancel()

	if sendErr != nil {
		s.log.Error("scheduled send failed",
			logx.String("task", task.ID),
			logx.String("name", task.Name),
			logx.Err(sendErr))
	} else {
		s.log.Info("scheduled send ok",
			logx.String("task", task.ID),
			logx.String("name", task.Name),
			logx.String("to", task.PhoneNumber))
	}

	// The anchor advances even on failure.
	if err := s.store.MarkTaskRun(ctx, task.ID, time.Now()); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("mark task run", logx.String("task", task.ID), logx.Err(err))
	}

	if s.onSent != nil {
		s.onSent(task, sendErr)
	}
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[id]; busy {
		return false
	}
	s.running[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}
