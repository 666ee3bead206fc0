package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"smsrelay/pkg/logx"
)

// testEvent is what a channel config test pushes through the channel.
func testEvent() Event {
	return Event{
		From:    "SMS Relay",
		Content: "这是一条测试通知，收到即表示该渠道配置正确。",
		At:      time.Now(),
	}
}

// Service is the async notification pipeline: queue + worker pool + shared
// rate limit. Each queued event fans out to every enabled channel; results
// are aggregated per channel and one failing channel never blocks another.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	src     Source
	deliver Deliverer

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	enqWG     sync.WaitGroup

	queue    chan Event
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, src Source, deliver Deliverer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log,
		src:     src,
		deliver: deliver,
	}
	s.applyLocked(cfg)
	if s.deliver == nil {
		s.deliver = NewHTTPDeliverer(cfg.Timeout, log)
	}
	return s
}

// Apply updates the pipeline tuning. Worker and queue sizes take effect on
// the next Start; the rate limit applies immediately.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Event, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			s.workerLoop()
		}()
	}
}

// Stop blocks intake and drains the queue best-effort until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.stopDone
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	// In-flight enqueues must finish before the queue can close.
	ch := make(chan struct{})
	go func() {
		s.enqWG.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		cancel()
		return
	case <-ch:
	}

	close(q)
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	cancel()

	s.mu.Lock()
	s.queue = nil
	s.stopDone = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()
}

// Publish enqueues an event for async dispatch. It never blocks the caller:
// a full queue returns ErrQueueFull and the event is dropped.
func (s *Service) Publish(ctx context.Context, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.enqWG.Add(1)
	s.mu.Unlock()
	defer s.enqWG.Done()

	select {
	case q <- ev:
		return nil
	default:
		s.log.Warn("notify queue full, dropping event", logx.String("from", ev.From))
		return ErrQueueFull
	}
}

func (s *Service) workerLoop() {
	s.mu.Lock()
	q := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()

	for ev := range q {
		select {
		case <-runCtx.Done():
			return
		default:
		}

		s.mu.Lock()
		lim := s.limiter
		s.mu.Unlock()
		if err := lim.Wait(runCtx); err != nil {
			return
		}

		s.Dispatch(runCtx, ev)
	}
}

// Dispatch fans the event out to every enabled channel concurrently and
// returns one result per enabled channel. Channels with broken configs get
// a *ConfigError result without any network attempt.
func (s *Service) Dispatch(ctx context.Context, ev Event) []DeliveryResult {
	channels, err := s.src.Channels(ctx)
	if err != nil {
		s.log.Error("load channels", logx.Err(err))
		return nil
	}

	var enabled []Channel
	for _, ch := range channels {
		if ch.Enabled && ch.Type.Valid() {
			enabled = append(enabled, ch)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	results := make([]DeliveryResult, len(enabled))
	var wg sync.WaitGroup
	for i, ch := range enabled {
		i, ch := i, ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.deliverOne(ctx, ch, ev)
		}()
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			s.log.Warn("notify delivery failed",
				logx.String("channel", string(r.Channel)),
				logx.Int("status", r.Status),
				logx.Err(r.Err))
		} else {
			s.log.Debug("notify delivered",
				logx.String("channel", string(r.Channel)),
				logx.Int("status", r.Status))
		}
	}
	return results
}

func (s *Service) deliverOne(ctx context.Context, ch Channel, ev Event) DeliveryResult {
	req, err := BuildRequest(ch, ev)
	if err != nil {
		return DeliveryResult{Channel: ch.Type, Err: err}
	}
	return s.deliver.Do(ctx, ch.Type, req)
}

// Test pushes a synthetic notification through one channel synchronously.
// A missing channel returns ErrNotConfigured and a disabled one ErrDisabled,
// so callers can map the two cases to different responses.
func (s *Service) Test(ctx context.Context, typ ChannelType) error {
	if !typ.Valid() {
		return configErr(typ, "unknown channel type")
	}
	channels, err := s.src.Channels(ctx)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		if ch.Type != typ {
			continue
		}
		if !ch.Enabled {
			return ErrDisabled
		}
		res := s.deliverOne(ctx, ch, testEvent())
		return res.Err
	}
	return ErrNotConfigured
}
