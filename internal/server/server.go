// Package server exposes the admin console HTTP API consumed by the web UI.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"smsrelay/internal/modem"
	"smsrelay/internal/notify"
	"smsrelay/internal/storage"
	"smsrelay/pkg/logx"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Triggerer is the slice of the scheduler the API needs.
type Triggerer interface {
	Trigger(ctx context.Context, id string) error
}

// Tester pushes a test notification through one channel.
type Tester interface {
	Test(ctx context.Context, typ notify.ChannelType) error
}

type Server struct {
	log    logx.Logger
	store  storage.Store
	sched  Triggerer
	tester Tester
	sender modem.Sender
	status modem.StatusProvider

	srv *http.Server

	mu sync.Mutex
	ln net.Listener
}

func New(cfg Config, store storage.Store, sched Triggerer, tester Tester, sender modem.Sender, status modem.StatusProvider, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8989"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Server{
		log:    log,
		store:  store,
		sched:  sched,
		tester: tester,
		sender: sender,
		status: status,
	}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/notification-channels", s.handleListChannels)
		r.Put("/notification-channels", s.handleSaveChannels)
		r.Post("/notification-channels/test", s.handleTestChannel)

		r.Get("/scheduled-tasks", s.handleListTasks)
		r.Post("/scheduled-tasks", s.handleCreateTask)
		r.Put("/scheduled-tasks/{id}", s.handleUpdateTask)
		r.Delete("/scheduled-tasks/{id}", s.handleDeleteTask)
		r.Post("/scheduled-tasks/{id}/trigger", s.handleTriggerTask)

		r.Get("/stats", s.handleStats)
		r.Get("/status", s.handleStatus)
		r.Post("/sms/send", s.handleSendSMS)
	})
	return r
}

// Start binds the listener and serves in the background. The bind happens
// here so a bad address fails startup instead of a goroutine.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http serve", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Addr returns the bound listen address, useful when configured with port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)))
	})
}
