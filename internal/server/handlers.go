package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"smsrelay/internal/notify"
	"smsrelay/internal/scheduler"
	"smsrelay/internal/storage"
	"smsrelay/pkg/logx"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// ---- Notification channels ----

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.ListChannels(r.Context())
	if err != nil {
		s.log.Error("list channels", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load channels")
		return
	}
	if channels == nil {
		channels = []storage.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

// handleSaveChannels replaces the whole channel set. The payload is the
// same array shape GET returns.
func (s *Server) handleSaveChannels(w http.ResponseWriter, r *http.Request) {
	var channels []storage.Channel
	if !decodeJSON(w, r, &channels) {
		return
	}
	if err := validateChannels(channels); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.ReplaceChannels(r.Context(), channels); err != nil {
		s.log.Error("save channels", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to save channels")
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

// validateChannels rejects what would break delivery later: unknown types,
// duplicate types, and enabled channels whose config cannot render a
// request. Disabled channels may stay incomplete while being filled in.
func validateChannels(channels []storage.Channel) error {
	seen := map[string]bool{}
	probe := notify.Event{From: "probe", Content: "probe", At: time.Now()}
	for _, ch := range channels {
		typ := notify.ChannelType(ch.Type)
		if !typ.Valid() {
			return fmt.Errorf("unknown channel type %q", ch.Type)
		}
		if seen[ch.Type] {
			return fmt.Errorf("duplicate channel type %q", ch.Type)
		}
		seen[ch.Type] = true
		if !ch.Enabled {
			continue
		}
		if _, err := notify.BuildRequest(notify.Channel{Type: typ, Enabled: true, Config: ch.Config}, probe); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := s.tester.Test(r.Context(), notify.ChannelType(req.Type))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	case errors.Is(err, notify.ErrNotConfigured):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("channel %q is not configured", req.Type))
	case errors.Is(err, notify.ErrDisabled):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("channel %q is disabled", req.Type))
	case isConfigError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		// The config was fine but the upstream rejected or never answered.
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func isConfigError(err error) bool {
	var cfgErr *notify.ConfigError
	return errors.As(err, &cfgErr)
}

// ---- Scheduled tasks ----

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.log.Error("list tasks", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}
	if tasks == nil {
		tasks = []storage.ScheduledTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func validateTask(t storage.ScheduledTask) error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(t.PhoneNumber) == "" {
		return errors.New("phoneNumber is required")
	}
	if strings.TrimSpace(t.Content) == "" {
		return errors.New("content is required")
	}
	if t.IntervalDays < 1 {
		return errors.New("intervalDays must be at least 1")
	}
	return nil
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var task storage.ScheduledTask
	if !decodeJSON(w, r, &task) {
		return
	}
	if err := validateTask(task); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task.ID = ""
	task.LastRunAt = 0

	id, err := s.store.CreateTask(r.Context(), task)
	if err != nil {
		s.log.Error("create task", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	created, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.log.Error("load created task", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var task storage.ScheduledTask
	if !decodeJSON(w, r, &task) {
		return
	}
	if err := validateTask(task); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.store.UpdateTask(r.Context(), id, task)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case err != nil:
		s.log.Error("update task", logx.String("id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to update task")
	default:
		updated, err := s.store.GetTask(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load task")
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.store.DeleteTask(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case err != nil:
		s.log.Error("delete task", logx.String("id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to delete task")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.sched.Trigger(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, scheduler.ErrTaskRunning):
		writeError(w, http.StatusConflict, "task is already running")
	case err != nil:
		s.log.Error("trigger task", logx.String("id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to trigger task")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
	}
}

// ---- Dashboard ----

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), time.Now())
	if err != nil {
		s.log.Error("stats", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.status.Status(r.Context())
	if err != nil {
		s.log.Error("modem status", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to read modem status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mobile": st})
}

// ---- Outbound SMS ----

func (s *Server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
		Content     string `json:"content"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "phoneNumber and content are required")
		return
	}
	if err := s.sender.Send(r.Context(), req.PhoneNumber, req.Content); err != nil {
		s.log.Error("send sms", logx.String("to", req.PhoneNumber), logx.Err(err))
		writeError(w, http.StatusBadGateway, "send failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
