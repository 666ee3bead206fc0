package app

import (
	"fmt"
	"strings"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/notify"
	"smsrelay/internal/scheduler"
	"smsrelay/internal/server"
	"smsrelay/internal/storage"
	"smsrelay/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	read, err := config.ParseDurationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 15*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", cfg.Server.WriteTimeout, 60*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", cfg.Server.IdleTimeout, 120*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}
	if sc.Path == "" {
		sc.Path = "./smsrelay.db"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	sc.BusyTimeout = busy

	switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
	case "", "sqlite", "sqlite3", "file":
	default:
		return storage.Config{}, fmt.Errorf("storage.driver: unknown driver %q", sc.Driver)
	}
	return sc, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	enabled := true
	if cfg.Scheduler.Enabled != nil {
		enabled = *cfg.Scheduler.Enabled
	}
	tick, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("scheduler.send_timeout", cfg.Scheduler.SendTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	if tick < time.Second {
		return scheduler.Config{}, fmt.Errorf("scheduler.tick_interval: %v is below 1s", tick)
	}
	return scheduler.Config{
		Enabled:      enabled,
		TickInterval: tick,
		SendTimeout:  sendTimeout,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	timeout, err := config.ParseDurationOrDefault("notify.timeout", cfg.Notify.Timeout, 10*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	if cfg.Notify.Workers < 0 {
		return notify.Config{}, fmt.Errorf("notify.workers must be >= 0")
	}
	if cfg.Notify.QueueSize < 0 {
		return notify.Config{}, fmt.Errorf("notify.queue_size must be >= 0")
	}
	if cfg.Notify.RatePerSec < 0 {
		return notify.Config{}, fmt.Errorf("notify.rate_per_sec must be >= 0")
	}
	return notify.Config{
		Workers:    cfg.Notify.Workers,
		QueueSize:  cfg.Notify.QueueSize,
		RatePerSec: cfg.Notify.RatePerSec,
		Timeout:    timeout,
	}, nil
}
