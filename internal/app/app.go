// Package app wires the relay together: config, logging, storage, the
// notification pipeline, the task scheduler and the HTTP API.
package app

import (
	"context"
	"sync"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/modem"
	"smsrelay/internal/notify"
	"smsrelay/internal/scheduler"
	"smsrelay/internal/server"
	"smsrelay/internal/storage"
	"smsrelay/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	dev   *modem.Stub

	notif *notify.Service
	sched *scheduler.Service
	srv   *server.Server

	watchCancel context.CancelFunc
	cfgCh       chan *config.Config
	wg          sync.WaitGroup
}

// channelSource adapts the storage layer to the dispatcher's view of the
// channel set, so every dispatch sees the channels as currently saved.
type channelSource struct {
	store storage.Store
}

func (c channelSource) Channels(ctx context.Context) ([]notify.Channel, error) {
	stored, err := c.store.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]notify.Channel, 0, len(stored))
	for _, ch := range stored {
		out = append(out, notify.Channel{
			Type:    notify.ChannelType(ch.Type),
			Enabled: ch.Enabled,
			Config:  ch.Config,
		})
	}
	return out, nil
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	dev := modem.NewStub(log.With(logx.String("comp", "modem")))
	if cfg.Modem.Device != "" {
		log.Warn("modem.device set but no serial driver is built in, using stub",
			logx.String("device", cfg.Modem.Device))
	}

	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	notif := notify.New(ncfg, channelSource{store: store}, nil, log.With(logx.String("comp", "notify")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		dev:     dev,
		notif:   notif,
	}

	var onSent scheduler.OnSent
	if cfg.Scheduler.NotifyOnSend {
		onSent = a.notifySent
	}
	a.sched = scheduler.New(schedCfg, store, dev, onSent, log.With(logx.String("comp", "scheduler")))

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}
	a.srv = server.New(srvCfg, store, a.sched, notif, dev, dev, log.With(logx.String("comp", "http")))

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapServerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		_, err := mapNotifyConfig(cfg)
		return err
	})

	a.notif.Start(ctx)
	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	if err := a.srv.Start(ctx); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.cfgCh = a.cfgm.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for cfg := range a.cfgCh {
			a.applyReload(cfg)
		}
	}()

	a.log.Info("smsrelay started")
	return nil
}

// applyReload hot-applies what can change without a restart: log level and
// sinks, and the dispatch pipeline tuning. Storage, scheduler cadence and
// the listen address need a process restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))
	if ncfg, err := mapNotifyConfig(cfg); err == nil {
		a.notif.Apply(ncfg)
	}
	a.log.Info("config applied")
}

// HandleInbound records one SMS received by the device and pushes it to the
// notification channels. The device integration calls this for every message.
func (a *App) HandleInbound(ctx context.Context, from, content string) error {
	now := time.Now()
	if err := a.store.AppendMessage(ctx, storage.InboundMessage{
		From:       from,
		Content:    content,
		ReceivedAt: now.UnixMilli(),
	}); err != nil {
		return err
	}
	if err := a.notif.Publish(ctx, notify.Event{From: from, Content: content, At: now}); err != nil {
		a.log.Warn("inbound notify dropped", logx.String("from", from), logx.Err(err))
	}
	return nil
}

// notifySent mirrors scheduled send outcomes into the notification channels.
func (a *App) notifySent(task storage.ScheduledTask, sendErr error) {
	ev := notify.Event{
		From:    "定时任务 " + task.Name,
		Content: "已发送至 " + task.PhoneNumber + "：" + task.Content,
		At:      time.Now(),
	}
	if sendErr != nil {
		ev.Content = "发送失败（" + task.PhoneNumber + "）：" + sendErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.notif.Publish(ctx, ev); err != nil {
		a.log.Warn("send notification dropped", logx.String("task", task.ID), logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context) error {
	if err := a.srv.Stop(ctx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}
	a.sched.Stop(ctx)
	a.notif.Stop(ctx)

	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
	}
	a.wg.Wait()

	err := a.store.Close()
	a.log.Info("smsrelay stopped")
	a.logs.Close()
	return err
}
