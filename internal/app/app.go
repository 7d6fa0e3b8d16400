// Package app wires the reminder core, the record store, the notifier and
// the HTTP surface into one process and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"assistant/internal/config"
	"assistant/internal/eventbus"
	"assistant/internal/httpapi"
	"assistant/internal/notifier"
	"assistant/internal/reminder"
	rtsup "assistant/internal/runtime/supervisor"
	"assistant/internal/storage"
	"assistant/internal/task/engine"
	"assistant/internal/task/scheduler"
	logx "assistant/pkg/logx"
	"assistant/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     storage.Store
	engine    *engine.Service
	sched     *scheduler.Service
	notif     *notifier.Service
	reminders *reminder.Service
	http      *httpapi.Server
	sd        *systemd.Notifier

	sup *rtsup.Supervisor
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	logs, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	return newApp(cfgm, cfg, logs, log)
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, logs *logx.Service, log logx.Logger) (*App, error) {
	bus := eventbus.New()

	scfg, err := StorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	// Close the store if any later step fails.
	ok := false
	defer func() {
		if !ok {
			_ = store.Close()
		}
	}()

	ecfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engineSvc := engine.New(ecfg, log.With(logx.String("comp", "task.engine")), bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	nlog := log.With(logx.String("comp", "notifier"))
	sinks, err := buildSinks(cfg, nlog)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, nlog, bus, sinks...)

	dispatcher := reminder.NewDispatcher(store, notifSvc, log.With(logx.String("comp", "reminder.dispatch")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(schedCfg, engineSvc, dispatcher, log.With(logx.String("comp", "scheduler")), bus)

	rlog := log.With(logx.String("comp", "reminder"))
	remSvc := reminder.NewService(schedSvc, reminder.NewResolver(rlog), mapReminderConfig(cfg), rlog)

	var httpSrv *httpapi.Server
	if cfg.HTTP.Enabled {
		hcfg, err := mapHTTPConfig(cfg)
		if err != nil {
			return nil, err
		}
		httpSrv, err = httpapi.New(hcfg, httpapi.Deps{
			Store:     store,
			Reminders: remSvc,
			Jobs:      schedSvc,
			Engine:    engineSvc,
			Bus:       bus,
		}, log.With(logx.String("comp", "http")))
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logs,
		bus:       bus,
		store:     store,
		engine:    engineSvc,
		sched:     schedSvc,
		notif:     notifSvc,
		reminders: remSvc,
		http:      httpSrv,
		sd:        systemd.New(cfg.Systemd.Notify, log.With(logx.String("comp", "systemd"))),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Store() storage.Store { return a.store }

// HTTPAddr is the bound API address, "" when the API is off.
func (a *App) HTTPAddr() string {
	if a.http == nil {
		return ""
	}
	return a.http.Addr()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := StorageConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	run := a.sup.Context()
	if a.notif.Enabled() {
		a.notif.Start(run)
	}
	if a.engine.Enabled() {
		a.engine.Start(run)
	}
	if a.sched.Enabled() {
		a.sched.Start(run)
		a.recover(run)
	}
	if a.http != nil {
		if err := a.http.Start(run); err != nil {
			a.sup.Cancel()
			return fmt.Errorf("http: %w", err)
		}
	}

	// Keep this debug-level to avoid noise for frequent schedulers.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", a.sd.Watchdog)

	a.sd.Ready(fmt.Sprintf("%d reminders scheduled", a.sched.Len()))
	a.log.Info("app started", logx.String("http", a.HTTPAddr()), logx.Int("jobs", a.sched.Len()))
	return nil
}

// recover rebuilds task jobs from the store when enabled.
func (a *App) recover(ctx context.Context) {
	if cfg := a.cfgm.Get(); cfg == nil || !cfg.Reminders.RecoverOnStart {
		return
	}
	if _, err := a.reminders.Recover(ctx, a.store); err != nil {
		a.log.Error("reminder recovery failed", logx.Err(err))
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLoggingConfig(newCfg))

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(ncfg)
		if sinks, err := buildSinks(newCfg, a.log.With(logx.String("comp", "notifier"))); err != nil {
			a.log.Warn("invalid notifier sinks; keeping previous", logx.Err(err))
		} else {
			a.notif.SetSinks(sinks...)
		}
		switch {
		case prev && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !prev && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if scfg, err := mapSchedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		prev := a.sched.Enabled()
		a.sched.Apply(scfg)
		if ecfg, err := mapEngineConfig(newCfg); err == nil {
			// Apply restarts the pool when its shape changes.
			a.engine.Apply(ctx, ecfg)
		}
		switch {
		case prev && !scfg.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			a.engine.Stop(stopCtx)
			cancel()
		case !prev && scfg.Enabled:
			a.log.Info("scheduler enabled via config")
			a.engine.Start(ctx)
			a.sched.Start(ctx)
			a.recover(ctx)
		}
	}

	a.reminders.Apply(mapReminderConfig(newCfg))
	if a.http != nil {
		a.http.SetUpcomingDays(newCfg.Reminders.UpcomingDays)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	a.step(ctx, "http", 3*time.Second, func(c context.Context) error {
		if a.http != nil {
			a.http.Stop(c)
		}
		return nil
	})
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	// Finally, wait for supervised goroutines (config watch/reload, event log).
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
