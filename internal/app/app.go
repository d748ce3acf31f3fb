// Package app wires the engine together: config, logging, storage, the
// job pool, the two periodic sweeps, and the control surface.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"routined/internal/config"
	"routined/internal/eventbus"
	"routined/internal/localtime"
	"routined/internal/services/archiver"
	"routined/internal/services/control"
	"routined/internal/services/materializer"
	"routined/internal/services/pprof"
	"routined/internal/services/runner"
	"routined/internal/services/trigger"
	"routined/internal/storage"
	"routined/pkg/logx"
)

// Trigger job names, usable with Trigger().RunNow.
const (
	JobMaterialize = "materialize-tasks"
	JobCloseOut    = "close-out-day"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store storage.Store
	bus   eventbus.Bus
	pool  *runner.Service
	mat   *materializer.Service
	arch  *archiver.Service
	ctl   *control.Service
	trg   *trigger.Service
	prof  *pprof.Service

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New loads the config file and builds the full service graph. Nothing is
// running yet; call Start.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log.With(logx.String("component", "config")))
	mgr.SetValidator(func(ctx context.Context, cfg *config.Config) error { return validate(cfg) })

	a := &App{cfgMgr: mgr, logSvc: logSvc, log: log}

	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	a.store, err = storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a.bus = eventbus.New()
	a.pool = runner.New(runnerConfig(cfg), log.With(logx.String("component", "runner")), a.bus)

	tz := localtime.NewResolver(log.With(logx.String("component", "localtime")))

	matTimeout, _ := config.ParseDurationField("materializer.user_timeout", cfg.Materializer.UserTimeout)
	defHour, defMinute, _ := config.ParseClockOrDefault("materializer.default_time", cfg.Materializer.DefaultTime, 5, 0)
	a.mat = materializer.New(materializer.Config{
		DefaultHour:   defHour,
		DefaultMinute: defMinute,
		PageSize:      cfg.Materializer.PageSize,
		UserTimeout:   matTimeout,
	}, log.With(logx.String("component", "materializer")), a.store, tz, a.pool, a.bus)

	archTimeout, _ := config.ParseDurationField("archiver.user_timeout", cfg.Archiver.UserTimeout)
	a.arch = archiver.New(archiver.Config{
		PageSize:    cfg.Archiver.PageSize,
		UserTimeout: archTimeout,
	}, log.With(logx.String("component", "archiver")), a.store, tz, a.pool, a.bus)

	a.ctl = control.New(log.With(logx.String("component", "control")), a.store, tz, a.mat, a.bus)

	a.trg = trigger.New(trigger.Config{
		MaterializeSpec: cfg.Trigger.MaterializeSpec,
		CloseOutSpec:    cfg.Trigger.CloseOutSpec,
	}, log.With(logx.String("component", "trigger")))
	if err := a.trg.Register(JobMaterialize, a.trg.MaterializeSpec(), a.mat.RunAll); err != nil {
		a.closeOnInitError()
		return nil, err
	}
	if err := a.trg.Register(JobCloseOut, a.trg.CloseOutSpec(), a.arch.RunAll); err != nil {
		a.closeOnInitError()
		return nil, err
	}

	a.prof = pprof.New(pprofConfig(cfg), log.With(logx.String("component", "pprof")))
	return a, nil
}

func (a *App) closeOnInitError() {
	_ = a.store.Close()
	_ = a.logSvc.Close()
}

// Start brings up the pool and the trigger and begins watching the config
// file for reloads.
func (a *App) Start(ctx context.Context) error {
	a.pool.Start(ctx)
	if err := a.trg.Start(ctx); err != nil {
		a.pool.Stop(ctx)
		return err
	}
	a.prof.Start(ctx)

	wctx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	updates := a.cfgMgr.Subscribe(2)
	go func() {
		defer close(a.watchDone)
		defer a.cfgMgr.Unsubscribe(updates)
		go func() { _ = a.cfgMgr.Watch(wctx) }()
		old := a.cfgMgr.Get()
		for {
			select {
			case <-wctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyReload(old, cfg)
				old = cfg
			}
		}
	}()

	a.log.Info("engine started")
	return nil
}

// applyReload applies what can change at runtime (logging) and names the
// sections that need a restart to take effect.
func (a *App) applyReload(old, cfg *config.Config) {
	changed, attrs := config.SummarizeChange(old, cfg)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config changed", append(attrs, logx.String("sections", strings.Join(changed, ",")))...)

	for _, section := range changed {
		switch section {
		case "logging":
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
		case "pprof":
			a.prof.Reconfigure(context.Background(), pprofConfig(cfg))
		default:
			a.log.Warn("config section requires restart", logx.String("section", section))
		}
	}
}

func (a *App) Stop(ctx context.Context) {
	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}
	a.trg.Stop(ctx)
	a.pool.Stop(ctx)
	a.prof.Stop(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("engine stopped")
	_ = a.logSvc.Close()
}

// Control exposes the user-facing operations.
func (a *App) Control() *control.Service { return a.ctl }

// Trigger exposes the periodic trigger, mainly for RunNow.
func (a *App) Trigger() *trigger.Service { return a.trg }

// Bus exposes the in-memory event bus.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Store exposes the underlying store for read paths.
func (a *App) Store() storage.Store { return a.store }

func pprofConfig(cfg *config.Config) pprof.Config {
	read, _ := config.ParseDurationField("pprof.read_timeout", cfg.Pprof.ReadTimeout)
	write, _ := config.ParseDurationField("pprof.write_timeout", cfg.Pprof.WriteTimeout)
	idle, _ := config.ParseDurationField("pprof.idle_timeout", cfg.Pprof.IdleTimeout)
	return pprof.Config{
		Enabled:              cfg.Pprof.Enabled,
		Addr:                 cfg.Pprof.Addr,
		Prefix:               cfg.Pprof.Prefix,
		Token:                cfg.Pprof.Token,
		AllowInsecure:        cfg.Pprof.AllowInsecure,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: cfg.Pprof.MutexProfileFraction,
		BlockProfileRate:     cfg.Pprof.BlockProfileRate,
		MemProfileRate:       cfg.Pprof.MemProfileRate,
	}
}

func runnerConfig(cfg *config.Config) runner.Config {
	timeout, _ := config.ParseDurationField("runner.default_timeout", cfg.Runner.DefaultTimeout)
	base, _ := config.ParseDurationOrDefault("runner.retry_base", cfg.Runner.RetryBase, 500*time.Millisecond)
	maxDelay, _ := config.ParseDurationOrDefault("runner.retry_max_delay", cfg.Runner.RetryMaxDelay, 15*time.Second)
	return runner.Config{
		Workers:        cfg.Runner.Workers,
		QueueSize:      cfg.Runner.QueueSize,
		DefaultTimeout: timeout,
		RetryMax:       cfg.Runner.RetryMax,
		RetryBase:      base,
		RetryMaxDelay:  maxDelay,
	}
}

// validate rejects configs with malformed durations or impossible values
// before they are committed.
func validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	fields := []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"runner.default_timeout", cfg.Runner.DefaultTimeout},
		{"runner.retry_base", cfg.Runner.RetryBase},
		{"runner.retry_max_delay", cfg.Runner.RetryMaxDelay},
		{"materializer.user_timeout", cfg.Materializer.UserTimeout},
		{"archiver.user_timeout", cfg.Archiver.UserTimeout},
		{"pprof.read_timeout", cfg.Pprof.ReadTimeout},
		{"pprof.write_timeout", cfg.Pprof.WriteTimeout},
		{"pprof.idle_timeout", cfg.Pprof.IdleTimeout},
	}
	for _, f := range fields {
		if _, err := config.ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if _, _, err := config.ParseClockOrDefault("materializer.default_time", cfg.Materializer.DefaultTime, 5, 0); err != nil {
		return err
	}
	return nil
}
