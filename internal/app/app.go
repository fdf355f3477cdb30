// Package app wires the process together: config, logging, storage, bot
// connections, the delivery engine and its periodic retry drains.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"catbot/internal/adapters/telegram"
	"catbot/internal/config"
	"catbot/internal/handlers"
	"catbot/internal/notify"
	"catbot/internal/registry"
	"catbot/internal/storage"
	"catbot/internal/transport"
	"catbot/internal/translate"
	"catbot/pkg/logx"
)

const updateChanSize = 256

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    *storage.Store
	reg      *registry.Registry
	notifier *notify.Service
	adapters []*telegram.Adapter
	cron     *cron.Cron

	wg      sync.WaitGroup
	stopped bool
	mu      sync.Mutex
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	reg := registry.New()
	adapters := make([]*telegram.Adapter, 0, len(cfg.Telegram.Tokens))
	for i, token := range cfg.Telegram.Tokens {
		a, err := telegram.New(telegram.Config{
			Token:       token,
			PollTimeout: pollTimeout,
			RatePerSec:  cfg.Delivery.SendRatePerSec,
		}, log)
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("bot %d: %w", i, err)
		}
		adapters = append(adapters, a)
		reg.Register(a)
	}

	var tr translate.Translator = translate.Noop{}
	if cfg.Translate.Enabled && cfg.Translate.Endpoint != "" {
		timeout, _ := config.ParseDurationOrDefault("translate.timeout", cfg.Translate.Timeout, 5*time.Second)
		tlog := log.With(logx.String("comp", "translate"))
		tr = translate.NewCache(translate.NewClient(cfg.Translate.Endpoint, timeout, tlog), store, tlog)
	}

	notifier := notify.New(
		deliveryConfig(cfg),
		store, store, store, reg, tr,
		log.With(logx.String("comp", "notify")),
	)

	return &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log,
		store:    store,
		reg:      reg,
		notifier: notifier,
		adapters: adapters,
		cron:     cron.New(),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()
	a.notifier.Start(ctx)

	for i, ad := range a.adapters {
		updates := make(chan transport.Update, updateChanSize)
		h := handlers.New(a.store, a.notifier, ad, cfg.Telegram.AdminIDs, i == 0,
			a.log.With(logx.String("comp", "handlers"), logx.String("bot", ad.Username())))
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			h.Run(ctx, updates)
		}()
		if err := ad.Start(ctx, updates); err != nil {
			return fmt.Errorf("start bot %s: %w", ad.Username(), err)
		}
	}

	if !cfg.Delivery.RetryDisabled {
		spec := cfg.Delivery.RetrySchedule
		if spec == "" {
			spec = "*/10 * * * *"
		}
		if _, err := a.cron.AddFunc(spec, func() { a.drainAll(ctx) }); err != nil {
			return fmt.Errorf("retry schedule %q: %w", spec, err)
		}
		a.cron.Start()
		a.log.Info("retry drains scheduled", logx.String("spec", spec))
	}

	// Hot reload: logging level/sinks and delivery tuning follow the file.
	sub := a.cfgMgr.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(ctx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case fresh := <-sub:
				a.logSvc.Apply(logx.Config{
					Level:   fresh.Logging.Level,
					Console: fresh.Logging.Console,
					File: logx.FileConfig{
						Enabled: fresh.Logging.File.Enabled,
						Path:    fresh.Logging.File.Path,
					},
				})
				a.notifier.Apply(deliveryConfig(fresh))
				a.log.Info("runtime config applied")
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started",
		logx.Int("bots", len(a.adapters)),
		logx.Int("channels", a.reg.Len()))
	return nil
}

// drainAll retries whatever is still pending in both queues. The engine's
// single-flight guards make overlap with triggered drains harmless.
func (a *App) drainAll(ctx context.Context) {
	a.notifier.Drain(ctx, storage.KindProduct)
	a.notifier.Drain(ctx, storage.KindCustom)
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.mu.Unlock()

	stopCtx := a.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	for _, ad := range a.adapters {
		_ = ad.Stop(ctx)
	}
	a.wg.Wait()

	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}

func deliveryConfig(cfg *config.Config) notify.Config {
	d := cfg.Delivery
	productDelay, _ := config.ParseDurationField("delivery.product.batch_delay", d.Product.BatchDelay)
	customDelay, _ := config.ParseDurationField("delivery.custom.batch_delay", d.Custom.BatchDelay)
	staggerInterval, _ := config.ParseDurationField("delivery.stagger_interval", d.StaggerInterval)
	pagePause, _ := config.ParseDurationField("delivery.page_pause", d.PagePause)

	return notify.Config{
		Product: notify.Tuning{
			MaxPerHour: d.Product.MaxPerHour,
			BatchSize:  d.Product.BatchSize,
			BatchDelay: productDelay,
		},
		Custom: notify.Tuning{
			MaxPerHour: d.Custom.MaxPerHour,
			BatchSize:  d.Custom.BatchSize,
			BatchDelay: customDelay,
		},
		StaggerGroupSize:   d.StaggerGroupSize,
		StaggerInterval:    staggerInterval,
		PageSize:           d.PageSize,
		MaxIterations:      d.MaxIterations,
		PagePause:          pagePause,
		ExcludedCategories: d.ExcludedCategories,
		AdminIDs:           cfg.Telegram.AdminIDs,
	}
}
