// Package app wires configuration, logging, storage, the chat adapter and
// the lifecycle scheduler into one process.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marktbot/internal/adapters/telegram"
	"marktbot/internal/config"
	"marktbot/internal/lifecycle"
	"marktbot/internal/logging"
	"marktbot/internal/notify"
	"marktbot/internal/storage"
)

type App struct {
	cfgPath string
	cfg     *config.Config

	log     zerolog.Logger
	logSvc  *logging.Service
	store   *storage.Store
	adapter *telegram.Adapter
	sched   *lifecycle.Scheduler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logging.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(
		storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy},
		log.With().Str("svc", "storage").Logger())
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(
		telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout},
		log.With().Str("svc", "telegram").Logger())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	messenger := notify.New(adapter, cfg.Notify.RatePerSec, log.With().Str("svc", "notify").Logger())

	discovery, err := config.ParseDurationOrDefault("lifecycle.discovery_interval", cfg.Lifecycle.DiscoveryInterval, 30*time.Second)
	if err != nil {
		return nil, err
	}
	slack, err := config.ParseDurationOrDefault("lifecycle.slack", cfg.Lifecycle.Slack, 2*time.Second)
	if err != nil {
		return nil, err
	}
	sched := lifecycle.New(lifecycle.Config{
		DiscoveryInterval: discovery,
		Slack:             slack,
		BackstopAt:        cfg.Lifecycle.BackstopAt,
		Timezone:          cfg.Lifecycle.Timezone,
		Channels: map[lifecycle.Kind]int64{
			lifecycle.KindOffer:    cfg.Channels.Offers,
			lifecycle.KindVoting:   cfg.Channels.Votings,
			lifecycle.KindVacation: cfg.Channels.Vacations,
		},
	}, store, messenger, nil, log.With().Str("svc", "lifecycle").Logger())

	return &App{
		cfgPath: cfgPath,
		cfg:     cfg,
		log:     log,
		logSvc:  logSvc,
		store:   store,
		adapter: adapter,
		sched:   sched,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := config.Watch(runCtx, a.cfgPath, a.log, a.onConfigChange); err != nil {
			a.log.Warn().Err(err).Msg("config watch unavailable")
		}
	}()

	a.log.Info().Str("config", a.cfgPath).Msg("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	a.wg.Wait()
	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}

// onConfigChange applies the subset of config that is safe to change at
// runtime. Storage path and telegram token changes need a restart.
func (a *App) onConfigChange(cfg *config.Config) {
	a.logSvc.Apply(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logging.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	if cfg.Storage.Path != a.cfg.Storage.Path || cfg.Telegram.Token != a.cfg.Telegram.Token ||
		cfg.Lifecycle != a.cfg.Lifecycle {
		a.log.Warn().Msg("storage/telegram/lifecycle changes in config require a restart to take effect")
	}
	a.cfg = cfg
}
