// Package app wires the taskd components together for the CLI and the
// daemon.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mschirtzinger/taskd/internal/config"
	"github.com/mschirtzinger/taskd/internal/db"
	"github.com/mschirtzinger/taskd/internal/debounce"
	"github.com/mschirtzinger/taskd/internal/deleter"
	"github.com/mschirtzinger/taskd/internal/jobs"
	"github.com/mschirtzinger/taskd/internal/notify"
	"github.com/mschirtzinger/taskd/internal/prefs"
	"github.com/mschirtzinger/taskd/internal/syncadapter"
	"github.com/mschirtzinger/taskd/internal/vtodo"
)

// App holds the running components.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	DB       *db.DB
	Cache    *vtodo.Cache
	Prefs    *prefs.Prefs
	Notifier notify.SyncNotifier
	Jobs     *jobs.Manager
	Debounce *debounce.Coordinator
	Sync     *syncadapter.SyncAdapters
	Deleter  *deleter.Deleter
}

// Open opens the store and starts every component. A nil notifier logs
// notifications.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger, notifier notify.SyncNotifier) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogger(logger)
	}

	store, err := db.Open(cfg.DB.Path, db.WithChunkSize(cfg.DB.ChunkSize))
	if err != nil {
		return nil, err
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	p, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       store,
		Cache:    vtodo.New(cfg.Cache.Dir, logger),
		Prefs:    p,
		Notifier: notifier,
	}
	a.Jobs = jobs.NewManager(a.runSync, store.Cleanup, logger)
	a.Debounce = debounce.New(cfg.Sync.Debounce, logger)
	a.Sync = syncadapter.New(syncadapter.Config{
		Store:    store,
		Prefs:    p,
		Jobs:     a.Jobs,
		Notifier: notifier,
		Debounce: a.Debounce,
		Logger:   logger,
	})
	a.Deleter = deleter.New(deleter.Config{
		Store:     store,
		Jobs:      a.Jobs,
		Sync:      a.Sync,
		Notifier:  notifier,
		Cache:     a.Cache,
		ChunkSize: cfg.DB.ChunkSize,
		Logger:    logger,
	})
	return a, nil
}

// runSync is the sync job. It records the completion time and reports
// the run to observers.
func (a *App) runSync(ctx context.Context, urgent bool) error {
	start := time.Now()
	err := a.Prefs.SetTime(prefs.KeyLastSync, start)
	if err != nil {
		err = fmt.Errorf("failed to record sync time: %w", err)
	}
	a.Notifier.NotifySyncComplete(urgent, time.Since(start), err)
	return err
}

// Close stops the components in dependency order. Pending debounced
// requests are flushed and queued jobs run before the store closes.
func (a *App) Close() error {
	a.Deleter.Close()
	a.Sync.Close()
	a.Debounce.Close()
	a.Jobs.Close()
	return a.DB.Close()
}
