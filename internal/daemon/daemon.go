// Package daemon runs taskd in the background.
//
// The daemon:
//  1. Serves change notifications to websocket clients
//  2. Watches the task database for writes by other taskd processes and
//     turns them into a refresh broadcast plus a sync request
//  3. Requests a sync on the configured cron schedule
//  4. Shuts down gracefully, flushing pending sync requests
package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/mschirtzinger/taskd/internal/app"
	"github.com/mschirtzinger/taskd/internal/config"
	"github.com/mschirtzinger/taskd/internal/debounce"
	"github.com/mschirtzinger/taskd/internal/notify"
	"github.com/mschirtzinger/taskd/internal/watch"
)

// TagRefresh is the debounce tag for foreign database writes.
const TagRefresh = "refresh"

// Config holds configuration for the daemon.
type Config struct {
	Config *config.Config

	// Addr overrides the notifier listen address from Config.Dashboard.
	Addr string

	Logger *log.Logger
}

// Daemon owns the long-running components.
type Daemon struct {
	cfg     *config.Config
	addr    string
	logger  *log.Logger
	server  *notify.Server
	app     *app.App
	watcher *watch.Watcher
	cron    *cron.Cron
	ready   chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a daemon. Use Run to start it.
func New(cfg Config) (*Daemon, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = cfg.Config.Dashboard.Addr()
	}

	return &Daemon{
		cfg:    cfg.Config,
		addr:   addr,
		logger: logger.WithPrefix("daemon"),
		ready:  make(chan struct{}),
	}, nil
}

// Ready is closed once Run has started every component.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the notifier address. Valid after Ready.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// App returns the running components. Valid after Ready.
func (d *Daemon) App() *app.App {
	return d.app
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("starting daemon", "db", d.cfg.DB.Path, "addr", d.addr)

	if err := d.start(ctx); err != nil {
		d.stop()
		return err
	}
	close(d.ready)

	<-ctx.Done()
	d.logger.Info("shutdown signal received")
	return d.stop()
}

func (d *Daemon) start(ctx context.Context) error {
	d.server = notify.NewServer(notify.Config{Addr: d.addr, Logger: d.logger})
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("failed to start notifier: %w", err)
	}

	notifier := notify.Multi{d.server, notify.NewLogger(d.logger)}
	a, err := app.Open(ctx, d.cfg, d.logger, notifier)
	if err != nil {
		return err
	}
	d.app = a
	a.Debounce.Register(TagRefresh, d.refresh)

	w, err := watch.New()
	if err != nil {
		return err
	}
	d.watcher = w
	dir, names := watch.DatabaseFiles(d.cfg.DB.Path)
	if err := w.Start(dir, names...); err != nil {
		return err
	}
	d.wg.Add(1)
	go d.forwardEvents()

	if d.cfg.Sync.Schedule != "" {
		d.cron = cron.New(cron.WithLogger(cronLogger{d.logger.WithPrefix("cron")}))
		if _, err := d.cron.AddFunc(d.cfg.Sync.Schedule, d.scheduledSync); err != nil {
			return fmt.Errorf("invalid sync schedule: %w", err)
		}
		d.cron.Start()
	}

	// Catch up on anything changed while the daemon was down.
	a.Sync.RequestSync(false)

	d.logger.Info("daemon running", "watching", dir, "schedule", d.cfg.Sync.Schedule)
	return nil
}

// stop shuts the components down: event sources first, then the app so
// pending work is flushed, then the notifier so the final messages go out.
func (d *Daemon) stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.logger.Info("stopping daemon")

		if d.cron != nil {
			<-d.cron.Stop().Done()
		}
		if d.watcher != nil {
			if werr := d.watcher.Stop(); werr != nil {
				d.logger.Warn("error closing watcher", "err", werr)
			}
		}
		d.wg.Wait()

		if d.app != nil {
			err = d.app.Close()
		}
		if d.server != nil {
			if serr := d.server.Stop(); serr != nil && err == nil {
				err = serr
			}
		}
		d.logger.Info("daemon stopped")
	})
	return err
}

// forwardEvents debounces watcher events into TagRefresh.
func (d *Daemon) forwardEvents() {
	defer d.wg.Done()

	events, errs := d.watcher.Events(), d.watcher.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			d.logger.Debug("database event", "op", ev.Op, "path", ev.Path)
			d.app.Debounce.Submit(TagRefresh, ev.Path, false)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Warn("watcher error", "err", err)
		}
	}
}

// refresh is the action behind TagRefresh.
func (d *Daemon) refresh(_ context.Context, req debounce.Request) {
	d.logger.Debug("database changed", "path", req.Payload)
	d.app.Notifier.NotifyTasksChanged()
	d.app.Sync.RequestSync(false)
}

func (d *Daemon) scheduledSync() {
	d.logger.Debug("scheduled sync")
	d.app.Sync.RequestSync(false)
}

// cronLogger adapts a charmbracelet logger to cron.Logger.
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
