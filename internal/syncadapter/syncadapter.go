// Package syncadapter decides when local changes must reach a remote
// backend and funnels every such decision into one debounced sync job.
//
// Three backend families are recognized: remote task lists, calendar
// accounts (caldav, tasks.org, etebase) and the device task provider
// (opentasks). A family is enabled when at least one of its accounts
// exists.
package syncadapter

import (
	"context"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mschirtzinger/taskd/internal/debounce"
	"github.com/mschirtzinger/taskd/internal/schema"
	"github.com/mschirtzinger/taskd/internal/serial"
)

// Debounce tags owned by SyncAdapters.
const (
	TagSync       = "sync"
	TagSyncStatus = "sync_status"
)

// PrefSyncOngoing stores the last broadcast device sync status.
const PrefSyncOngoing = "sync_ongoing"

// Store answers the membership and enablement questions.
type Store interface {
	HasTaskListMetadata(ctx context.Context, taskID int64) (bool, error)
	IsCalendarAccountType(ctx context.Context, taskID int64, types ...schema.AccountType) (bool, error)
	TaskListAccounts(ctx context.Context) ([]*schema.TaskListAccount, error)
	CalendarAccounts(ctx context.Context, types ...schema.AccountType) ([]*schema.CalendarAccount, error)
}

// Prefs persists the sync status flag.
type Prefs interface {
	Bool(key string, def bool) bool
	SetBool(key string, v bool) error
}

// Jobs runs the sync job.
type Jobs interface {
	EnqueueSync(ctx context.Context, urgent bool) error
}

// Notifier tells observers that tasks or the device sync status changed.
type Notifier interface {
	NotifyTasksChanged()
	NotifySyncStatus(active bool)
}

// Config holds the collaborators of SyncAdapters.
type Config struct {
	Store    Store
	Prefs    Prefs
	Jobs     Jobs
	Notifier Notifier
	Debounce *debounce.Coordinator
	Logger   *log.Logger
}

// SyncAdapters is the sync trigger gate.
type SyncAdapters struct {
	store    Store
	prefs    Prefs
	jobs     Jobs
	notifier Notifier
	debounce *debounce.Coordinator
	logger   *log.Logger
	exec     *serial.Executor
}

// New creates SyncAdapters and registers its actions on cfg.Debounce.
func New(cfg Config) *SyncAdapters {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("sync")
	s := &SyncAdapters{
		store:    cfg.Store,
		prefs:    cfg.Prefs,
		jobs:     cfg.Jobs,
		notifier: cfg.Notifier,
		debounce: cfg.Debounce,
		logger:   logger,
		exec:     serial.New("sync", logger),
	}
	s.debounce.Register(TagSync, s.enqueueSync)
	s.debounce.Register(TagSyncStatus, s.updateSyncStatus)
	return s
}

// OnTaskMutated schedules a sync when the change between original and task
// matters to a backend the task belongs to. original is nil for a new task.
// It returns immediately; the decision runs in the background.
func (s *SyncAdapters) OnTaskMutated(task, original *schema.Task) {
	if task == nil {
		s.logger.Warn("task mutation without a task ignored")
		return
	}
	task = task.Clone()
	if original != nil {
		original = original.Clone()
	}
	s.launch("task mutation", func(ctx context.Context) {
		if task.HasTransitory(schema.SuppressSync) {
			return
		}
		if s.needsTaskListSync(ctx, task, original) || s.needsCalendarSync(ctx, task, original) {
			s.debounce.Submit(TagSync, nil, false)
		}
	})
}

func (s *SyncAdapters) needsTaskListSync(ctx context.Context, task, original *schema.Task) bool {
	if task.TaskListUpToDate(original) {
		return false
	}
	ok, err := s.store.HasTaskListMetadata(ctx, task.ID)
	if err != nil {
		s.logger.Warn("task list lookup failed", "task", task.ID, "err", err)
		return false
	}
	return ok
}

func (s *SyncAdapters) needsCalendarSync(ctx context.Context, task, original *schema.Task) bool {
	if !task.HasTransitory(schema.ForceCalendarSync) && task.CalendarUpToDate(original) {
		return false
	}
	ok, err := s.store.IsCalendarAccountType(ctx, task.ID, schema.ICalendarTypes...)
	if err != nil {
		s.logger.Warn("calendar lookup failed", "task", task.ID, "err", err)
		return false
	}
	return ok
}

// RequestSync schedules a sync if any backend family is enabled.
func (s *SyncAdapters) RequestSync(immediate bool) {
	s.launch("sync request", func(ctx context.Context) {
		if s.anyEnabled(ctx) {
			s.debounce.Submit(TagSync, nil, immediate)
		}
	})
}

// Sync is RequestSync(false).
func (s *SyncAdapters) Sync() {
	s.RequestSync(false)
}

// SyncDeviceTasks schedules an immediate sync on behalf of the device
// task provider.
func (s *SyncAdapters) SyncDeviceTasks() {
	s.launch("device sync", func(context.Context) {
		s.debounce.Submit(TagSync, nil, true)
	})
}

// NotifyExternalSyncStatus reports that the device provider's own sync
// started or stopped. Flapping is debounced and only real changes are
// stored and broadcast.
func (s *SyncAdapters) NotifyExternalSyncStatus(active bool) {
	s.launch("sync status", func(context.Context) {
		s.debounce.Submit(TagSyncStatus, active, false)
	})
}

// Wait blocks until every call made before it has been evaluated.
func (s *SyncAdapters) Wait(ctx context.Context) error {
	return s.exec.Wait(ctx)
}

// Close waits for pending evaluations and stops accepting new ones. It
// does not close the debounce coordinator.
func (s *SyncAdapters) Close() {
	s.exec.Close()
}

// launch runs fn on the executor. After Close it runs inline so no
// request is lost during shutdown.
func (s *SyncAdapters) launch(what string, fn func(ctx context.Context)) {
	if err := s.exec.Go(func() { fn(context.Background()) }); err != nil {
		s.logger.Warn(what+" after close, evaluating inline")
		fn(context.Background())
	}
}

// anyEnabled runs the three enablement checks concurrently. A failed check
// counts as disabled.
func (s *SyncAdapters) anyEnabled(ctx context.Context) bool {
	var taskLists, calendars, device bool

	var g errgroup.Group
	g.Go(func() error {
		taskLists = s.check(ctx, "task list", s.taskListSyncEnabled)
		return nil
	})
	g.Go(func() error {
		calendars = s.check(ctx, "calendar", s.calendarSyncEnabled)
		return nil
	})
	g.Go(func() error {
		device = s.check(ctx, "device", s.deviceSyncEnabled)
		return nil
	})
	_ = g.Wait()

	s.logger.Debug("enablement", "task_lists", taskLists, "calendars", calendars, "device", device)
	return taskLists || calendars || device
}

func (s *SyncAdapters) check(ctx context.Context, family string, fn func(context.Context) (bool, error)) bool {
	ok, err := fn(ctx)
	if err != nil {
		s.logger.Warn("enablement check failed", "family", family, "err", err)
		return false
	}
	return ok
}

func (s *SyncAdapters) taskListSyncEnabled(ctx context.Context) (bool, error) {
	accounts, err := s.store.TaskListAccounts(ctx)
	return len(accounts) > 0, err
}

func (s *SyncAdapters) calendarSyncEnabled(ctx context.Context) (bool, error) {
	accounts, err := s.store.CalendarAccounts(ctx, schema.CalendarSyncTypes...)
	return len(accounts) > 0, err
}

func (s *SyncAdapters) deviceSyncEnabled(ctx context.Context) (bool, error) {
	accounts, err := s.store.CalendarAccounts(ctx, schema.DeviceSyncTypes...)
	return len(accounts) > 0, err
}

// enqueueSync is the action behind TagSync.
func (s *SyncAdapters) enqueueSync(ctx context.Context, req debounce.Request) {
	if err := s.jobs.EnqueueSync(ctx, req.Urgent); err != nil {
		s.logger.Error("failed to enqueue sync", "urgent", req.Urgent, "err", err)
	}
}

// updateSyncStatus is the action behind TagSyncStatus.
func (s *SyncAdapters) updateSyncStatus(ctx context.Context, req debounce.Request) {
	active, ok := req.Payload.(bool)
	if !ok {
		s.logger.Error("sync status without a boolean payload", "payload", req.Payload)
		return
	}
	if s.prefs.Bool(PrefSyncOngoing, false) == active {
		return
	}
	enabled := s.check(ctx, "device", s.deviceSyncEnabled)
	if !enabled {
		return
	}
	if err := s.prefs.SetBool(PrefSyncOngoing, active); err != nil {
		s.logger.Error("failed to store sync status", "err", err)
		return
	}
	s.logger.Info("device sync status changed", "active", active)
	s.notifier.NotifySyncStatus(active)
	s.notifier.NotifyTasksChanged()
}
