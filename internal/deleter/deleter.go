// Package deleter implements cascading task deletion.
//
// A Deleter soft-deletes tasks together with their direct children under
// both hierarchy relations, clears completed tasks out of a filter, hard
// deletes tasks, and removes whole task lists, calendars and accounts. All
// work runs on the deleter's own serial executor; the public methods block
// the caller until their unit of work finishes.
//
// Once a store mutation has committed, the remaining steps (job
// cancellation, sync request, change notification, re-fetch) are best
// effort: their failures are logged and never turn the call into an error.
package deleter

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/mschirtzinger/taskd/internal/db"
	"github.com/mschirtzinger/taskd/internal/schema"
	"github.com/mschirtzinger/taskd/internal/serial"
)

// Store is the part of the task store the deleter needs.
type Store interface {
	FetchTasks(ctx context.Context, ids []int64) ([]*schema.Task, error)
	GetChildren(ctx context.Context, ids []int64) ([]int64, error)
	GetTaskListChildren(ctx context.Context, ids []int64) ([]int64, error)
	MarkDeleted(ctx context.Context, ids []int64) error
	DeleteTasks(ctx context.Context, ids []int64) ([]int64, error)
	QueryTasks(ctx context.Context, filter schema.Filter) ([]schema.TaskView, error)
	HasRecurringAncestors(ctx context.Context, ids []int64) ([]int64, error)
	HasRecurringTaskListParent(ctx context.Context, ids []int64) ([]int64, error)

	DeleteTaskList(ctx context.Context, list *schema.TaskList) ([]int64, error)
	DeleteTaskListAccount(ctx context.Context, account *schema.TaskListAccount) ([]int64, error)
	DeleteCalendar(ctx context.Context, cal *schema.Calendar) ([]int64, error)
	DeleteCalendarAccount(ctx context.Context, account *schema.CalendarAccount) ([]int64, error)
}

// Jobs cancels background work attached to tasks.
type Jobs interface {
	CancelJobs(ctx context.Context, ids []int64) error
}

// SyncRequester asks for a background sync if any backend is enabled.
type SyncRequester interface {
	RequestSync(immediate bool)
}

// Notifier tells observers that tasks or lists changed.
type Notifier interface {
	NotifyTasksChanged()
	NotifyListsChanged()
}

// Cache holds the offline copies of remote calendar objects.
type Cache interface {
	PurgeCalendar(ctx context.Context, cal *schema.Calendar) error
	PurgeAccount(ctx context.Context, account *schema.CalendarAccount) error
}

// Deleter coordinates task and container deletion.
type Deleter struct {
	store     Store
	jobs      Jobs
	sync      SyncRequester
	notifier  Notifier
	cache     Cache
	chunkSize int
	logger    *log.Logger
	exec      *serial.Executor
}

// Config holds the deleter's collaborators.
type Config struct {
	Store    Store
	Jobs     Jobs
	Sync     SyncRequester
	Notifier Notifier
	Cache    Cache

	// ChunkSize bounds the ids per child lookup. Zero uses db.DefaultChunkSize.
	ChunkSize int
	Logger    *log.Logger
}

// New creates a Deleter. Call Close when done.
func New(cfg Config) *Deleter {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("deleter")
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = db.DefaultChunkSize
	}
	return &Deleter{
		store:     cfg.Store,
		jobs:      cfg.Jobs,
		sync:      cfg.Sync,
		notifier:  cfg.Notifier,
		cache:     cfg.Cache,
		chunkSize: chunk,
		logger:    logger,
		exec:      serial.New("deleter", logger),
	}
}

// Close waits for queued deletions and stops the deleter.
func (d *Deleter) Close() {
	d.exec.Close()
}

// MarkDeleted soft-deletes ids and their direct children under both
// hierarchy relations, skipping read-only tasks. It returns the deleted
// tasks as stored after the update.
func (d *Deleter) MarkDeleted(ctx context.Context, ids []int64) ([]*schema.Task, error) {
	return serial.Do(ctx, d.exec, func(ctx context.Context) ([]*schema.Task, error) {
		return d.markDeleted(ctx, ids)
	})
}

// MarkTaskDeleted is MarkDeleted for a single task.
func (d *Deleter) MarkTaskDeleted(ctx context.Context, task *schema.Task) ([]*schema.Task, error) {
	return d.MarkDeleted(ctx, []int64{task.ID})
}

func (d *Deleter) markDeleted(ctx context.Context, ids []int64) ([]*schema.Task, error) {
	ids = db.Unique(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	childrenA, err := db.ChunkedMap(ids, d.chunkSize, func(chunk []int64) ([]int64, error) {
		return d.store.GetChildren(ctx, chunk)
	})
	if err != nil {
		return nil, err
	}
	childrenB, err := db.ChunkedMap(ids, d.chunkSize, func(chunk []int64) ([]int64, error) {
		return d.store.GetTaskListChildren(ctx, chunk)
	})
	if err != nil {
		return nil, err
	}

	closure := db.Unique(slices.Concat(ids, childrenA, childrenB))
	tasks, err := d.store.FetchTasks(ctx, closure)
	if err != nil {
		return nil, err
	}

	var targets []int64
	for _, t := range tasks {
		if t.ReadOnly {
			d.logger.Debug("skipping read-only task", "id", t.ID)
			continue
		}
		targets = append(targets, t.ID)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	if err := d.store.MarkDeleted(ctx, targets); err != nil {
		return nil, err
	}
	d.logger.Info("marked deleted", "requested", len(ids), "deleted", len(targets))

	ctx = context.WithoutCancel(ctx)
	d.cancelJobs(ctx, targets)
	d.sync.RequestSync(false)
	d.notifier.NotifyTasksChanged()

	deleted, err := d.store.FetchTasks(ctx, targets)
	if err != nil {
		d.logger.Warn("failed to re-fetch deleted tasks", "count", len(targets), "err", err)
		return []*schema.Task{}, nil
	}
	return deleted, nil
}

// ClearCompleted soft-deletes the completed, writable tasks matched by
// filter, regardless of its hidden/completed settings and ordering. Tasks
// whose ancestor under either relation is an active recurring task are
// kept. It returns the number of tasks selected for deletion.
func (d *Deleter) ClearCompleted(ctx context.Context, filter schema.Filter) (int, error) {
	return serial.Do(ctx, d.exec, func(ctx context.Context) (int, error) {
		views, err := d.store.QueryTasks(ctx, filter.ShowHiddenAndCompleted().WithoutOrder())
		if err != nil {
			return 0, err
		}

		var completed []int64
		for _, v := range views {
			if v.Completed && !v.ReadOnly {
				completed = append(completed, v.ID)
			}
		}
		if len(completed) == 0 {
			return 0, nil
		}

		recurringA, err := d.store.HasRecurringAncestors(ctx, completed)
		if err != nil {
			return 0, err
		}
		recurringB, err := d.store.HasRecurringTaskListParent(ctx, completed)
		if err != nil {
			return 0, err
		}
		recurring := make(map[int64]struct{}, len(recurringA)+len(recurringB))
		for _, id := range slices.Concat(recurringA, recurringB) {
			recurring[id] = struct{}{}
		}
		completed = slices.DeleteFunc(completed, func(id int64) bool {
			_, ok := recurring[id]
			return ok
		})

		if _, err := d.markDeleted(ctx, completed); err != nil {
			return 0, err
		}
		return len(completed), nil
	})
}

// Delete permanently removes exactly ids, with no hierarchy expansion.
func (d *Deleter) Delete(ctx context.Context, ids []int64) error {
	_, err := serial.Do(ctx, d.exec, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.delete(ctx, ids)
	})
	return err
}

// DeleteTask is Delete for a single task.
func (d *Deleter) DeleteTask(ctx context.Context, task *schema.Task) error {
	return d.Delete(ctx, []int64{task.ID})
}

func (d *Deleter) delete(ctx context.Context, ids []int64) error {
	removed, err := d.store.DeleteTasks(ctx, ids)
	if err != nil {
		return err
	}
	d.logger.Info("deleted tasks", "requested", len(ids), "removed", len(removed))

	ctx = context.WithoutCancel(ctx)
	d.cancelJobs(ctx, ids)
	d.notifier.NotifyTasksChanged()
	return nil
}

// DeleteTaskList removes a remote task list and its tasks.
func (d *Deleter) DeleteTaskList(ctx context.Context, list *schema.TaskList) error {
	return d.deleteContainer(ctx, "task list", list.RemoteID, nil, func(ctx context.Context) ([]int64, error) {
		return d.store.DeleteTaskList(ctx, list)
	})
}

// DeleteTaskListAccount removes a remote task list account, its lists and
// their tasks.
func (d *Deleter) DeleteTaskListAccount(ctx context.Context, account *schema.TaskListAccount) error {
	return d.deleteContainer(ctx, "task list account", account.Account, nil, func(ctx context.Context) ([]int64, error) {
		return d.store.DeleteTaskListAccount(ctx, account)
	})
}

// DeleteCalendar purges the calendar's offline cache, then removes the
// calendar and its tasks. A local list is a calendar of a local account.
func (d *Deleter) DeleteCalendar(ctx context.Context, cal *schema.Calendar) error {
	purge := func(ctx context.Context) error { return d.cache.PurgeCalendar(ctx, cal) }
	return d.deleteContainer(ctx, "calendar", cal.UUID, purge, func(ctx context.Context) ([]int64, error) {
		return d.store.DeleteCalendar(ctx, cal)
	})
}

// DeleteCalendarAccount purges the account's offline cache, then removes
// the account, its calendars and their tasks.
func (d *Deleter) DeleteCalendarAccount(ctx context.Context, account *schema.CalendarAccount) error {
	purge := func(ctx context.Context) error { return d.cache.PurgeAccount(ctx, account) }
	return d.deleteContainer(ctx, "calendar account", account.UUID, purge, func(ctx context.Context) ([]int64, error) {
		return d.store.DeleteCalendarAccount(ctx, account)
	})
}

// deleteContainer runs purge (if any), removes the container rows, hard
// deletes the tasks they held and announces the list change.
func (d *Deleter) deleteContainer(
	ctx context.Context,
	kind, name string,
	purge func(context.Context) error,
	remove func(context.Context) ([]int64, error),
) error {
	_, err := serial.Do(ctx, d.exec, func(ctx context.Context) (struct{}, error) {
		if purge != nil {
			if err := purge(ctx); err != nil {
				return struct{}{}, err
			}
		}
		ids, err := remove(ctx)
		if err != nil {
			return struct{}{}, err
		}
		d.logger.Info("deleted "+kind, "name", name, "tasks", len(ids))

		if err := d.delete(context.WithoutCancel(ctx), ids); err != nil {
			d.logger.Warn("failed to delete tasks of removed "+kind, "name", name, "err", err)
		}
		d.notifier.NotifyListsChanged()
		return struct{}{}, nil
	})
	return err
}

func (d *Deleter) cancelJobs(ctx context.Context, ids []int64) {
	if len(ids) == 0 {
		return
	}
	if err := d.jobs.CancelJobs(ctx, ids); err != nil {
		d.logger.Warn("failed to cancel jobs", "count", len(ids), "err", err)
	}
}
