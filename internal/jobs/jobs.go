// Package jobs runs taskd's background work: the sync job and the
// per-task cleanup job.
//
// Jobs run one at a time on a serial executor. Both kinds are unique while
// queued: a sync request that finds a sync already waiting is absorbed into
// it (an urgent request upgrades the waiting job), and cleanup requests are
// merged into the waiting cleanup job's id set. A cleanup job must tolerate
// ids whose task no longer exists.
package jobs

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mschirtzinger/taskd/internal/serial"
)

// ErrClosed is returned for work enqueued after Close.
var ErrClosed = errors.New("job manager closed")

// Job names used in logs.
const (
	JobSync    = "sync"
	JobCleanup = "cleanup"
)

// SyncFunc performs one sync run.
type SyncFunc func(ctx context.Context, urgent bool) error

// CleanupFunc removes leftover per-task state for ids.
type CleanupFunc func(ctx context.Context, ids []int64) error

// Manager queues and runs jobs.
type Manager struct {
	syncFn    SyncFunc
	cleanupFn CleanupFunc
	logger    *log.Logger
	exec      *serial.Executor

	mu          sync.Mutex
	closed      bool
	syncQueued  bool
	syncUrgent  bool
	cleanupIDs  []int64 // merged into the queued cleanup job
	cleanupWait bool
	runs        int
}

// NewManager creates a Manager. Either func may be nil to disable that job.
func NewManager(syncFn SyncFunc, cleanupFn CleanupFunc, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("jobs")
	return &Manager{
		syncFn:    syncFn,
		cleanupFn: cleanupFn,
		logger:    logger,
		exec:      serial.New("jobs", logger),
	}
}

// EnqueueSync queues a sync run unless one is already waiting.
func (m *Manager) EnqueueSync(ctx context.Context, urgent bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.syncQueued {
		if urgent && !m.syncUrgent {
			m.logger.Debug("upgrading queued sync to urgent")
		}
		m.syncUrgent = m.syncUrgent || urgent
		return nil
	}
	m.syncQueued = true
	m.syncUrgent = urgent
	return m.exec.Go(m.runSync)
}

// CancelJobs drops the scheduled work of ids by queueing their cleanup.
func (m *Manager) CancelJobs(ctx context.Context, ids []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.cleanupIDs = append(m.cleanupIDs, ids...)
	if m.cleanupWait {
		return nil
	}
	m.cleanupWait = true
	return m.exec.Go(m.runCleanup)
}

// Wait blocks until every job queued before the call has run.
func (m *Manager) Wait(ctx context.Context) error {
	return m.exec.Wait(ctx)
}

// Runs returns the number of jobs run so far.
func (m *Manager) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

// Close runs the queued jobs and refuses new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.exec.Close()
}

func (m *Manager) runSync() {
	m.mu.Lock()
	urgent := m.syncUrgent
	m.syncQueued = false
	m.syncUrgent = false
	m.mu.Unlock()

	if m.syncFn == nil {
		return
	}
	m.run(JobSync, []any{"urgent", urgent}, func(ctx context.Context) error {
		return m.syncFn(ctx, urgent)
	})
}

func (m *Manager) runCleanup() {
	m.mu.Lock()
	ids := slices.Clone(m.cleanupIDs)
	m.cleanupIDs = nil
	m.cleanupWait = false
	m.mu.Unlock()

	slices.Sort(ids)
	ids = slices.Compact(ids)
	if m.cleanupFn == nil || len(ids) == 0 {
		return
	}
	m.run(JobCleanup, []any{"tasks", len(ids)}, func(ctx context.Context) error {
		return m.cleanupFn(ctx, ids)
	})
}

func (m *Manager) run(name string, kv []any, fn func(ctx context.Context) error) {
	id := uuid.New()
	logger := m.logger.With("job", name, "run", id.String())
	logger.Debug("starting", kv...)

	start := time.Now()
	err := fn(context.Background())

	m.mu.Lock()
	m.runs++
	m.mu.Unlock()

	if err != nil {
		logger.Error("failed", "duration", time.Since(start), "err", err)
		return
	}
	logger.Info("finished", append(kv, "duration", time.Since(start))...)
}
