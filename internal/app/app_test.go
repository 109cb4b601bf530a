package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mschirtzinger/taskd/internal/config"
	"github.com/mschirtzinger/taskd/internal/prefs"
	"github.com/mschirtzinger/taskd/internal/schema"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DB.Path = filepath.Join(dir, "tasks.db")
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Prefs.Path = filepath.Join(dir, "prefs.yaml")
	cfg.Sync.Debounce = 10 * time.Millisecond
	return cfg
}

func lastSync(t *testing.T, cfg *config.Config) time.Time {
	t.Helper()
	p, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		t.Fatalf("prefs.Open() failed: %v", err)
	}
	return p.Time(prefs.KeyLastSync)
}

func TestOpenClose_NoBackends(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := Open(ctx, cfg, log.New(io.Discard), nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	id, err := a.DB.CreateTask(ctx, &schema.Task{Title: "local only"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	deleted, err := a.Deleter.MarkDeleted(ctx, []int64{id})
	if err != nil {
		t.Fatalf("MarkDeleted() failed: %v", err)
	}
	if len(deleted) != 1 || !deleted[0].IsDeleted() {
		t.Fatalf("MarkDeleted() = %v", deleted)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if !lastSync(t, cfg).IsZero() {
		t.Error("sync ran with no backend enabled")
	}
}

func TestClose_FlushesSync(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Sync.Debounce = time.Hour

	a, err := Open(ctx, cfg, log.New(io.Discard), nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	account := &schema.CalendarAccount{UUID: "acc-1", Name: "Work", Type: schema.AccountCalDAV}
	if err := a.DB.CreateCalendarAccount(ctx, account); err != nil {
		t.Fatalf("CreateCalendarAccount() failed: %v", err)
	}
	id, err := a.DB.CreateTask(ctx, &schema.Task{Title: "synced"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if _, err := a.Deleter.MarkDeleted(ctx, []int64{id}); err != nil {
		t.Fatalf("MarkDeleted() failed: %v", err)
	}

	// The hour-long window is still open; Close must flush it into a run.
	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if lastSync(t, cfg).IsZero() {
		t.Error("pending sync was not flushed on Close")
	}
	if runs := a.Jobs.Runs(); runs < 1 {
		t.Errorf("Jobs.Runs() = %d, want at least 1", runs)
	}
}

func TestDeleteCalendar_PurgesCache(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := Open(ctx, cfg, log.New(io.Discard), nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer a.Close()

	account := &schema.CalendarAccount{UUID: "acc-1", Name: "Work", Type: schema.AccountCalDAV}
	cal := &schema.Calendar{Account: "acc-1", UUID: "cal-1", Name: "Inbox"}
	if err := a.DB.CreateCalendarAccount(ctx, account); err != nil {
		t.Fatal(err)
	}
	if err := a.DB.CreateCalendar(ctx, cal); err != nil {
		t.Fatal(err)
	}
	if err := a.Cache.PutObject(ctx, cal, "1.ics", []byte("BEGIN:VCALENDAR")); err != nil {
		t.Fatal(err)
	}

	if err := a.Deleter.DeleteCalendar(ctx, cal); err != nil {
		t.Fatalf("DeleteCalendar() failed: %v", err)
	}
	if data, _ := a.Cache.GetObject(ctx, cal, "1.ics"); data != nil {
		t.Error("calendar cache not purged")
	}
	if _, err := a.DB.GetCalendar(ctx, "cal-1"); err == nil {
		t.Error("calendar still stored")
	}
}
