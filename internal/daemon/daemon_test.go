package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"github.com/mschirtzinger/taskd/internal/config"
	"github.com/mschirtzinger/taskd/internal/db"
	"github.com/mschirtzinger/taskd/internal/notify"
	"github.com/mschirtzinger/taskd/internal/schema"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DB.Path = filepath.Join(dir, "tasks.db")
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Prefs.Path = filepath.Join(dir, "prefs.yaml")
	cfg.Sync.Debounce = 20 * time.Millisecond
	cfg.Sync.Schedule = ""
	return cfg
}

// startDaemon runs a daemon until the test ends.
func startDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(Config{Config: cfg, Addr: "127.0.0.1:0", Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Run() failed: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	return d
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without config should fail")
	}

	cfg := testConfig(t)
	cfg.Sync.Schedule = "sometimes"
	if _, err := New(Config{Config: cfg}); err == nil {
		t.Error("New() with a bad schedule should fail")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	d, err := New(Config{Config: testConfig(t), Addr: "127.0.0.1:0", Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-d.Ready()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_PortInUse(t *testing.T) {
	first := startDaemon(t, testConfig(t))

	d, err := New(Config{Config: testConfig(t), Addr: first.Addr(), Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := d.Run(context.Background()); err == nil {
		t.Error("Run() on a busy address should fail")
	}
}

// TestForeignWriteBroadcastsRefresh simulates another taskd process
// writing to the database.
func TestForeignWriteBroadcastsRefresh(t *testing.T) {
	cfg := testConfig(t)
	d := startDaemon(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+d.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	other, err := db.Open(cfg.DB.Path)
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	defer other.Close()
	if _, err := other.CreateTask(ctx, &schema.Task{Title: "from the CLI"}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("no refresh broadcast: %v", err)
		}
		var msg notify.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if msg.Type == notify.MessageTypeRefresh {
			return
		}
	}
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{log.New(&buf)}
	l.Error(errors.New("boom"), "job failed", "entry", 1)
	if got := buf.String(); got == "" {
		t.Error("cron errors are not logged")
	}
}
