package serial

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestExecutor_Order(t *testing.T) {
	e := New("test", quietLogger())
	defer e.Close()

	var got []int
	for i := range 100 {
		if err := e.Go(func() { got = append(got, i) }); err != nil {
			t.Fatalf("Go() failed: %v", err)
		}
	}
	if err := e.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	if !slices.Equal(got, want) {
		t.Errorf("items ran out of order: %v", got)
	}
}

func TestExecutor_OneAtATime(t *testing.T) {
	e := New("test", quietLogger())
	defer e.Close()

	var mu sync.Mutex
	running, peak := 0, 0
	for range 20 {
		_ = e.Go(func() {
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	_ = e.Wait(context.Background())

	if peak != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak)
	}
}

func TestExecutor_PanicRecovered(t *testing.T) {
	e := New("test", quietLogger())
	defer e.Close()

	_ = e.Go(func() { panic("boom") })
	ran := false
	_ = e.Go(func() { ran = true })
	_ = e.Wait(context.Background())

	if !ran {
		t.Error("executor stopped after a panic")
	}
}

func TestExecutor_CloseDrains(t *testing.T) {
	e := New("test", quietLogger())

	count := 0
	for range 10 {
		_ = e.Go(func() {
			time.Sleep(time.Millisecond)
			count++
		})
	}
	e.Close()

	if count != 10 {
		t.Errorf("Close() returned with %d of 10 items run", count)
	}
	if err := e.Go(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Go() after Close error = %v, want ErrClosed", err)
	}
	if !e.Closed() {
		t.Error("Closed() = false after Close")
	}
	// Close is idempotent.
	e.Close()
}

func TestDo(t *testing.T) {
	e := New("test", quietLogger())
	defer e.Close()
	ctx := context.Background()

	got, err := Do(ctx, e, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Errorf("Do() = %q, %v", got, err)
	}

	wantErr := errors.New("failed")
	if _, err := Do(ctx, e, func(context.Context) (int, error) { return 0, wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}

	if _, err := Do(ctx, e, func(context.Context) (int, error) { panic("boom") }); err == nil {
		t.Error("Do() swallowed a panic")
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	e := New("test", quietLogger())
	defer e.Close()

	release := make(chan struct{})
	_ = e.Go(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := Do(ctx, e, func(context.Context) (int, error) { return 1, nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
}

func TestDo_AfterClose(t *testing.T) {
	e := New("test", quietLogger())
	e.Close()

	if _, err := Do(context.Background(), e, func(context.Context) (int, error) { return 1, nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Do() error = %v, want ErrClosed", err)
	}
	if err := e.Wait(context.Background()); err != nil {
		t.Errorf("Wait() after Close error = %v", err)
	}
}
