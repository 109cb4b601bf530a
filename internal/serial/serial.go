// Package serial runs work items one at a time, in submission order, on a
// single background goroutine.
//
// Each coordinator in taskd owns one Executor and routes every piece of
// its mutable state through it, so the state itself needs no locks.
// Callers that need a result block in Do; fire-and-forget work uses Go.
package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("executor closed")

// Executor is an unbounded FIFO work queue drained by one goroutine.
type Executor struct {
	name   string
	logger *log.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// New starts an executor. The name prefixes its log lines.
func New(name string, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	e := &Executor{
		name:   name,
		logger: logger.WithPrefix(name),
		done:   make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.loop()
	return e
}

// Go enqueues fn. It returns ErrClosed once Close has been called.
func (e *Executor) Go(fn func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.queue = append(e.queue, fn)
	e.cond.Signal()
	return nil
}

// Wait blocks until every item enqueued before the call has run.
func (e *Executor) Wait(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := e.Go(func() { close(barrier) }); err != nil {
		// Closed: the remaining queue drains on its own.
		select {
		case <-e.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and blocks until the queued items have run.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		e.cond.Signal()
	}
	e.mu.Unlock()
	<-e.done
}

// Closed reports whether Close has been called.
func (e *Executor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.run(fn)
	}
}

func (e *Executor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("work item panicked", "panic", r)
		}
	}()
	fn()
}

// Do runs fn on e and waits for its result. If ctx ends first, Do returns
// ctx.Err() while fn still runs to completion in the background.
func Do[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	err := e.Go(func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("%s: panic: %v", e.name, r)
			}
			ch <- res
		}()
		res.val, res.err = fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}

	select {
	case res := <-ch:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
