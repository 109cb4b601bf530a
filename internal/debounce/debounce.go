// Package debounce coalesces bursts of requests per tag into single
// invocations of a registered action.
//
// A request that arrives while no request for its tag is pending starts a
// quiescence window; further requests inside the window merge into the
// pending one (latest payload wins, urgency only escalates). An urgent
// request fires immediately. The action for a tag never runs concurrently
// with itself: a firing that comes due while the previous invocation is
// still running starts as soon as it finishes.
//
// All bookkeeping runs on one serial.Executor, so Coordinator needs no locks
// around its per-tag state. Actions themselves run on their own goroutines.
package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mschirtzinger/taskd/internal/serial"
)

// DefaultWindow is the quiescence window used when none is configured.
const DefaultWindow = time.Second

// Request is the merged state handed to an action when a tag fires.
type Request struct {
	Tag     string
	Payload any
	Urgent  bool
}

// Action performs the coalesced work for a tag. Its errors are its own
// business; the coordinator only runs it.
type Action func(ctx context.Context, req Request)

type tagState struct {
	action Action

	pending bool
	urgent  bool
	payload any
	timer   *time.Timer
	gen     uint64 // invalidates timers that fired after being stopped

	running bool
	due     bool // a firing is waiting for the running action
}

// Coordinator debounces requests per tag.
type Coordinator struct {
	window time.Duration
	logger *log.Logger
	exec   *serial.Executor
	tags   map[string]*tagState

	actions sync.WaitGroup
}

// New creates a coordinator with the given quiescence window. A zero or
// negative window makes every request fire immediately.
func New(window time.Duration, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("debounce")
	if window <= 0 {
		logger.Warn("no quiescence window, requests fire immediately", "window", window)
	}
	return &Coordinator{
		window: window,
		logger: logger,
		exec:   serial.New("debounce", logger),
		tags:   make(map[string]*tagState),
	}
}

// Window returns the configured quiescence window.
func (c *Coordinator) Window() time.Duration {
	return c.window
}

// Register binds the action run when tag fires. Registering a tag again
// replaces its action for future firings.
func (c *Coordinator) Register(tag string, action Action) {
	err := c.exec.Go(func() {
		c.state(tag).action = action
	})
	if err != nil {
		c.logger.Warn("register after close ignored", "tag", tag)
	}
}

// Submit records a request for tag. It never blocks on the action.
func (c *Coordinator) Submit(tag string, payload any, urgent bool) {
	err := c.exec.Go(func() {
		c.submit(tag, payload, urgent)
	})
	if err != nil {
		// Shut down: nothing will ever fire a timer again.
		c.logger.Warn("submit after close, running action inline", "tag", tag)
		c.runAfterClose(Request{Tag: tag, Payload: payload, Urgent: urgent})
	}
}

// Wait blocks until every request submitted before the call has been
// processed by the coordinator (not necessarily fired).
func (c *Coordinator) Wait(ctx context.Context) error {
	return c.exec.Wait(ctx)
}

// Close fires every pending request, stops the coordinator and waits for
// running actions to return. A request still queued behind a running action
// runs synchronously once that action returns. Requests submitted afterwards
// run synchronously.
func (c *Coordinator) Close() {
	_ = c.exec.Go(func() {
		for tag, st := range c.tags {
			if st.timer != nil {
				st.timer.Stop()
				st.timer = nil
			}
			if st.pending && !st.running {
				c.start(tag, st)
			}
		}
	})
	c.exec.Close()
	c.actions.Wait()

	// The executor is drained, so tags is no longer written.
	for tag, st := range c.tags {
		if !st.pending || st.action == nil {
			continue
		}
		c.logger.Debug("flushing request queued behind a running action", "tag", tag)
		c.invoke(st.action, Request{Tag: tag, Payload: st.payload, Urgent: st.urgent})
	}
}

func (c *Coordinator) state(tag string) *tagState {
	st, ok := c.tags[tag]
	if !ok {
		st = &tagState{}
		c.tags[tag] = st
	}
	return st
}

func (c *Coordinator) submit(tag string, payload any, urgent bool) {
	st := c.state(tag)
	if st.action == nil {
		c.logger.Warn("no action registered, request dropped", "tag", tag)
		return
	}

	if !st.pending {
		st.pending = true
		st.urgent = urgent
		st.payload = payload
		if urgent || c.window <= 0 {
			c.fire(tag, st)
			return
		}
		st.gen++
		gen := st.gen
		st.timer = time.AfterFunc(c.window, func() {
			_ = c.exec.Go(func() { c.timerFired(tag, gen) })
		})
		c.logger.Debug("scheduled", "tag", tag, "window", c.window)
		return
	}

	st.payload = payload
	if urgent && !st.urgent {
		st.urgent = true
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.gen++
		c.fire(tag, st)
	}
}

func (c *Coordinator) timerFired(tag string, gen uint64) {
	st := c.tags[tag]
	if st == nil || st.gen != gen || !st.pending || st.due {
		return
	}
	st.timer = nil
	c.fire(tag, st)
}

// fire starts the action now, or marks it due if it is still running.
func (c *Coordinator) fire(tag string, st *tagState) {
	if st.running {
		st.due = true
		return
	}
	c.start(tag, st)
}

func (c *Coordinator) start(tag string, st *tagState) {
	req := Request{Tag: tag, Payload: st.payload, Urgent: st.urgent}
	action := st.action
	st.pending = false
	st.urgent = false
	st.payload = nil
	st.due = false
	st.running = true

	c.actions.Add(1)
	go func() {
		defer c.actions.Done()
		c.invoke(action, req)
		if err := c.exec.Go(func() { c.done(tag) }); err != nil {
			c.logger.Debug("action finished after close", "tag", tag)
		}
	}()
}

func (c *Coordinator) done(tag string) {
	st := c.tags[tag]
	st.running = false
	if st.due {
		c.start(tag, st)
	}
}

func (c *Coordinator) invoke(action Action, req Request) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("action panicked", "tag", req.Tag, "panic", r)
		}
	}()
	c.logger.Debug("firing", "tag", req.Tag, "urgent", req.Urgent)
	action(context.Background(), req)
}

func (c *Coordinator) runAfterClose(req Request) {
	// Once the executor has drained, tags is no longer written.
	_ = c.exec.Wait(context.Background())
	var action Action
	if st, ok := c.tags[req.Tag]; ok {
		action = st.action
	}
	if action == nil {
		c.logger.Warn("no action registered, request dropped", "tag", req.Tag)
		return
	}
	c.invoke(action, req)
}
