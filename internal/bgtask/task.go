// Copyright 2026 The unimrcp-ws-bridge Authors.
// Licensed under the Apache License, Version 2.0.

// Package bgtask implements the single-threaded cooperative background
// task (component T, spec §4.6): each Task runs one goroutine that drains
// a FIFO message queue. Posters only ever enqueue; they never block
// waiting on a result. Tasks are not shared: every synthsession and
// recogsession Session creates and owns its own. Grounded on the teacher's
// websocketExecutor — a connect-then-drain-in-a-goroutine loop
// coordinated with errgroup and a done channel — generalised here from
// one fixed response loop into a queue of arbitrary typed messages with
// self-posting for "next tick" work (RecvPoll/RecvResult).
package bgtask

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/unimrcp-ws-bridge/internal/logging"
)

// Message is anything the task can service. Handlers decide what to do
// with unrecognised concrete types; this package only moves them.
type Message interface{}

// Handler processes one message. It runs exclusively on the task
// goroutine — it may call WsClient, mutate session state without further
// locking beyond what the session itself requires for host-thread
// interop, and it may enqueue follow-up messages via the Task it's given.
type Handler func(ctx context.Context, msg Message)

// Task is one background worker: a single goroutine, a FIFO
// channel of messages, and a handler that's passed a reference back to
// the Task so it can self-post (spec §4.6 "RecvPoll", "RecvResult").
type Task struct {
	logger  logging.Logger
	queue   chan Message
	handler Handler

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Option configures New.
type Option func(*Task)

// QueueDepth sets the channel buffer; the spec allows bounding the queue
// and dropping idempotent self-posts (RecvPoll) under back-pressure —
// this package bounds it by default and drops self-posts that don't fit
// rather than blocking the poster (see Post).
func QueueDepth(n int) Option {
	return func(t *Task) { t.queue = make(chan Message, n) }
}

// New creates a Task bound to handler. Call Start to launch its
// goroutine.
func New(handler Handler, logger logging.Logger, opts ...Option) *Task {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Task{
		logger:  logger,
		queue:   make(chan Message, 256),
		handler: handler,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the task's goroutine under an errgroup so Stop can
// observe a clean exit. Safe to call once; a second call is a no-op.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	g, gCtx := errgroup.WithContext(runCtx)
	t.group = g

	g.Go(func() error {
		t.run(gCtx)
		return nil
	})
}

func (t *Task) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-t.queue:
			if !ok {
				return
			}
			t.handler(ctx, msg)
		}
	}
}

// Post enqueues msg for processing. It never blocks the caller: if the
// queue is full, the message is dropped and logged — acceptable for
// self-posted RecvPoll/RecvResult ticks (spec §4.6: "an implementation
// MAY bound it and apply back-pressure by dropping RecvPoll
// self-messages (idempotent)"), since another matching tick is always
// about to follow.
func (t *Task) Post(msg Message) {
	select {
	case t.queue <- msg:
	default:
		t.logger.Warnf("bgtask: queue full, dropping message %T", msg)
	}
}

// Stop drains no further messages, cancels the running goroutine, and
// waits for it to exit. Safe to call once; a second call is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	if t.stopped || !t.started {
		t.stopped = true
		t.mu.Unlock()
		return
	}
	t.stopped = true
	cancel := t.cancel
	group := t.group
	t.mu.Unlock()

	cancel()
	_ = group.Wait()
}
