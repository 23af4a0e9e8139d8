// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import "sync"

// Queue is a strictly ordered, single-consumer event queue.
type Queue struct {
	name string

	mu      sync.Mutex
	pending []func()
	wake    *sync.Cond
	closed  bool

	done chan struct{}
}

// New starts a queue. The name labels the queue in diagnostics.
func New(name string) *Queue {
	queue := &Queue{
		name: name,
		done: make(chan struct{}),
	}
	queue.wake = sync.NewCond(&queue.mu)
	go queue.run()
	return queue
}

// Name returns the label passed to New.
func (q *Queue) Name() string { return q.name }

// Submit enqueues event. It returns false, without queueing, once
// Close has been called.
func (q *Queue) Submit(event func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.pending = append(q.pending, event)
	q.wake.Signal()
	return true
}

// Len returns the number of events waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting events and blocks until everything already
// queued has run. Close is idempotent. An event must not call Close on
// its own queue; it calls Shutdown instead.
func (q *Queue) Close() {
	q.Shutdown()
	<-q.done
}

// Shutdown stops accepting events without waiting for the drain.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.wake.Signal()
	q.mu.Unlock()
}

// Done is closed after the queue has drained and its goroutine has
// exited.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.wake.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		event := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		event()
	}
}
