// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch provides a serial event queue.
//
// A [Queue] runs submitted functions one at a time, in submission
// order, on a goroutine it owns. Every listener and every session holds
// one queue, so application callbacks for a given connection never run
// concurrently with each other while separate connections proceed in
// parallel.
//
// Submit never blocks: the queue is unbounded. Close stops intake,
// lets already-queued events finish, and waits for the goroutine to
// exit.
package dispatch
