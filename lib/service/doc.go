// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements authenticated, bidirectional message
// exchange between local processes over Unix-domain sockets.
//
// A service process creates one [Listener] per named endpoint. Each
// listener binds <directory>/<name>.sock, and every connecting peer is
// identified from kernel-verified credentials (see lib/peercred) and
// checked against the listener's trust requirement (see lib/trust)
// before any of its messages are read. Rejected peers are disconnected
// without a callback. Accepted peers become a server-side [Session].
//
// A client process calls [Connect] to obtain a client-side Session.
// Both sides have the same capabilities once connected:
//
//   - [Session.Send] delivers a notification. Nothing is tracked.
//   - [Session.SendWithReply] sends a request and blocks the calling
//     goroutine until the matching reply arrives, the session is
//     invalidated, or the context is cancelled.
//   - [Session.Reply] and [Session.ReplyError] answer a peer request.
//
// # Dispatch
//
// Every listener and every session owns a dispatch queue (lib/dispatch).
// Accept handling runs on the listener's queue. OnAccept and Handler
// callbacks for a session run on that session's queue, one at a time,
// in arrival order. Replies bypass the queue: the session's reader
// goroutine hands them straight to the waiting caller, so a Handler may
// itself call SendWithReply on its own session.
//
// # Wire format
//
// The stream is a CBOR sequence of lib/ipc envelopes. Each envelope
// carries a kind, a correlation token, and a body that must be a CBOR
// map. Tokens are allocated per session starting at 1 and are never
// reused within that session.
//
// # Errors
//
// Every error returned by this package is a [*Error] matching one of
// the Err* sentinels with errors.Is. A failure reported by the peer's
// handler arrives as a [*RemoteError].
package service
