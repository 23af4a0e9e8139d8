// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sample implements the four demonstration listeners served by
// localipc-daemon and the client calls localipc-client makes against
// them.
//
// Each method is its own listener, named "<prefix>.<method>":
//
//   - ping: replies {message: "pong"}
//   - add: replies with the sum of two int64s, or an error on overflow
//   - panic: panics when asked to, which invalidates only the caller's
//     session; otherwise replies "didn't panic"
//   - echo: replies with the request body unchanged
//
// [Daemon] is the listeners' shared context. [Ping], [Add], [Panic],
// and [Echo] are the client side.
package sample
