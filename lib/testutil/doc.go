// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for localipc packages.
//
// [SocketDir] creates a short directory under /tmp for listener
// sockets. sun_path in sockaddr_un holds 108 bytes, and t.TempDir()
// paths built from long test names regularly exceed it.
//
// [RequireReceive], [RequireSend], [RequireClosed], and
// [RequireNoReceive] wrap the select-with-timeout pattern so tests
// never block forever on a channel. They are the only place the test
// suite waits on the wall clock.
//
// [UniqueID] produces distinct service identifiers so parallel tests
// never collide on a socket path.
package testutil
