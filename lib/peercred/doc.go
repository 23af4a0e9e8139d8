// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package peercred extracts kernel-verified identity from the peer end
// of a Unix-domain socket.
//
// On Linux the pid, uid, and gid come from SO_PEERCRED, recorded by the
// kernel when the peer called connect(2); the peer cannot forge them.
// The executable path is then read from /proc/<pid>/exe. That second
// step can race with the peer exiting, so ENOENT is retried with a
// short capped backoff before being recorded as a failure. A binary
// that was deleted or replaced after the peer started is reported as
// [ErrExecutableDeleted]; its content stays reachable through
// Credentials.Image, which names the running image itself.
//
// On other platforms [Available] reports false and [FromConn] fails with
// [ErrUnsupported]. Listeners refuse to install a trust requirement in
// that case rather than silently accepting every peer.
package peercred
