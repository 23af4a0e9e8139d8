// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// IsExpectedCloseError reports whether err is an ordinary end of a
// session: the peer closed its end (EOF), the peer died partway through
// an envelope (unexpected EOF), the local side already closed the
// socket, or the kernel reported EPIPE or ECONNRESET on a half-dead
// connection. Session readers log these at Debug rather than Error.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == unix.EPIPE || errno == unix.ECONNRESET
	}
	return false
}

// IsAddressInUse reports whether err is EADDRINUSE from bind(2).
func IsAddressInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
