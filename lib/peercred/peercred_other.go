// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package peercred

import (
	"net"
	"os"
)

// Available reports whether this platform can identify socket peers.
func Available() bool { return false }

// FromConn always fails with ErrUnsupported on this platform.
func FromConn(*net.UnixConn, Options) (Credentials, error) {
	return Credentials{}, ErrUnsupported
}

// FromPID always fails with ErrUnsupported on this platform.
func FromPID(int32, Options) (Credentials, error) {
	return Credentials{}, ErrUnsupported
}

// Self returns the calling process's ids without an executable path.
func Self(Options) Credentials {
	return Credentials{
		PID:           int32(os.Getpid()),
		UID:           uint32(os.Geteuid()),
		GID:           uint32(os.Getegid()),
		ExecutableErr: ErrUnsupported,
	}
}
