// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package peercred

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Available reports whether this platform can identify socket peers.
func Available() bool { return true }

// FromConn returns the credentials of the process that connected conn.
// A failure to resolve the executable is not an error; it is recorded
// in Credentials.ExecutableErr so the trust layer can decide.
func FromConn(conn *net.UnixConn, options Options) (Credentials, error) {
	options = options.withDefaults()

	rawConn, err := conn.SyscallConn()
	if err != nil {
		return Credentials{}, fmt.Errorf("accessing socket descriptor: %w", err)
	}

	var (
		ucred   *unix.Ucred
		credErr error
	)
	controlErr := rawConn.Control(func(fd uintptr) {
		ucred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil {
		return Credentials{}, fmt.Errorf("accessing socket descriptor: %w", controlErr)
	}
	if credErr != nil {
		return Credentials{}, fmt.Errorf("reading SO_PEERCRED: %w", credErr)
	}
	if ucred.Pid <= 0 {
		return Credentials{}, fmt.Errorf("invalid peer credentials: pid %d", ucred.Pid)
	}

	credentials := Credentials{
		PID: ucred.Pid,
		UID: ucred.Uid,
		GID: ucred.Gid,
	}
	credentials.resolve(options)
	return credentials, nil
}

// FromPID returns the credentials of a running process. The ids come
// from the owner of its /proc entry, so unlike FromConn they describe
// the process now rather than when it connected.
func FromPID(pid int32, options Options) (Credentials, error) {
	options = options.withDefaults()
	if pid <= 0 {
		return Credentials{}, fmt.Errorf("invalid pid %d", pid)
	}
	var stat unix.Stat_t
	if err := unix.Stat(procEntry(pid), &stat); err != nil {
		return Credentials{}, fmt.Errorf("reading credentials of pid %d: %w", pid, err)
	}
	credentials := Credentials{PID: pid, UID: stat.Uid, GID: stat.Gid}
	credentials.resolve(options)
	return credentials, nil
}

// Self returns the credentials of the calling process, resolved the
// same way FromConn resolves a peer.
func Self(options Options) Credentials {
	options = options.withDefaults()
	credentials := Credentials{
		PID: int32(os.Getpid()),
		UID: uint32(os.Geteuid()),
		GID: uint32(os.Getegid()),
	}
	credentials.resolve(options)
	return credentials
}

// deletedSuffix is what the kernel appends to /proc/<pid>/exe when the
// running binary's path no longer refers to it.
const deletedSuffix = " (deleted)"

func procEntry(pid int32) string {
	return "/proc/" + strconv.Itoa(int(pid))
}

func (c *Credentials) resolve(options Options) {
	c.Image = procEntry(c.PID) + "/exe"
	c.Executable, c.ExecutableErr = resolveExecutable(c.PID, options)
}

func resolveExecutable(pid int32, options Options) (string, error) {
	procPath := procEntry(pid) + "/exe"
	delay := initialRetryDelay

	var path string
	var err error
	for attempt := 0; ; attempt++ {
		path, err = os.Readlink(procPath)
		if err == nil {
			// The link text of a deleted binary does not name the
			// running code, whatever now sits at that path.
			if strings.HasSuffix(path, deletedSuffix) {
				return "", fmt.Errorf("resolving executable for pid %d: %q: %w", pid, path, ErrExecutableDeleted)
			}
			return path, nil
		}
		if !errors.Is(err, os.ErrNotExist) || attempt == maxPathRetries {
			break
		}
		options.Logger.Debug("retrying executable resolution",
			"attempt", attempt+1,
			"pid", pid,
			"delay", delay,
		)
		<-options.Clock.After(delay)
		delay = min(delay*2, maxRetryDelay)
	}
	return "", fmt.Errorf("resolving executable for pid %d: %w", pid, err)
}
