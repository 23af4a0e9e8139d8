// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peercred

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/localipc/lib/clock"
)

// ErrUnsupported is returned by FromConn on platforms without a
// peer-credential socket option.
var ErrUnsupported = errors.New("peercred: peer credentials are not available on this platform")

// ErrExecutableDeleted is recorded in Credentials.ExecutableErr when
// the peer runs a binary that has since been unlinked or replaced. The
// path it was started from no longer names the running code.
var ErrExecutableDeleted = errors.New("peercred: executable was deleted")

// Credentials identify the process on the other end of a connection.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32

	// Executable is the resolved path of the peer's executable, or ""
	// when it could not be read. ExecutableErr then holds the reason.
	Executable    string
	ExecutableErr error

	// Image opens the executable the peer is actually running, even
	// after the file it was started from was deleted or replaced. On
	// Linux it is /proc/<pid>/exe. Content checks read it rather than
	// Executable.
	Image string
}

// ExecutableDir returns the directory containing the peer executable,
// or "" when the executable is unknown.
func (c Credentials) ExecutableDir() string {
	if c.Executable == "" {
		return ""
	}
	return filepath.Dir(c.Executable)
}

// LogValue renders credentials as a structured log group.
func (c Credentials) LogValue() slog.Value {
	attributes := []slog.Attr{
		slog.Int("pid", int(c.PID)),
		slog.Uint64("uid", uint64(c.UID)),
		slog.Uint64("gid", uint64(c.GID)),
	}
	if c.Executable != "" {
		attributes = append(attributes, slog.String("exe", c.Executable))
	} else if c.ExecutableErr != nil {
		attributes = append(attributes, slog.String("exe_error", c.ExecutableErr.Error()))
	}
	return slog.GroupValue(attributes...)
}

func (c Credentials) String() string {
	return fmt.Sprintf("pid=%d uid=%d gid=%d exe=%q", c.PID, c.UID, c.GID, c.Executable)
}

const (
	// maxPathRetries bounds readlink retries when the peer's /proc
	// entry has not appeared or has just vanished.
	maxPathRetries = 2

	initialRetryDelay = time.Millisecond
	maxRetryDelay     = 10 * time.Millisecond
)

// Options controls credential extraction. The zero value uses the real
// clock and discards logs.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
