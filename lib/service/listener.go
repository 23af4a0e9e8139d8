// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/localipc/lib/clock"
	"github.com/bureau-foundation/localipc/lib/dispatch"
	"github.com/bureau-foundation/localipc/lib/netutil"
	"github.com/bureau-foundation/localipc/lib/peercred"
	"github.com/bureau-foundation/localipc/lib/trust"
)

// Handler receives each request and notification from an accepted
// peer, in arrival order, on the session's dispatch queue. app is the
// listener's Context value. Requests are answered with
// session.Reply or session.ReplyError.
type Handler[C any] func(app C, session *Session, message *Message)

// AcceptFunc runs once for each accepted peer, before Handler sees any
// of its messages.
type AcceptFunc[C any] func(app C, session *Session)

// DefaultSocketPermissions is applied to the socket file when
// ListenerConfig.SocketPermissions is zero.
const DefaultSocketPermissions os.FileMode = 0o600

// ListenerConfig describes one named endpoint.
type ListenerConfig[C any] struct {
	// Name is the service identifier. See ValidateName.
	Name string

	// Requirement is a trust expression every peer must satisfy (see
	// lib/trust). Empty accepts every peer that can reach the socket.
	Requirement string

	// Context is passed unchanged to Handler and OnAccept.
	Context C

	// Handler is required.
	Handler Handler[C]

	// OnAccept is optional.
	OnAccept AcceptFunc[C]

	// Directory holds the socket file. Empty means DefaultDirectory().
	// It is created with mode 0700 if missing.
	Directory string

	// SocketPermissions is the mode of the socket file. Zero means
	// DefaultSocketPermissions. Connecting requires write permission,
	// so this is the first gate; the trust requirement is the second.
	SocketPermissions os.FileMode

	Logger *slog.Logger
	Clock  clock.Clock
}

// ListenerStats counts peer arrivals.
type ListenerStats struct {
	Accepted uint64
	Rejected uint64
	Active   int
}

// Listener accepts peers on one named endpoint and owns the sessions
// it creates for them.
type Listener[C any] struct {
	config      ListenerConfig[C]
	socketPath  string
	socketInfo  os.FileInfo
	requirement *trust.Requirement
	logger      *slog.Logger
	clock       clock.Clock

	listener *net.UnixListener
	queue    *dispatch.Queue

	mu       sync.Mutex
	closed   bool
	sessions map[*Session]struct{}

	accepted atomic.Uint64
	rejected atomic.Uint64

	acceptDone chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// NewListener creates, secures, and activates a listener, in that
// order. A failure at any step releases everything acquired before it
// and is reported as ErrCreationFailed, ErrTrustRequirementRejected,
// or ErrActivationFailed respectively. In particular a requirement
// that cannot be installed means no peer is ever accepted.
func NewListener[C any](config ListenerConfig[C]) (*Listener[C], error) {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.SocketPermissions == 0 {
		config.SocketPermissions = DefaultSocketPermissions
	}

	l := &Listener[C]{
		config:     config,
		logger:     config.Logger.With("service", config.Name),
		clock:      config.Clock,
		sessions:   make(map[*Session]struct{}),
		acceptDone: make(chan struct{}),
		done:       make(chan struct{}),
	}

	fd, err := l.create()
	if err != nil {
		return nil, newError(ErrCreationFailed, "create", config.Name, err)
	}

	if err := l.installRequirement(); err != nil {
		l.abandon(fd)
		return nil, newError(ErrTrustRequirementRejected, "create", config.Name, err)
	}

	if err := l.activate(fd); err != nil {
		return nil, newError(ErrActivationFailed, "create", config.Name, err)
	}

	l.logger.Info("listener active",
		"path", l.socketPath,
		"requirement", l.requirementString(),
	)
	return l, nil
}

// create validates the configuration and binds a socket to the
// endpoint's path. It returns the bound, not yet listening, socket.
func (l *Listener[C]) create() (int, error) {
	if l.config.Handler == nil {
		return -1, errors.New("no handler configured")
	}
	path, err := SocketPath(l.config.Directory, l.config.Name)
	if err != nil {
		return -1, err
	}
	l.socketPath = path

	directory := l.config.Directory
	if directory == "" {
		directory = DefaultDirectory()
	}
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return -1, fmt.Errorf("creating runtime directory: %w", err)
	}
	if err := removeStaleSocket(path); err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("creating socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		if netutil.IsAddressInUse(err) {
			return -1, fmt.Errorf("binding %s: another listener owns this name: %w", path, err)
		}
		return -1, fmt.Errorf("binding %s: %w", path, err)
	}

	info, err := os.Lstat(path)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("inspecting bound socket: %w", err)
	}
	l.socketInfo = info
	return fd, nil
}

// removeStaleSocket clears a socket file left behind by a process
// that exited without cleaning up. A socket that still answers belongs
// to a live listener and is left alone, as is anything that is not a
// socket.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", path, err)
	}
	if info.Mode().Type() != os.ModeSocket {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%s is served by another listener", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	return nil
}

func (l *Listener[C]) installRequirement() error {
	if strings.TrimSpace(l.config.Requirement) == "" {
		return nil
	}
	if !peercred.Available() {
		return peercred.ErrUnsupported
	}
	requirement, err := trust.Parse(l.config.Requirement)
	if err != nil {
		return err
	}
	l.requirement = requirement
	return nil
}

// Replaced in tests to force activation failures.
var (
	chmodSocket  = os.Chmod
	listenSocket = unix.Listen
)

// activate starts accepting on fd. It takes ownership of fd and
// releases it on failure.
func (l *Listener[C]) activate(fd int) error {
	if err := chmodSocket(l.socketPath, l.config.SocketPermissions); err != nil {
		l.abandon(fd)
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	if err := listenSocket(fd, unix.SOMAXCONN); err != nil {
		l.abandon(fd)
		return fmt.Errorf("listening: %w", err)
	}

	// FileListener duplicates the descriptor, so the original is closed
	// whether or not it succeeds.
	file := os.NewFile(uintptr(fd), l.socketPath)
	listener, err := net.FileListener(file)
	file.Close()
	if err != nil {
		l.removeSocketFile()
		return fmt.Errorf("wrapping socket: %w", err)
	}
	unixListener, ok := listener.(*net.UnixListener)
	if !ok {
		listener.Close()
		l.removeSocketFile()
		return fmt.Errorf("wrapping socket: got %T", listener)
	}
	unixListener.SetUnlinkOnClose(false)

	l.listener = unixListener
	l.queue = dispatch.New("listener " + l.config.Name)
	go l.acceptLoop()
	return nil
}

// abandon releases a bound descriptor after a later step failed.
func (l *Listener[C]) abandon(fd int) {
	unix.Close(fd)
	l.removeSocketFile()
}

// removeSocketFile deletes the socket path only if it is still the
// file this listener bound.
func (l *Listener[C]) removeSocketFile() {
	info, err := os.Lstat(l.socketPath)
	if err != nil || l.socketInfo == nil || !os.SameFile(info, l.socketInfo) {
		return
	}
	if err := os.Remove(l.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("removing socket file", "path", l.socketPath, "error", err)
	}
}

// acceptBackoff is the pause after an accept error that is not caused
// by Close, such as EMFILE.
const acceptBackoff = 50 * time.Millisecond

func (l *Listener[C]) acceptLoop() {
	defer close(l.acceptDone)
	for {
		conn, err := l.listener.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Error("accept failed", "error", err)
			<-l.clock.After(acceptBackoff)
			continue
		}
		if !l.queue.Submit(func() { l.admit(conn) }) {
			conn.Close()
			return
		}
	}
}

// admit runs on the listener queue for every accepted connection.
func (l *Listener[C]) admit(conn *net.UnixConn) {
	credentials, err := peercred.FromConn(conn, peercred.Options{Clock: l.clock, Logger: l.logger})
	if l.requirement != nil {
		if err == nil {
			err = l.requirement.Check(credentials)
		}
		if err != nil {
			l.rejected.Add(1)
			l.logger.Debug("peer rejected", "peer", credentials, "error", err)
			conn.Close()
			return
		}
	} else if err != nil {
		l.logger.Debug("peer credentials unavailable", "error", err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		conn.Close()
		return
	}
	session := newSession(conn, sessionConfig{
		name:   l.config.Name,
		role:   RoleServer,
		peer:   credentials,
		logger: l.config.Logger,
		clock:  l.clock,
		handler: func(session *Session, message *Message) {
			l.config.Handler(l.config.Context, session, message)
		},
		onClosed: l.release,
	})
	if l.config.OnAccept != nil {
		session.onAccept = func(session *Session) {
			l.config.OnAccept(l.config.Context, session)
		}
	}
	l.sessions[session] = struct{}{}
	l.mu.Unlock()

	l.accepted.Add(1)
	l.logger.Debug("peer accepted", "session", session.ID(), "peer", credentials)
	session.start()
}

func (l *Listener[C]) release(session *Session) {
	l.mu.Lock()
	delete(l.sessions, session)
	l.mu.Unlock()
}

// Name returns the service identifier.
func (l *Listener[C]) Name() string { return l.config.Name }

// SocketPath returns the path of the bound socket file.
func (l *Listener[C]) SocketPath() string { return l.socketPath }

// Requirement returns the installed trust requirement, or nil when
// every peer is accepted.
func (l *Listener[C]) Requirement() *trust.Requirement { return l.requirement }

func (l *Listener[C]) requirementString() string {
	if l.requirement == nil {
		return "any"
	}
	return l.requirement.String()
}

// Stats returns arrival counters and the number of live sessions.
func (l *Listener[C]) Stats() ListenerStats {
	l.mu.Lock()
	active := len(l.sessions)
	l.mu.Unlock()
	return ListenerStats{
		Accepted: l.accepted.Load(),
		Rejected: l.rejected.Load(),
		Active:   active,
	}
}

// Done is closed when Close has finished.
func (l *Listener[C]) Done() <-chan struct{} { return l.done }

// Close stops accepting peers, invalidates every session the listener
// owns, waits for their callbacks to finish, and removes the socket
// file. It must not be called from a Handler or OnAccept of one of the
// listener's own sessions. Later calls return immediately.
func (l *Listener[C]) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		l.listener.Close()
		<-l.acceptDone
		l.queue.Close()

		l.mu.Lock()
		sessions := make([]*Session, 0, len(l.sessions))
		for session := range l.sessions {
			sessions = append(sessions, session)
		}
		l.mu.Unlock()

		for _, session := range sessions {
			session.Invalidate()
		}
		for _, session := range sessions {
			<-session.Done()
		}

		l.removeSocketFile()
		l.logger.Info("listener closed",
			"accepted", l.accepted.Load(),
			"rejected", l.rejected.Load(),
		)
		close(l.done)
	})
	return nil
}
