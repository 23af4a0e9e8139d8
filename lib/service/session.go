// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/localipc/lib/clock"
	"github.com/bureau-foundation/localipc/lib/codec"
	"github.com/bureau-foundation/localipc/lib/dispatch"
	"github.com/bureau-foundation/localipc/lib/ipc"
	"github.com/bureau-foundation/localipc/lib/netutil"
	"github.com/bureau-foundation/localipc/lib/peercred"
)

// Role says which end of a connection a Session represents.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Session is one established, trusted connection. Server sessions are
// created by a Listener for each accepted peer and are owned by it.
// Client sessions are returned by Connect and owned by the caller,
// who must Close them.
//
// All methods are safe for concurrent use.
type Session struct {
	id          string
	name        string
	role        Role
	peer        peercred.Credentials
	connectedAt time.Time

	conn   *net.UnixConn
	logger *slog.Logger
	queue  *dispatch.Queue

	handler  func(*Session, *Message)
	onAccept func(*Session)
	onClosed func(*Session)

	writeMu sync.Mutex

	// mu guards the outstanding-request table and the closed flag.
	// Entries are removed under mu by whichever event resolves them
	// first: the reply, invalidation, a write failure, or the caller
	// giving up.
	mu          sync.Mutex
	closed      bool
	lastToken   uint64
	outstanding map[uint64]chan replyResult

	readerDone chan struct{}
	done       chan struct{}
}

type replyResult struct {
	message *Message
	err     error
}

type sessionConfig struct {
	name     string
	role     Role
	peer     peercred.Credentials
	logger   *slog.Logger
	clock    clock.Clock
	handler  func(*Session, *Message)
	onAccept func(*Session)
	onClosed func(*Session)
}

func newSession(conn *net.UnixConn, config sessionConfig) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		name:        config.name,
		role:        config.role,
		peer:        config.peer,
		connectedAt: config.clock.Now(),
		conn:        conn,
		logger: config.logger.With(
			"service", config.name,
			"session", id,
			"role", string(config.role),
		),
		queue:       dispatch.New(fmt.Sprintf("%s session %s", config.role, id)),
		handler:     config.handler,
		onAccept:    config.onAccept,
		onClosed:    config.onClosed,
		outstanding: make(map[uint64]chan replyResult),
		readerDone:  make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// start queues the accept hook ahead of any inbound message and then
// begins reading.
func (s *Session) start() {
	if s.onAccept != nil {
		s.queue.Submit(func() {
			s.runCallback("accept hook", func() { s.onAccept(s) })
		})
	}
	go s.readLoop()
}

// ID returns a unique identifier for this session, used in logs.
func (s *Session) ID() string { return s.id }

// Name returns the service identifier the session belongs to.
func (s *Session) Name() string { return s.name }

// Role reports which end of the connection this session is.
func (s *Session) Role() Role { return s.role }

// Peer returns the kernel-verified credentials of the remote process.
// On platforms without peer credentials only the zero value is
// available.
func (s *Session) Peer() peercred.Credentials { return s.peer }

// ConnectedAt returns when the session was established.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Done is closed once the session has been invalidated, its reader has
// exited, and every queued callback has run.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outstanding returns the number of requests awaiting a reply.
func (s *Session) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

// Send transmits message as a notification. The peer's handler
// receives it; no reply is expected or tracked.
func (s *Session) Send(message any) error {
	const op = "send"
	if s.isClosed() {
		return newError(ErrSessionClosed, op, s.name, nil)
	}
	body, err := codec.MarshalMap(message)
	if err != nil {
		return newError(ErrSendFailed, op, s.name, err)
	}
	if err := s.write(context.Background(), ipc.Envelope{Kind: ipc.KindNotification, Body: body}); err != nil {
		if !isUnsentError(err) {
			s.invalidate(err)
		}
		return newError(ErrSendFailed, op, s.name, err)
	}
	return nil
}

// SendWithReply transmits message as a request and blocks until the
// peer answers it. The dispatch queues keep running while the caller
// waits, so this may be called from a Handler.
//
// It returns the reply, a *RemoteError when the peer handler answered
// with ReplyError, ErrConnectionLost when the session is invalidated
// first, ErrSendFailed when the request could not be transmitted, or
// ctx.Err() when ctx ends first. In every case the request's entry has
// been removed from the outstanding table by the time it returns.
func (s *Session) SendWithReply(ctx context.Context, message any) (*Message, error) {
	const op = "send with reply"
	if s.isClosed() {
		return nil, newError(ErrSessionClosed, op, s.name, nil)
	}
	body, err := codec.MarshalMap(message)
	if err != nil {
		return nil, newError(ErrSendFailed, op, s.name, err)
	}

	waiter := make(chan replyResult, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, newError(ErrSessionClosed, op, s.name, nil)
	}
	s.lastToken++
	token := s.lastToken
	s.outstanding[token] = waiter
	s.mu.Unlock()

	if err := s.write(ctx, ipc.Envelope{Kind: ipc.KindRequest, Token: token, Body: body}); err != nil {
		if s.forget(token) {
			if !isUnsentError(err) {
				s.invalidate(err)
			}
			return nil, newError(ErrSendFailed, op, s.name, err)
		}
		// Invalidation got to the entry first.
		result := <-waiter
		return result.message, result.err
	}

	select {
	case result := <-waiter:
		return result.message, result.err
	case <-ctx.Done():
		if s.forget(token) {
			return nil, fmt.Errorf("waiting for reply to request %d on %s: %w", token, s.name, ctx.Err())
		}
		result := <-waiter
		return result.message, result.err
	}
}

// Reply answers request with value, which must encode to a CBOR map.
// Each request can be answered once.
func (s *Session) Reply(request *Message, value any) error {
	const op = "reply"
	if s.isClosed() {
		return newError(ErrSessionClosed, op, s.name, nil)
	}
	body, err := codec.MarshalMap(value)
	if err != nil {
		return newError(ErrSendFailed, op, s.name, err)
	}
	return s.respond(op, request, ipc.Envelope{Kind: ipc.KindReply, Token: request.token, Body: body})
}

// ReplyError answers request with a failure. The requester's
// SendWithReply returns a *RemoteError carrying failure's message.
func (s *Session) ReplyError(request *Message, failure error) error {
	message := "unknown error"
	if failure != nil {
		message = failure.Error()
	}
	return s.respond("reply", request, ipc.Envelope{Kind: ipc.KindError, Token: request.token, Error: message})
}

func (s *Session) respond(op string, request *Message, envelope ipc.Envelope) error {
	if !request.ExpectsReply() {
		return newError(ErrSendFailed, op, s.name, fmt.Errorf("%s does not expect a reply", request.kind))
	}
	if s.isClosed() {
		return newError(ErrSessionClosed, op, s.name, nil)
	}
	if !request.replied.CompareAndSwap(false, true) {
		return newError(ErrSendFailed, op, s.name, fmt.Errorf("request %d was already answered", request.token))
	}
	if err := s.write(context.Background(), envelope); err != nil {
		if isUnsentError(err) {
			request.replied.Store(false)
		} else {
			s.invalidate(err)
		}
		return newError(ErrSendFailed, op, s.name, err)
	}
	return nil
}

// Invalidate tears the session down: the connection is closed, every
// outstanding request resolves with ErrConnectionLost, and later sends
// fail with ErrSessionClosed. Calling it again has no effect. It does
// not wait; use Done for that.
func (s *Session) Invalidate() {
	s.invalidate(nil)
}

// Close invalidates the session. It always returns nil.
func (s *Session) Close() error {
	s.Invalidate()
	return nil
}

func (s *Session) invalidate(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.outstanding
	s.outstanding = nil
	s.mu.Unlock()

	s.conn.Close()

	lost := newError(ErrConnectionLost, "send with reply", s.name, cause)
	for _, waiter := range pending {
		waiter <- replyResult{err: lost}
	}

	if cause != nil && !netutil.IsExpectedCloseError(cause) {
		s.logger.Warn("session invalidated", "error", cause, "outstanding", len(pending))
	} else {
		s.logger.Debug("session invalidated", "outstanding", len(pending))
	}

	s.queue.Shutdown()
	go func() {
		<-s.readerDone
		<-s.queue.Done()
		if s.onClosed != nil {
			s.onClosed(s)
		}
		close(s.done)
	}()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// forget removes token from the outstanding table and reports whether
// it was still there.
func (s *Session) forget(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outstanding[token]; !ok {
		return false
	}
	delete(s.outstanding, token)
	return true
}

// resolve delivers a reply to the waiter registered for token. Replies
// for unknown tokens (never issued, already answered, or abandoned by
// a cancelled caller) are dropped.
func (s *Session) resolve(token uint64, result replyResult) {
	s.mu.Lock()
	waiter, ok := s.outstanding[token]
	if ok {
		delete(s.outstanding, token)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("dropping reply for unknown token", "token", token)
		return
	}
	waiter <- result
}

// unsentError marks write failures that left the stream untouched:
// nothing reached the socket, so the session remains usable.
type unsentError struct{ err error }

func (e *unsentError) Error() string { return e.err.Error() }
func (e *unsentError) Unwrap() error { return e.err }

func isUnsentError(err error) bool {
	var target *unsentError
	return errors.As(err, &target)
}

// write encodes envelope and writes it as a single buffer so
// concurrent writers never interleave. A deadline on ctx becomes the
// socket write deadline.
//
// A partial write desynchronizes the CBOR stream and any error other
// than a deadline may mean the socket is broken; both are returned
// as plain errors and the caller invalidates the session.
func (s *Session) write(ctx context.Context, envelope ipc.Envelope) error {
	data, err := codec.Marshal(envelope)
	if err != nil {
		return &unsentError{fmt.Errorf("encoding %s envelope: %w", envelope.Kind, err)}
	}
	if len(data) > ipc.MaxEnvelopeSize {
		return &unsentError{fmt.Errorf("%s envelope is %d bytes, maximum is %d", envelope.Kind, len(data), ipc.MaxEnvelopeSize)}
	}
	if err := ctx.Err(); err != nil {
		return &unsentError{fmt.Errorf("%s envelope not written: %w", envelope.Kind, err)}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return &unsentError{fmt.Errorf("%s envelope not written: %w", envelope.Kind, err)}
	}
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	written, err := s.conn.Write(data)
	if err != nil {
		err = fmt.Errorf("writing %s envelope (%d of %d bytes): %w", envelope.Kind, written, len(data), err)
		if written == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
			return &unsentError{err}
		}
		return err
	}
	return nil
}

// envelopeLimiter caps how many bytes the decoder may pull from the
// socket for a single envelope. The decoder reads ahead, so the bound
// is exact only to within one read buffer.
type envelopeLimiter struct {
	reader    io.Reader
	remaining int64
}

var errEnvelopeTooLarge = errors.New("envelope exceeds maximum size")

func (l *envelopeLimiter) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, errEnvelopeTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.reader.Read(p)
	l.remaining -= int64(n)
	return n, err
}

// readLoop decodes envelopes until the connection fails. Replies
// resolve outstanding requests directly; requests and notifications
// go through the dispatch queue.
func (s *Session) readLoop() {
	defer close(s.readerDone)

	limiter := &envelopeLimiter{reader: s.conn}
	decoder := codec.NewDecoder(limiter)
	for {
		limiter.remaining = ipc.MaxEnvelopeSize
		var envelope ipc.Envelope
		if err := decoder.Decode(&envelope); err != nil {
			if s.isClosed() {
				return
			}
			if !netutil.IsExpectedCloseError(err) {
				err = fmt.Errorf("reading envelope: %w", err)
			}
			s.invalidate(err)
			return
		}
		if err := envelope.Validate(); err != nil {
			s.invalidate(fmt.Errorf("peer sent invalid envelope: %w", err))
			return
		}

		switch envelope.Kind {
		case ipc.KindReply:
			s.resolve(envelope.Token, replyResult{message: &Message{
				kind:  envelope.Kind,
				token: envelope.Token,
				body:  envelope.Body,
			}})
		case ipc.KindError:
			s.resolve(envelope.Token, replyResult{err: &RemoteError{Message: envelope.Error}})
		default:
			message := &Message{kind: envelope.Kind, token: envelope.Token, body: envelope.Body}
			if !s.queue.Submit(func() { s.deliver(message) }) {
				return
			}
		}
	}
}

// deliver runs on the session queue.
func (s *Session) deliver(message *Message) {
	if s.isClosed() {
		return
	}
	if s.handler == nil {
		if message.ExpectsReply() {
			_ = s.ReplyError(message, errors.New("no handler is installed for peer requests"))
		} else {
			s.logger.Debug("dropping notification with no handler installed")
		}
		return
	}
	s.runCallback("handler", func() { s.handler(s, message) })
}

// runCallback calls fn, converting a panic into session invalidation.
func (s *Session) runCallback(what string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("callback panicked, invalidating session",
				"callback", what,
				"panic", recovered,
			)
			s.invalidate(fmt.Errorf("%s panicked: %v", what, recovered))
		}
	}()
	fn()
}
