// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is against any error this package
// returns.
var (
	// ErrCreationFailed: the listener could not be created or bound.
	ErrCreationFailed = errors.New("listener creation failed")

	// ErrTrustRequirementRejected: the trust requirement could not be
	// installed. The listener was never activated.
	ErrTrustRequirementRejected = errors.New("trust requirement rejected")

	// ErrActivationFailed: the bound listener could not start
	// accepting connections.
	ErrActivationFailed = errors.New("listener activation failed")

	// ErrConnectionSetupFailed: a client could not reach the named
	// service.
	ErrConnectionSetupFailed = errors.New("connection setup failed")

	// ErrConnectionLost: the session was invalidated while a request
	// was awaiting its reply.
	ErrConnectionLost = errors.New("connection lost")

	// ErrSendFailed: a message could not be encoded or transmitted.
	ErrSendFailed = errors.New("send failed")

	// ErrSessionClosed: the session was already invalidated. Nothing
	// was transmitted.
	ErrSessionClosed = errors.New("session closed")
)

// Error is the concrete error type returned by this package.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error

	// Op names the operation that failed ("create", "connect",
	// "send", "send with reply", "reply").
	Op string

	// Name is the service identifier involved.
	Name string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	message := e.Op
	if e.Name != "" {
		message += " " + e.Name
	}
	message += ": " + e.Kind.Error()
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is and
// errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// CanRetry reports whether repeating the operation, possibly on a
// fresh session, might succeed.
func (e *Error) CanRetry() bool {
	return e.Kind == ErrConnectionSetupFailed || e.Kind == ErrConnectionLost
}

// CanRetry reports whether err is a retryable service error.
func CanRetry(err error) bool {
	var serviceError *Error
	return errors.As(err, &serviceError) && serviceError.CanRetry()
}

func newError(kind error, op, name string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: cause}
}

// RemoteError is the failure a peer's handler reported with
// ReplyError.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote handler error: %s", e.Message)
}
