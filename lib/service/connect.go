// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/localipc/lib/clock"
	"github.com/bureau-foundation/localipc/lib/peercred"
	"github.com/bureau-foundation/localipc/lib/trust"
)

// dialTimeout bounds the connect phase when ctx has no earlier
// deadline.
const dialTimeout = 5 * time.Second

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig)

type connectConfig struct {
	directory   string
	logger      *slog.Logger
	clock       clock.Clock
	handler     func(*Session, *Message)
	requirement *trust.Requirement
}

// WithDirectory looks for the service socket in directory instead of
// DefaultDirectory().
func WithDirectory(directory string) ConnectOption {
	return func(c *connectConfig) { c.directory = directory }
}

// WithLogger sets the session logger. The default discards.
func WithLogger(logger *slog.Logger) ConnectOption {
	return func(c *connectConfig) { c.logger = logger }
}

// WithClock sets the session clock.
func WithClock(c clock.Clock) ConnectOption {
	return func(config *connectConfig) { config.clock = c }
}

// WithHandler installs a handler for requests and notifications the
// service sends to the client. Without one, service requests are
// answered with an error and notifications are dropped.
func WithHandler(handler func(session *Session, message *Message)) ConnectOption {
	return func(c *connectConfig) { c.handler = handler }
}

// WithServerRequirement makes the client verify the listening process
// against requirement before the session is returned, so a process
// squatting on the service name is refused.
func WithServerRequirement(requirement *trust.Requirement) ConnectOption {
	return func(c *connectConfig) { c.requirement = requirement }
}

// Connect opens a client session to the service named name. Every
// failure is an ErrConnectionSetupFailed, which CanRetry reports as
// retryable.
func Connect(ctx context.Context, name string, options ...ConnectOption) (*Session, error) {
	config := connectConfig{
		logger: slog.New(slog.DiscardHandler),
		clock:  clock.Real(),
	}
	for _, option := range options {
		option(&config)
	}
	if config.logger == nil {
		config.logger = slog.New(slog.DiscardHandler)
	}

	setupFailed := func(err error) (*Session, error) {
		return nil, newError(ErrConnectionSetupFailed, "connect", name, err)
	}

	path, err := SocketPath(config.directory, name)
	if err != nil {
		return setupFailed(err)
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return setupFailed(err)
	}
	unixConn := conn.(*net.UnixConn)

	credentials, credentialErr := peercred.FromConn(unixConn, peercred.Options{Clock: config.clock, Logger: config.logger})
	if config.requirement != nil {
		if credentialErr == nil {
			credentialErr = config.requirement.Check(credentials)
		}
		if credentialErr != nil {
			unixConn.Close()
			return setupFailed(fmt.Errorf("verifying server: %w", credentialErr))
		}
	}

	session := newSession(unixConn, sessionConfig{
		name:    name,
		role:    RoleClient,
		peer:    credentials,
		logger:  config.logger,
		clock:   config.clock,
		handler: config.handler,
	})
	session.start()
	session.logger.Debug("connected", "path", path, "peer", credentials)
	return session, nil
}

// SendWaitReply sends in as a request on session and decodes the reply
// into an Out.
func SendWaitReply[Out any](ctx context.Context, session *Session, in any) (Out, error) {
	var zero Out
	reply, err := session.SendWithReply(ctx, in)
	if err != nil {
		return zero, err
	}
	return Decode[Out](reply)
}
