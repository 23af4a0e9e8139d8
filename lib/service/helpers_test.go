// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/localipc/lib/testutil"
)

// testTimeout bounds every wait in this package's tests.
const testTimeout = 5 * time.Second

type testRequest struct {
	Op    string `cbor:"op"`
	Value int    `cbor:"value,omitempty"`
	Text  string `cbor:"text,omitempty"`
}

type testReply struct {
	Value int    `cbor:"value,omitempty"`
	Text  string `cbor:"text,omitempty"`
	Pong  bool   `cbor:"pong,omitempty"`
}

// testApp is the application context threaded through test handlers.
type testApp struct {
	label string
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// startListener fills in a fresh directory, a name, and a logger where
// the config leaves them empty, and closes the listener at cleanup.
func startListener[C any](t *testing.T, config ListenerConfig[C]) *Listener[C] {
	t.Helper()
	if config.Directory == "" {
		config.Directory = testutil.SocketDir(t)
	}
	if config.Name == "" {
		config.Name = "svc.test"
	}
	if config.Logger == nil {
		config.Logger = testLogger()
	}
	listener, err := NewListener(config)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return listener
}

// connectTo opens a client session to listener and closes it at
// cleanup.
func connectTo(t *testing.T, endpoint Endpoint, options ...ConnectOption) *Session {
	t.Helper()
	options = append([]ConnectOption{
		WithDirectory(filepath.Dir(endpoint.SocketPath())),
		WithLogger(testLogger()),
	}, options...)
	session, err := Connect(testContext(t), endpoint.Name(), options...)
	if err != nil {
		t.Fatalf("Connect(%s): %v", endpoint.Name(), err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// decodeRequest decodes a handler's message, reporting failures
// through t (safe from the session goroutine).
func decodeRequest(t *testing.T, message *Message) testRequest {
	request, err := Decode[testRequest](message)
	if err != nil {
		t.Errorf("decoding request: %v", err)
	}
	return request
}

// reply answers message, reporting failures through t.
func reply(t *testing.T, session *Session, message *Message, value any) {
	if err := session.Reply(message, value); err != nil {
		t.Errorf("Reply: %v", err)
	}
}
