// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sample

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bureau-foundation/localipc/lib/service"
	"github.com/bureau-foundation/localipc/lib/testutil"
)

const testTimeout = 5 * time.Second

type harness struct {
	daemon    *Daemon
	directory string
	prefix    string
	endpoints []service.Endpoint
}

func startDaemon(t *testing.T, requirement string) *harness {
	t.Helper()
	h := &harness{
		daemon:    NewDaemon(nil, nil),
		directory: testutil.SocketDir(t),
		prefix:    testutil.UniqueID("sample"),
	}
	endpoints, err := h.daemon.Listen(DefaultEndpoints(h.prefix, requirement), Options{Directory: h.directory})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	h.endpoints = endpoints
	t.Cleanup(func() {
		for _, endpoint := range endpoints {
			endpoint.Close()
		}
	})
	return h
}

func (h *harness) connect(t *testing.T, method string) *service.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	session, err := service.Connect(ctx, ServiceName(h.prefix, method), service.WithDirectory(h.directory))
	if err != nil {
		t.Fatalf("Connect(%s): %v", method, err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestDefaultEndpoints(t *testing.T) {
	endpoints := DefaultEndpoints("", "same-user")
	if len(endpoints) != len(Methods) {
		t.Fatalf("got %d endpoints, want %d", len(endpoints), len(Methods))
	}
	for i, endpoint := range endpoints {
		if endpoint.Method != Methods[i] {
			t.Errorf("endpoint %d method = %q, want %q", i, endpoint.Method, Methods[i])
		}
		if endpoint.Name != DefaultPrefix+"."+Methods[i] {
			t.Errorf("endpoint %d name = %q", i, endpoint.Name)
		}
		if endpoint.Requirement != "same-user" {
			t.Errorf("endpoint %d requirement = %q", i, endpoint.Requirement)
		}
	}
}

func TestMethodOf(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"localipc.sample.ping", "ping", false},
		{"custom.add", "add", false},
		{"echo", "echo", false},
		{"svc.unknown", "", true},
		{"svc.ping.extra", "", true},
	}
	for _, tt := range tests {
		got, err := MethodOf(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("MethodOf(%q) = %q, %v; want %q, err %v", tt.name, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestPing(t *testing.T) {
	h := startDaemon(t, "")
	session := h.connect(t, MethodPing)

	for range 3 {
		if err := Ping(testContext(t), session); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	}
	if session.Outstanding() != 0 {
		t.Errorf("Outstanding = %d, want 0", session.Outstanding())
	}
	if h.daemon.Served() != 3 {
		t.Errorf("Served = %d, want 3", h.daemon.Served())
	}
}

func TestAdd(t *testing.T) {
	h := startDaemon(t, "")
	session := h.connect(t, MethodAdd)

	sum, err := Add(testContext(t), session, 1, 2)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum != 3 {
		t.Errorf("1 + 2 = %d", sum)
	}

	sum, err = Add(testContext(t), session, -40, 2)
	if err != nil || sum != -38 {
		t.Errorf("-40 + 2 = %d, %v", sum, err)
	}

	_, err = Add(testContext(t), session, math.MaxInt64, 1)
	var remote *service.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("overflowing Add = %v, want *RemoteError", err)
	}

	// An error reply leaves the session usable.
	if sum, err := Add(testContext(t), session, 20, 22); err != nil || sum != 42 {
		t.Errorf("Add after error = %d, %v", sum, err)
	}
}

func TestPanic(t *testing.T) {
	h := startDaemon(t, "")

	survivor := h.connect(t, MethodPanic)
	if err := Panic(testContext(t), survivor, false); err != nil {
		t.Fatalf("Panic(false): %v", err)
	}

	doomed := h.connect(t, MethodPanic)
	err := Panic(testContext(t), doomed, true)
	if !errors.Is(err, service.ErrConnectionLost) {
		t.Fatalf("Panic(true) = %v, want ErrConnectionLost", err)
	}
	testutil.RequireClosed(t, doomed.Done(), testTimeout, "panicking session closes")

	// Other sessions on the same listener are unaffected.
	if err := Panic(testContext(t), survivor, false); err != nil {
		t.Errorf("Panic(false) after another session panicked: %v", err)
	}
}

func TestEcho(t *testing.T) {
	h := startDaemon(t, "")
	session := h.connect(t, MethodEcho)

	sent := map[string]any{"text": "round trip", "count": uint64(3)}
	got, err := Echo(testContext(t), session, sent)
	if err != nil {
		t.Fatalf("Echo: %v", err)
	}
	if len(got) != len(sent) || got["text"] != sent["text"] || got["count"] != sent["count"] {
		t.Errorf("Echo returned %#v, want %#v", got, sent)
	}
}

func TestWrongShapeGetsErrorReply(t *testing.T) {
	h := startDaemon(t, "")
	session := h.connect(t, MethodAdd)

	_, err := session.SendWithReply(testContext(t), map[string]any{"first_number": "one"})
	var remote *service.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("SendWithReply = %v, want *RemoteError", err)
	}
}

func TestRequirementApplied(t *testing.T) {
	h := startDaemon(t, "not same-user")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	session, err := service.Connect(ctx, ServiceName(h.prefix, MethodPing), service.WithDirectory(h.directory))
	if err != nil {
		// The listener may close the connection before Connect
		// finishes reading credentials.
		return
	}
	defer session.Close()

	err = Ping(testContext(t), session)
	if !errors.Is(err, service.ErrConnectionLost) && !errors.Is(err, service.ErrSendFailed) && !errors.Is(err, service.ErrSessionClosed) {
		t.Errorf("Ping to rejecting listener = %v, want a connection failure", err)
	}
	if h.daemon.Served() != 0 {
		t.Errorf("handler ran %d times for a rejected peer", h.daemon.Served())
	}
}

func TestListenClosesOnFailure(t *testing.T) {
	daemon := NewDaemon(nil, nil)
	directory := testutil.SocketDir(t)
	prefix := testutil.UniqueID("sample")

	endpoints := DefaultEndpoints(prefix, "")
	endpoints = append(endpoints, Endpoint{Name: prefix + ".bogus", Method: "bogus"})

	if _, err := daemon.Listen(endpoints, Options{Directory: directory}); err == nil {
		t.Fatal("Listen succeeded with an unknown method")
	}

	// Every listener created before the failure was closed, so the
	// names are free again.
	created, err := daemon.Listen(DefaultEndpoints(prefix, ""), Options{Directory: directory})
	if err != nil {
		t.Fatalf("Listen after failure: %v", err)
	}
	for _, endpoint := range created {
		endpoint.Close()
	}
}
