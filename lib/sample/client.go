// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sample

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/localipc/lib/service"
)

// Ping sends a greeting and requires "pong" back.
func Ping(ctx context.Context, session *service.Session) error {
	reply, err := service.SendWaitReply[Greeting](ctx, session, Greeting{Message: "hello"})
	if err != nil {
		return err
	}
	if reply.Message != "pong" {
		return fmt.Errorf("expected pong, got %q", reply.Message)
	}
	return nil
}

// Add asks the peer for first + second.
func Add(ctx context.Context, session *service.Session, first, second int64) (int64, error) {
	reply, err := service.SendWaitReply[AddReply](ctx, session, AddRequest{
		FirstNumber:  first,
		SecondNumber: second,
	})
	if err != nil {
		return 0, err
	}
	return reply.Result, nil
}

// Panic asks the peer to panic (or not). A surviving peer must answer
// with Survived.
func Panic(ctx context.Context, session *service.Session, shouldPanic bool) error {
	reply, err := service.SendWaitReply[PanicReply](ctx, session, PanicRequest{Panic: shouldPanic})
	if err != nil {
		return err
	}
	if reply.Message != Survived {
		return fmt.Errorf("expected %q, got %q", Survived, reply.Message)
	}
	return nil
}

// Echo sends body and returns what the peer sent back.
func Echo(ctx context.Context, session *service.Session, body map[string]any) (map[string]any, error) {
	return service.SendWaitReply[map[string]any](ctx, session, body)
}
