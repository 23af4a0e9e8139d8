// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"sync/atomic"

	"github.com/bureau-foundation/localipc/lib/codec"
	"github.com/bureau-foundation/localipc/lib/ipc"
)

// Message is one inbound message: a request or notification delivered
// to a Handler, or the reply returned by SendWithReply.
type Message struct {
	kind  ipc.Kind
	token uint64
	body  codec.RawMessage

	// replied guards against answering a request twice.
	replied atomic.Bool
}

// Kind returns the message variant.
func (m *Message) Kind() ipc.Kind { return m.kind }

// Token returns the correlation token, zero for notifications.
func (m *Message) Token() uint64 { return m.token }

// ExpectsReply reports whether the sender is waiting for Reply or
// ReplyError.
func (m *Message) ExpectsReply() bool { return m.kind == ipc.KindRequest }

// Body returns the raw CBOR map. The caller must not modify it.
func (m *Message) Body() []byte { return m.body }

// Decode unmarshals the body into v.
func (m *Message) Decode(v any) error {
	if len(m.body) == 0 {
		return fmt.Errorf("decoding %s body: message has no body", m.kind)
	}
	if err := codec.Unmarshal(m.body, v); err != nil {
		return fmt.Errorf("decoding %s body: %w", m.kind, err)
	}
	return nil
}

// String renders the message for logs using CBOR diagnostic notation.
func (m *Message) String() string {
	body := "{}"
	if len(m.body) > 0 {
		if diagnostic, err := codec.Diagnose(m.body); err == nil {
			body = diagnostic
		}
	}
	if m.token == 0 {
		return fmt.Sprintf("%s %s", m.kind, body)
	}
	return fmt.Sprintf("%s #%d %s", m.kind, m.token, body)
}

// Decode unmarshals a message body into a new T.
func Decode[T any](message *Message) (T, error) {
	var value T
	err := message.Decode(&value)
	return value, err
}
