// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/localipc/lib/codec"
)

// MaxEnvelopeSize bounds a single encoded envelope. Larger values are
// rejected by the reader and the connection is dropped.
const MaxEnvelopeSize = 16 << 20

// Kind identifies what an envelope is for. The zero value is invalid
// so a decoded envelope missing its kind field is caught.
type Kind uint8

const (
	// KindRequest expects exactly one KindReply or KindError carrying
	// the same token.
	KindRequest Kind = iota + 1

	// KindReply answers a request. Body holds the reply value.
	KindReply

	// KindError answers a request with a failure. Error holds the
	// peer handler's message; Body is empty.
	KindError

	// KindNotification is fire-and-forget. Token is zero.
	KindNotification
)

// String returns the lowercase name used in logs.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindReply:
		return "reply"
	case KindError:
		return "error"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsResponse reports whether k resolves an outstanding request.
func (k Kind) IsResponse() bool {
	return k == KindReply || k == KindError
}

// Envelope is one message on the wire.
type Envelope struct {
	// Kind is the message variant.
	Kind Kind `cbor:"kind"`

	// Token correlates requests with their responses. Requests carry
	// a token unique within the sending session; responses echo it.
	// Notifications carry zero.
	Token uint64 `cbor:"token,omitempty"`

	// Body is the encoded application message, always a CBOR map
	// when present.
	Body codec.RawMessage `cbor:"body,omitempty"`

	// Error is the failure message for KindError envelopes.
	Error string `cbor:"error,omitempty"`
}

// Errors returned by Validate.
var (
	ErrUnknownKind     = errors.New("ipc: unknown envelope kind")
	ErrMissingToken    = errors.New("ipc: envelope requires a correlation token")
	ErrUnexpectedToken = errors.New("ipc: notification must not carry a token")
	ErrBodyNotMap      = errors.New("ipc: envelope body is not a CBOR map")
)

// Validate checks the structural invariants of a decoded envelope. A
// peer that sends an invalid envelope is misbehaving; the reader drops
// its connection.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindRequest, KindReply, KindError:
		if e.Token == 0 {
			return fmt.Errorf("%w: %s", ErrMissingToken, e.Kind)
		}
	case KindNotification:
		if e.Token != 0 {
			return ErrUnexpectedToken
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(e.Kind))
	}
	if len(e.Body) > 0 && !codec.IsMap(e.Body) {
		return fmt.Errorf("%w (%s token %d)", ErrBodyNotMap, e.Kind, e.Token)
	}
	return nil
}
