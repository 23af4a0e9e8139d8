// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR envelope that carries every message on a
// localipc connection. Both sides of a connection (listener-accepted
// sessions and client sessions) import this package so the wire type is
// defined once rather than mirrored.
//
// A connection is a CBOR sequence of [Envelope] values. The envelope
// distinguishes requests, replies, error replies, and notifications,
// and carries the correlation token that links a reply to the request
// it answers. Message bodies are opaque CBOR maps; this package never
// interprets them.
package ipc
