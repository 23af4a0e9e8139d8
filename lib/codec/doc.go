// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every localipc endpoint.
//
// Message bodies and the envelopes that carry them are CBOR. A stream
// of envelopes on a Unix socket is a CBOR sequence (RFC 8742): each
// value is self-delimiting, so no length prefix or delimiter is needed
// between them. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The same logical message always produces
// identical bytes, which keeps echo round trips byte-exact.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Message bodies must be CBOR maps. [MarshalMap] enforces that before
// anything reaches the wire, mirroring the dictionary-only payload rule
// of platform IPC facilities.
//
// # Struct Tags
//
// Wire types use `cbor` tags. Application message types may use either
// `cbor` or `json` tags: fxamacker/cbor reads `json` tags as a
// fallback when `cbor` tags are absent. Never put both on one field.
package codec
