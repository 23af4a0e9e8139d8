// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes BLAKE3 digests of executable files.
//
// Trust requirements can pin a peer to an exact executable image with
// an exe-hash clause. The listener resolves the peer's executable from
// /proc, hashes it with [HashFile], and compares the result against the
// digest parsed by [ParseDigest] when the requirement was compiled.
// Digests render as 64 lowercase hex characters.
package binhash
