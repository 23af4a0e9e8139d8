// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trust implements the requirement language that decides which
// peers a listener accepts.
//
// A requirement is a boolean expression over the peer's kernel-verified
// credentials:
//
//	expr    := term { "or" term }
//	term    := factor { "and" factor }
//	factor  := "not" factor | "(" expr ")" | "any" | "same-user" | clause
//	clause  := key ( "=" | "!=" ) value
//	key     := "uid" | "gid" | "pid" | "exe" | "exe-dir" | "exe-hash"
//
// Values are bare words or double-quoted strings (with \" and \\
// escapes). uid, gid, and pid compare decimal integers. exe and exe-dir
// compare absolute paths against the peer's resolved executable and its
// parent directory. exe-hash compares the BLAKE3 digest of the image
// the peer is running, as 64 hex characters. same-user holds when the
// peer runs as the effective uid of the process that parsed the
// requirement. A peer whose binary was deleted after it started fails
// every exe and exe-dir clause, but exe-hash still sees its image.
//
// Nesting of "not" and parentheses is limited to 64 levels.
//
// Examples:
//
//	same-user
//	uid=0 or (same-user and exe-dir=/usr/libexec/localipc)
//	exe-hash=3b1e...c07a and not pid=1
//
// Values are validated when the requirement is parsed, and a
// [*ParseError] carries the byte offset of the offending token.
// Evaluation never errors: a peer whose executable cannot be read fails
// any requirement that inspects it.
package trust
