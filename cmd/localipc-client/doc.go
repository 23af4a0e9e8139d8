// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Localipc-client calls one method on a running localipc-daemon and
// prints the result. The panic method first checks that a panicking
// handler surfaces as a lost connection, then that a fresh session
// still works.
package main
