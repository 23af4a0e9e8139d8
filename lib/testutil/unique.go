// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix.N" with N increasing across the test binary.
// The result is a valid service identifier whenever prefix is.
//
//	name := testutil.UniqueID("svc.test") // "svc.test.1", "svc.test.2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s.%d", prefix, uniqueCounter.Add(1))
}
