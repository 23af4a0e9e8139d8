// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code holds a Clock field set to Real(). Tests substitute
// Fake(), whose time moves only when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go worker(c)               // worker calls c.After(time.Second)
//	c.WaitForTimers(1)         // worker has registered its wait
//	c.Advance(time.Second)     // fire it
//
// WaitForTimers closes the race between a goroutine registering a wait
// and the test advancing the clock past it.
package clock
