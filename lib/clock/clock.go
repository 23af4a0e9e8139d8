// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the slice of the time package that localipc depends on.
// Listeners and sessions stamp connection times with Now; peer
// credential lookup backs off between /proc retries with After.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}
