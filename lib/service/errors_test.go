// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	err := fmt.Errorf("calling ping: %w", newError(ErrConnectionLost, "send with reply", "svc.test", io.EOF))

	if !errors.Is(err, ErrConnectionLost) {
		t.Error("errors.Is(err, ErrConnectionLost) = false")
	}
	if !errors.Is(err, io.EOF) {
		t.Error("errors.Is(err, io.EOF) = false")
	}
	if errors.Is(err, ErrSendFailed) {
		t.Error("error matches an unrelated kind")
	}
	if want := "calling ping: send with reply svc.test: connection lost: EOF"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCanRetry(t *testing.T) {
	tests := []struct {
		kind error
		want bool
	}{
		{ErrCreationFailed, false},
		{ErrTrustRequirementRejected, false},
		{ErrActivationFailed, false},
		{ErrConnectionSetupFailed, true},
		{ErrConnectionLost, true},
		{ErrSendFailed, false},
		{ErrSessionClosed, false},
	}
	for _, test := range tests {
		t.Run(test.kind.Error(), func(t *testing.T) {
			err := newError(test.kind, "op", "", nil)
			if got := CanRetry(err); got != test.want {
				t.Errorf("CanRetry = %v, want %v", got, test.want)
			}
		})
	}
	if CanRetry(errors.New("plain")) {
		t.Error("CanRetry(plain error) = true")
	}
	if CanRetry(&RemoteError{Message: "nope"}) {
		t.Error("CanRetry(RemoteError) = true")
	}
}
