// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"os"
	"strings"
	"testing"

	"github.com/bureau-foundation/localipc/lib/binhash"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit = "abc1234"
	GitDirty = "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") {
		t.Errorf("Info() = %q, want dirty commit marker", got)
	}
	if Short() != Version {
		t.Errorf("Short() = %q, want %q", Short(), Version)
	}
}

func TestSelfDigest(t *testing.T) {
	digest, err := SelfDigest()
	if err != nil {
		t.Fatalf("SelfDigest: %v", err)
	}

	executable, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	want, err := binhash.HashFile(executable)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if digest != want.String() {
		t.Errorf("SelfDigest = %s, want %s", digest, want)
	}
	if !strings.Contains(Full(), digest) {
		t.Errorf("Full() does not include the executable digest")
	}
}
