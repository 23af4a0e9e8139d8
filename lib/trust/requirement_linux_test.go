// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package trust

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/localipc/lib/binhash"
	"github.com/bureau-foundation/localipc/lib/peercred"
)

// TestDeletedExecutableCannotBeImpersonated runs a copy of sleep,
// deletes it, and plants different content at the path the kernel
// reports for the deleted binary. Path clauses must reject the peer and
// exe-hash must see the bytes that are actually running.
func TestDeletedExecutableCannotBeImpersonated(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	original, err := os.ReadFile(sleep)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	directory := t.TempDir()
	binary := filepath.Join(directory, "peer-tool")
	if err := os.WriteFile(binary, original, 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cmd := exec.Command(binary, "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting %s: %v", binary, err)
	}
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	if err := os.Remove(binary); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	substitute := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(binary+" (deleted)", substitute, 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	credentials, err := peercred.FromPID(int32(cmd.Process.Pid), peercred.Options{})
	if err != nil {
		t.Fatalf("FromPID: %v", err)
	}
	if !errors.Is(credentials.ExecutableErr, peercred.ErrExecutableDeleted) {
		t.Fatalf("ExecutableErr = %v, want ErrExecutableDeleted", credentials.ExecutableErr)
	}

	rejected := []string{
		"exe-hash=" + binhash.Sum(substitute).String(),
		`exe="` + binary + ` (deleted)"`,
		"exe-dir=" + directory,
		"not exe=/usr/bin/other",
	}
	for _, expression := range rejected {
		if mustParseAs(t, expression).Evaluate(credentials) {
			t.Errorf("%s accepted a peer running a deleted binary", expression)
		}
	}

	running := mustParseAs(t, "exe-hash="+binhash.Sum(original).String())
	if err := running.Check(credentials); err != nil {
		t.Errorf("exe-hash of the running image: %v", err)
	}
}
