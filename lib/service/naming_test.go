// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"svc.test", true},
		{"com.example.Agent_2-beta", true},
		{strings.Repeat("a", MaxNameLength), true},
		{"", false},
		{".hidden", false},
		{strings.Repeat("a", MaxNameLength+1), false},
		{"has space", false},
		{"slash/name", false},
		{"nul\x00", false},
		{"ünicode", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ValidateName(test.name)
			if test.valid && err != nil {
				t.Errorf("ValidateName: %v", err)
			}
			if !test.valid && err == nil {
				t.Error("ValidateName accepted an invalid name")
			}
		})
	}
}

func TestSocketPath(t *testing.T) {
	path, err := SocketPath("/run/user/1000/localipc", "svc.test")
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	if path != "/run/user/1000/localipc/svc.test.sock" {
		t.Errorf("SocketPath = %q", path)
	}

	if _, err := SocketPath("/tmp/"+strings.Repeat("d", 100), "svc.test"); err == nil {
		t.Error("SocketPath accepted a path longer than sun_path")
	}
	if _, err := SocketPath("/tmp", "../escape"); err == nil {
		t.Error("SocketPath accepted an invalid name")
	}
}

func TestDefaultDirectory(t *testing.T) {
	t.Setenv(RuntimeDirectoryEnv, "/srv/ipc")
	if got := DefaultDirectory(); got != "/srv/ipc" {
		t.Errorf("with %s: DefaultDirectory = %q", RuntimeDirectoryEnv, got)
	}

	t.Setenv(RuntimeDirectoryEnv, "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := DefaultDirectory(); got != filepath.Join("/run/user/1000", "localipc") {
		t.Errorf("with XDG_RUNTIME_DIR: DefaultDirectory = %q", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	if got := DefaultDirectory(); !strings.HasPrefix(filepath.Base(got), "localipc-") {
		t.Errorf("fallback DefaultDirectory = %q", got)
	}
}
