// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// MaxNameLength bounds a service identifier.
const MaxNameLength = 96

// maxSocketPathLength is sizeof(sockaddr_un.sun_path) minus the
// terminating NUL.
const maxSocketPathLength = 107

// RuntimeDirectoryEnv overrides the default runtime directory.
const RuntimeDirectoryEnv = "LOCALIPC_RUNTIME_DIR"

// ValidateName checks a service identifier: 1 to MaxNameLength bytes
// of ASCII letters, digits, '.', '-', and '_', not starting with '.'.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("service name is empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("service name is %d bytes, maximum is %d", len(name), MaxNameLength)
	}
	if name[0] == '.' {
		return fmt.Errorf("service name %q starts with '.'", name)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_':
		default:
			return fmt.Errorf("service name %q contains invalid character %q at offset %d", name, c, i)
		}
	}
	return nil
}

// DefaultDirectory returns the runtime directory used when none is
// configured: $LOCALIPC_RUNTIME_DIR, else $XDG_RUNTIME_DIR/localipc,
// else /tmp/localipc-<uid>.
func DefaultDirectory() string {
	if directory := os.Getenv(RuntimeDirectoryEnv); directory != "" {
		return directory
	}
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, "localipc")
	}
	return filepath.Join(os.TempDir(), "localipc-"+strconv.Itoa(os.Getuid()))
}

// SocketPath returns the socket file for name inside directory. An
// empty directory means DefaultDirectory.
func SocketPath(directory, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if directory == "" {
		directory = DefaultDirectory()
	}
	path := filepath.Join(directory, name+".sock")
	if len(path) > maxSocketPathLength {
		return "", fmt.Errorf("socket path %s is %d bytes, maximum is %d", path, len(path), maxSocketPathLength)
	}
	return path, nil
}
