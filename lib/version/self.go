// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/localipc/lib/binhash"
)

// SelfDigest returns the hex BLAKE3 digest of the running executable,
// in the form an exe-hash requirement clause expects.
func SelfDigest() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating running executable: %w", err)
	}
	digest, err := binhash.HashFile(executable)
	if err != nil {
		return "", err
	}
	return digest.String(), nil
}
