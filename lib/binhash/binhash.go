// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest is a BLAKE3-256 digest of an executable image.
type Digest [32]byte

// String returns the lowercase hex encoding used in trust requirements
// and log output.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Sum returns the digest of data.
func Sum(data []byte) Digest {
	return blake3.Sum256(data)
}

// HashFile computes the digest of the file at path, streaming its
// contents so memory use does not depend on file size.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// FormatDigest returns the hex encoding of digest.
func FormatDigest(digest Digest) string {
	return digest.String()
}

// ParseDigest parses a 64-character hex digest. Upper and lower case
// are both accepted.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(strings.ToLower(hexString))
	if err != nil {
		return digest, fmt.Errorf("parsing hash digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("hash digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
