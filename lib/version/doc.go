// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build information for localipc binaries.
//
// Four variables are injected at build time via -ldflags -X:
// [GitCommit], [GitDirty], [BuildTime], and [Version]. They default to
// "unknown" / "0.1.0-dev" for development builds and tests.
//
// [SelfDigest] reports the BLAKE3 digest of the running executable.
// The daemon prints it with --version so operators can copy it into an
// exe-hash trust requirement on the service side.
package version
