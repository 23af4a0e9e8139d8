// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the localipc
// daemon.
//
// Configuration is loaded from a single file specified by either the
// LOCALIPC_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production is stricter by default:
// listeners that name no trust requirement get "same-user".
//
// ${VAR} and ${VAR:-default} patterns in runtime_directory are expanded
// after loading. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- runtime directory, socket permissions, log settings, listeners
//   - [Default] -- the base values a file is merged into
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config
