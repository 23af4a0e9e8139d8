// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Localipc-daemon serves the sample ping, add, panic, and echo
// listeners over local Unix sockets until SIGINT or SIGTERM.
//
// Listener names, trust requirements, the runtime directory, socket
// permissions, and logging come from the YAML file named by --config
// or LOCALIPC_CONFIG. With no listeners configured, the daemon
// registers "<prefix>.ping", "<prefix>.add", "<prefix>.panic", and
// "<prefix>.echo". --requirement replaces every configured trust
// requirement.
package main
