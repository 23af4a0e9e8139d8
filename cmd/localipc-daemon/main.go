// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/localipc/lib/clock"
	"github.com/bureau-foundation/localipc/lib/config"
	"github.com/bureau-foundation/localipc/lib/process"
	"github.com/bureau-foundation/localipc/lib/sample"
	"github.com/bureau-foundation/localipc/lib/service"
	"github.com/bureau-foundation/localipc/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath  string
		requirement string
		runtimeDir  string
		prefix      string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("localipc-daemon", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&requirement, "requirement", "", "trust requirement enforced on every listener, replacing the configured ones")
	flagSet.StringVar(&runtimeDir, "runtime-dir", "", "directory holding the listener sockets (overrides runtime_directory)")
	flagSet.StringVar(&prefix, "prefix", sample.DefaultPrefix, "listener name prefix when the config lists no listeners")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if showVersion {
		fmt.Fprintf(stdout, "localipc-daemon %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if runtimeDir != "" {
		cfg.RuntimeDirectory = runtimeDir
	}
	if flagSet.Changed("requirement") {
		cfg.DefaultRequirement = requirement
		for i := range cfg.Listeners {
			cfg.Listeners[i].Requirement = requirement
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := cfg.NewLogger(stderr)
	if err != nil {
		return err
	}
	mode, err := cfg.SocketMode()
	if err != nil {
		return err
	}
	endpoints, err := buildEndpoints(cfg, prefix)
	if err != nil {
		return err
	}

	daemon := sample.NewDaemon(logger, clock.Real())
	listeners, err := daemon.Listen(endpoints, sample.Options{
		Directory:         cfg.RuntimeDirectory,
		SocketPermissions: mode,
	})
	if err != nil {
		return err
	}

	logger.Info("localipc daemon running",
		"version", version.Info(),
		"environment", cfg.Environment,
		"listeners", len(listeners),
		"peer_credentials", service.IsPeerCredentialAvailable(),
	)

	server := service.NewServer(logger, listeners...)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("localipc daemon stopped", "messages", daemon.Served())
	return nil
}

// loadConfig reads path, else $LOCALIPC_CONFIG, else uses the
// defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvVar) != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// buildEndpoints maps configured listeners onto sample methods by
// their last name component, or registers every method under prefix
// when none are configured.
func buildEndpoints(cfg *config.Config, prefix string) ([]sample.Endpoint, error) {
	if len(cfg.Listeners) == 0 {
		return sample.DefaultEndpoints(prefix, cfg.DefaultRequirement), nil
	}
	endpoints := make([]sample.Endpoint, 0, len(cfg.Listeners))
	for _, listener := range cfg.Listeners {
		method, err := sample.MethodOf(listener.Name)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, sample.Endpoint{
			Name:        listener.Name,
			Method:      method,
			Requirement: listener.Requirement,
		})
	}
	return endpoints, nil
}
