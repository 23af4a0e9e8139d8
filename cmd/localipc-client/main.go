// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/localipc/lib/codec"
	"github.com/bureau-foundation/localipc/lib/process"
	"github.com/bureau-foundation/localipc/lib/sample"
	"github.com/bureau-foundation/localipc/lib/service"
	"github.com/bureau-foundation/localipc/lib/trust"
	"github.com/bureau-foundation/localipc/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

type client struct {
	prefix      string
	runtimeDir  string
	requirement *trust.Requirement
	logger      *slog.Logger
	stdout      io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		method            string
		runtimeDir        string
		prefix            string
		serverRequirement string
		timeout           time.Duration
		first, second     int64
		text              string
		verbose           bool
		showVersion       bool
	)

	flagSet := pflag.NewFlagSet("localipc-client", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&method, "method", "", "method to call: "+strings.Join(sample.Methods, ", "))
	flagSet.StringVar(&runtimeDir, "runtime-dir", "", "directory holding the listener sockets (default: $"+service.RuntimeDirectoryEnv+" or the user runtime directory)")
	flagSet.StringVar(&prefix, "prefix", sample.DefaultPrefix, "listener name prefix")
	flagSet.StringVar(&serverRequirement, "server-requirement", "", "trust requirement the daemon process must satisfy")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "deadline for the whole call")
	flagSet.Int64Var(&first, "first", 1, "first addend for add")
	flagSet.Int64Var(&second, "second", 2, "second addend for add")
	flagSet.StringVar(&text, "text", "hello", "message for echo")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log session events to stderr")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if showVersion {
		fmt.Fprintf(stdout, "localipc-client %s\n", version.Full())
		return nil
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	c := &client{
		prefix:     prefix,
		runtimeDir: runtimeDir,
		logger:     slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		stdout:     stdout,
	}
	if serverRequirement != "" {
		requirement, err := trust.Parse(serverRequirement)
		if err != nil {
			return fmt.Errorf("--server-requirement: %w", err)
		}
		c.requirement = requirement
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch method {
	case sample.MethodPing:
		return c.ping(ctx)
	case sample.MethodAdd:
		return c.add(ctx, first, second)
	case sample.MethodPanic:
		return c.panicRecovery(ctx)
	case sample.MethodEcho:
		return c.echo(ctx, text)
	case "":
		return fmt.Errorf("--method is required (%s)", strings.Join(sample.Methods, ", "))
	default:
		return fmt.Errorf("invalid --method %q", method)
	}
}

func (c *client) connect(ctx context.Context, method string) (*service.Session, error) {
	options := []service.ConnectOption{
		service.WithDirectory(c.runtimeDir),
		service.WithLogger(c.logger),
	}
	if c.requirement != nil {
		options = append(options, service.WithServerRequirement(c.requirement))
	}
	return service.Connect(ctx, sample.ServiceName(c.prefix, method), options...)
}

func (c *client) ping(ctx context.Context) error {
	session, err := c.connect(ctx, sample.MethodPing)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := sample.Ping(ctx, session); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "ping succeeded")
	return nil
}

func (c *client) add(ctx context.Context, first, second int64) error {
	session, err := c.connect(ctx, sample.MethodAdd)
	if err != nil {
		return err
	}
	defer session.Close()

	sum, err := sample.Add(ctx, session, first, second)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, sum)
	return nil
}

// panicRecovery asks the daemon to panic on one session, expects
// that session to be lost, then checks a fresh session is served.
func (c *client) panicRecovery(ctx context.Context) error {
	doomed, err := c.connect(ctx, sample.MethodPanic)
	if err != nil {
		return err
	}
	err = sample.Panic(ctx, doomed, true)
	doomed.Close()
	if err == nil {
		return errors.New("expected the panicking handler to drop the session")
	}
	if !errors.Is(err, service.ErrConnectionLost) {
		return fmt.Errorf("expected a lost connection, got: %w", err)
	}
	fmt.Fprintf(c.stdout, "panicking session failed as expected: %v\n", err)

	session, err := c.connect(ctx, sample.MethodPanic)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := sample.Panic(ctx, session, false); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, sample.Survived)
	return nil
}

func (c *client) echo(ctx context.Context, text string) error {
	session, err := c.connect(ctx, sample.MethodEcho)
	if err != nil {
		return err
	}
	defer session.Close()

	reply, err := sample.Echo(ctx, session, map[string]any{"message": text})
	if err != nil {
		return err
	}
	data, err := codec.Marshal(reply)
	if err != nil {
		return err
	}
	diagnostic, err := codec.Diagnose(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, diagnostic)
	return nil
}
