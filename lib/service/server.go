// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bureau-foundation/localipc/lib/peercred"
)

// Endpoint is the part of a Listener that Server manages. Every
// *Listener[C] satisfies it regardless of C.
type Endpoint interface {
	Name() string
	SocketPath() string
	Done() <-chan struct{}
	Close() error
}

// Server groups the listeners of one process so they can be run and
// shut down together.
type Server struct {
	logger    *slog.Logger
	endpoints []Endpoint
}

// NewServer returns a server over already-created endpoints.
func NewServer(logger *slog.Logger, endpoints ...Endpoint) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{logger: logger, endpoints: endpoints}
}

// Endpoints returns the managed endpoints in registration order.
func (s *Server) Endpoints() []Endpoint { return s.endpoints }

// Run blocks until ctx is cancelled or every endpoint has closed, then
// closes whatever is still open. It returns the joined Close errors.
func (s *Server) Run(ctx context.Context) error {
	allDone := make(chan struct{})
	go func() {
		for _, endpoint := range s.endpoints {
			<-endpoint.Done()
		}
		close(allDone)
	}()

	for _, endpoint := range s.endpoints {
		s.logger.Info("serving", "service", endpoint.Name(), "path", endpoint.SocketPath())
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "endpoints", len(s.endpoints))
	case <-allDone:
	}
	return s.Close()
}

// Close closes every endpoint and joins their errors.
func (s *Server) Close() error {
	var errs []error
	for _, endpoint := range s.endpoints {
		if err := endpoint.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsPeerCredentialAvailable reports whether listeners on this platform
// can enforce trust requirements.
func IsPeerCredentialAvailable() bool {
	return peercred.Available()
}
