// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sample

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/bureau-foundation/localipc/lib/clock"
	"github.com/bureau-foundation/localipc/lib/service"
)

// Methods served by the sample daemon. Each is one listener named
// "<prefix>.<method>".
const (
	MethodPing  = "ping"
	MethodAdd   = "add"
	MethodPanic = "panic"
	MethodEcho  = "echo"
)

// Methods lists every method in registration order.
var Methods = []string{MethodPing, MethodAdd, MethodPanic, MethodEcho}

// DefaultPrefix names the sample listeners when no prefix is given.
const DefaultPrefix = "localipc.sample"

// Greeting is the ping request and reply.
type Greeting struct {
	Message string `cbor:"message"`
}

// AddRequest asks for FirstNumber + SecondNumber.
type AddRequest struct {
	FirstNumber  int64 `cbor:"first_number"`
	SecondNumber int64 `cbor:"second_number"`
}

// AddReply carries the sum.
type AddReply struct {
	Result int64 `cbor:"result"`
}

// PanicRequest makes the handler panic when Panic is set.
type PanicRequest struct {
	Panic bool `cbor:"panic"`
}

// PanicReply is returned when the handler survives.
type PanicReply struct {
	Message string `cbor:"message"`
}

// Survived is the PanicReply message when no panic was requested.
const Survived = "didn't panic"

// Endpoint binds one listener name to the method it serves.
type Endpoint struct {
	Name        string
	Method      string
	Requirement string
}

// DefaultEndpoints returns one endpoint per method under prefix, all
// with requirement.
func DefaultEndpoints(prefix, requirement string) []Endpoint {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	endpoints := make([]Endpoint, 0, len(Methods))
	for _, method := range Methods {
		endpoints = append(endpoints, Endpoint{
			Name:        ServiceName(prefix, method),
			Method:      method,
			Requirement: requirement,
		})
	}
	return endpoints
}

// ServiceName returns the listener name for method under prefix.
func ServiceName(prefix, method string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + method
}

// MethodOf returns the method a listener name serves: the part after
// the last '.'.
func MethodOf(name string) (string, error) {
	index := strings.LastIndexByte(name, '.')
	method := name[index+1:]
	if !slices.Contains(Methods, method) {
		return "", fmt.Errorf("listener %q does not end in a known method (%s)", name, strings.Join(Methods, ", "))
	}
	return method, nil
}

// Daemon is the application context shared by the sample handlers.
type Daemon struct {
	logger *slog.Logger
	clock  clock.Clock

	served atomic.Uint64
}

// NewDaemon returns a daemon context. A nil logger discards output and
// a nil clock is the real clock.
func NewDaemon(logger *slog.Logger, c clock.Clock) *Daemon {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if c == nil {
		c = clock.Real()
	}
	return &Daemon{logger: logger, clock: c}
}

// Served counts messages delivered to any handler.
func (d *Daemon) Served() uint64 { return d.served.Load() }

// Handler returns the handler for method.
func (d *Daemon) Handler(method string) (service.Handler[*Daemon], error) {
	switch method {
	case MethodPing:
		return handlePing, nil
	case MethodAdd:
		return handleAdd, nil
	case MethodPanic:
		return handlePanic, nil
	case MethodEcho:
		return handleEcho, nil
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

// Options configures Listen.
type Options struct {
	Directory         string
	SocketPermissions fs.FileMode
}

// Listen creates a listener for each endpoint. On failure the
// listeners already created are closed.
func (d *Daemon) Listen(endpoints []Endpoint, options Options) ([]service.Endpoint, error) {
	var created []service.Endpoint
	for _, endpoint := range endpoints {
		listener, err := d.listen(endpoint, options)
		if err != nil {
			errs := []error{fmt.Errorf("listener %s: %w", endpoint.Name, err)}
			for _, previous := range created {
				errs = append(errs, previous.Close())
			}
			return nil, errors.Join(errs...)
		}
		created = append(created, listener)
	}
	return created, nil
}

func (d *Daemon) listen(endpoint Endpoint, options Options) (*service.Listener[*Daemon], error) {
	handler, err := d.Handler(endpoint.Method)
	if err != nil {
		return nil, err
	}
	return service.NewListener(service.ListenerConfig[*Daemon]{
		Name:              endpoint.Name,
		Requirement:       endpoint.Requirement,
		Context:           d,
		Handler:           handler,
		OnAccept:          onAccept,
		Directory:         options.Directory,
		SocketPermissions: options.SocketPermissions,
		Logger:            d.logger,
		Clock:             d.clock,
	})
}

func onAccept(d *Daemon, session *service.Session) {
	d.logger.Info("peer accepted",
		"service", session.Name(),
		"session", session.ID(),
		"peer", session.Peer(),
	)
}

func handlePing(d *Daemon, session *service.Session, message *service.Message) {
	d.served.Add(1)
	request, err := service.Decode[Greeting](message)
	if err != nil {
		d.replyError(session, message, err)
		return
	}
	d.logger.Debug("ping", "message", request.Message, "session", session.ID())
	d.reply(session, message, Greeting{Message: "pong"})
}

func handleAdd(d *Daemon, session *service.Session, message *service.Message) {
	d.served.Add(1)
	request, err := service.Decode[AddRequest](message)
	if err != nil {
		d.replyError(session, message, err)
		return
	}
	sum := request.FirstNumber + request.SecondNumber
	if (request.SecondNumber > 0 && sum < request.FirstNumber) ||
		(request.SecondNumber < 0 && sum > request.FirstNumber) {
		d.replyError(session, message, fmt.Errorf("%d + %d overflows int64", request.FirstNumber, request.SecondNumber))
		return
	}
	d.reply(session, message, AddReply{Result: sum})
}

func handlePanic(d *Daemon, session *service.Session, message *service.Message) {
	d.served.Add(1)
	request, err := service.Decode[PanicRequest](message)
	if err != nil {
		d.replyError(session, message, err)
		return
	}
	if request.Panic {
		panic("panic requested by peer")
	}
	d.reply(session, message, PanicReply{Message: Survived})
}

func handleEcho(d *Daemon, session *service.Session, message *service.Message) {
	d.served.Add(1)
	var body map[string]any
	if err := message.Decode(&body); err != nil {
		d.replyError(session, message, err)
		return
	}
	d.reply(session, message, body)
}

func (d *Daemon) reply(session *service.Session, message *service.Message, value any) {
	if !message.ExpectsReply() {
		return
	}
	if err := session.Reply(message, value); err != nil {
		d.logger.Warn("reply failed", "service", session.Name(), "error", err)
	}
}

func (d *Daemon) replyError(session *service.Session, message *service.Message, cause error) {
	d.logger.Debug("rejecting message", "service", session.Name(), "error", cause)
	if !message.ExpectsReply() {
		return
	}
	if err := session.ReplyError(message, cause); err != nil {
		d.logger.Warn("error reply failed", "service", session.Name(), "error", err)
	}
}
