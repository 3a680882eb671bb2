// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
)

// Context is the per-connection scratch state. It is created when a
// connection is accepted and discarded when it closes.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Protocol names the proxied protocol ("minecraft")
	Protocol string

	// ProtocolVersion is the version number declared in the client's
	// handshake, nil until a handshake has been read.
	ProtocolVersion *int32

	// Host and Port are the virtual host and port the client asked for
	Host string
	Port uint16

	// Intent is the declared next state (1 = status, 2 = login)
	Intent int32

	// Destination is the backend address once a route matched
	Destination string
}

// Handler defines lifecycle callbacks invoked by the connection state machine.
//
// AuthHandshake is called BEFORE a route is resolved and may reject the
// connection by returning an error. The remaining methods are notifications
// for audit logging or metrics; their errors are logged but never change
// what happens on the wire.
type Handler interface {
	// AuthHandshake authorizes a parsed handshake.
	// Return an error to close the connection.
	AuthHandshake(ctx context.Context, hctx *Context) error

	// OnRoute is called when a handshake matched a routing entry and the
	// connection is about to be relayed to hctx.Destination.
	OnRoute(ctx context.Context, hctx *Context) error

	// OnStatus is called after a locally emulated status response was sent.
	OnStatus(ctx context.Context, hctx *Context) error

	// OnPing is called for every ping packet on an unrouted connection.
	// echoed reports whether the ping was answered.
	OnPing(ctx context.Context, hctx *Context, payload int64, echoed bool) error

	// OnDisconnect is called when a client disconnects (gracefully or due to error).
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// NoopHandler is a Handler implementation that allows everything.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthHandshake(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnRoute(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnStatus(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnPing(ctx context.Context, hctx *Context, payload int64, echoed bool) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
