// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"bufio"
	"context"
	"io"

	"github.com/absmach/mcproxy/pkg/handler"
	"github.com/absmach/mcproxy/pkg/routing"
)

// Direction indicates the direction of byte flow.
type Direction int

const (
	// Upstream represents bytes flowing from client to backend server.
	Upstream Direction = iota

	// Downstream represents bytes flowing from backend server to client.
	Downstream
)

// String returns a string representation of the direction.
func (d Direction) String() string {
	switch d {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Action tells the server what to do after one Parse call.
type Action int

const (
	// Continue keeps the session loop running.
	Continue Action = iota

	// Close ends the connection.
	Close

	// Forward hands the connection to the relay. It is terminal for the session.
	Forward
)

// String returns a string representation of the action.
func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Close:
		return "close"
	case Forward:
		return "forward"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Parse call.
type Result struct {
	Action Action

	// Route and Handshake are set when Action is Forward. Handshake holds the
	// handshake packet exactly as framed by the client, length prefix included.
	Route     *routing.Entry
	Handshake []byte

	// Reason explains a Close that is not an error (no route, unknown packet).
	Reason error
}

// Routes is the read-only view of a routing snapshot a session needs.
type Routes interface {
	Resolve(host string, port uint16) (*routing.Entry, bool)
	StatusDescriptor() *routing.StatusDescriptor
}

// Session drives a single client connection.
//
// Parse is called in a loop. It should:
// - Read exactly one packet from the client
// - Answer it locally if the protocol state calls for it
// - Return io.EOF for clean connection closure
// - Return other errors for abnormal termination
type Session interface {
	Parse(ctx context.Context) (Result, error)
}

// Parser creates sessions for accepted connections.
//
// r is the buffered client stream. After a Forward result the server keeps
// reading from r, so any bytes the client pipelined behind the handshake
// reach the backend. w is the raw client connection used for local replies.
// routes is the routing snapshot taken when the connection was accepted.
type Parser interface {
	NewSession(r *bufio.Reader, w io.Writer, routes Routes, h handler.Handler, hctx *handler.Context) Session
}
