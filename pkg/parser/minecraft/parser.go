// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package minecraft

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	mperrors "github.com/absmach/mcproxy/pkg/errors"
	"github.com/absmach/mcproxy/pkg/handler"
	"github.com/absmach/mcproxy/pkg/parser"
)

// ErrUnknownPacket is the close reason for a packet id the current state does not accept.
var ErrUnknownPacket = errors.New("unknown packet")

// State is the protocol state of a session.
type State int

const (
	StateAwaitHandshake State = iota
	StateUnrouted
	StateRouted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitHandshake:
		return "await_handshake"
	case StateUnrouted:
		return "unrouted"
	case StateRouted:
		return "routed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds parser limits.
type Config struct {
	// MaxPacketSize caps the length prefix of packets read before a route
	// is chosen. Zero means DefaultMaxPacketSize; negative disables the cap.
	MaxPacketSize int
}

// Parser implements parser.Parser for the Minecraft Java Edition protocol.
type Parser struct {
	maxPacketSize int
}

var _ parser.Parser = (*Parser)(nil)

// New creates a Minecraft parser.
func New(cfg Config) *Parser {
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = DefaultMaxPacketSize
	}
	return &Parser{maxPacketSize: cfg.MaxPacketSize}
}

// NewSession starts a session in StateAwaitHandshake.
func (p *Parser) NewSession(r *bufio.Reader, w io.Writer, routes parser.Routes, h handler.Handler, hctx *handler.Context) parser.Session {
	if hctx.Protocol == "" {
		hctx.Protocol = "minecraft"
	}
	return &Session{
		r:             r,
		w:             w,
		routes:        routes,
		handler:       h,
		hctx:          hctx,
		maxPacketSize: p.maxPacketSize,
	}
}

// Session is the per-connection state machine.
type Session struct {
	r             *bufio.Reader
	w             io.Writer
	routes        parser.Routes
	handler       handler.Handler
	hctx          *handler.Context
	state         State
	maxPacketSize int
}

var _ parser.Session = (*Session)(nil)

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// Parse reads and dispatches one packet.
func (s *Session) Parse(ctx context.Context) (parser.Result, error) {
	if s.state == StateClosed || s.state == StateRouted {
		return parser.Result{Action: parser.Close}, mperrors.ErrConnectionClosed
	}

	// A zero-byte peek means the client went away between packets.
	if _, err := s.r.Peek(1); err != nil {
		s.state = StateClosed
		return parser.Result{Action: parser.Close}, err
	}

	pkt, payload, err := readPacket(s.r, s.maxPacketSize)
	if err != nil {
		s.state = StateClosed
		return parser.Result{Action: parser.Close}, err
	}

	var res parser.Result
	switch s.state {
	case StateAwaitHandshake:
		res, err = s.awaitHandshake(ctx, pkt, payload)
	case StateUnrouted:
		res, err = s.unrouted(ctx, pkt, payload)
	}
	if err != nil || res.Action == parser.Close {
		s.state = StateClosed
	}
	return res, err
}

func (s *Session) awaitHandshake(ctx context.Context, pkt Packet, payload Reader) (parser.Result, error) {
	switch {
	case pkt.ID == PacketIDHandshake && len(pkt.Body) > 1:
		return s.handshake(ctx, pkt, payload)
	case pkt.ID == PacketIDHandshake:
		// Id-only packet before a handshake carries nothing to route on.
		return parser.Result{Action: parser.Continue}, nil
	default:
		return closeResult(fmt.Errorf("%w 0x%02x before handshake", ErrUnknownPacket, pkt.ID)), nil
	}
}

func (s *Session) handshake(ctx context.Context, pkt Packet, payload Reader) (parser.Result, error) {
	hs, err := ReadHandshake(payload)
	if err != nil {
		return parser.Result{}, err
	}

	protocol := hs.Protocol
	s.hctx.ProtocolVersion = &protocol
	s.hctx.Host = hs.Host
	s.hctx.Port = hs.Port
	s.hctx.Intent = hs.Intent

	if err := s.handler.AuthHandshake(ctx, s.hctx); err != nil {
		return closeResult(fmt.Errorf("handshake rejected: %w", err)), nil
	}

	if route, ok := s.routes.Resolve(hs.Host, hs.Port); ok {
		s.hctx.Destination = route.Destination
		s.state = StateRouted
		// Notification only; the route stands regardless.
		_ = s.handler.OnRoute(ctx, s.hctx)
		return parser.Result{Action: parser.Forward, Route: route, Handshake: pkt.Frame}, nil
	}

	if s.routes.StatusDescriptor() == nil {
		return closeResult(fmt.Errorf("%w for %s:%d", mperrors.ErrNoRoute, hs.Host, hs.Port)), nil
	}

	s.state = StateUnrouted
	return parser.Result{Action: parser.Continue}, nil
}

func (s *Session) unrouted(ctx context.Context, pkt Packet, payload Reader) (parser.Result, error) {
	desc := s.routes.StatusDescriptor()

	switch {
	case pkt.ID == PacketIDStatusRequest && len(pkt.Body) == 1:
		resp, err := StatusResponse(desc, s.hctx.ProtocolVersion)
		if err != nil {
			return parser.Result{}, err
		}
		if _, err := s.w.Write(resp); err != nil {
			return parser.Result{}, fmt.Errorf("failed to write status response: %w", err)
		}
		_ = s.handler.OnStatus(ctx, s.hctx)
		return parser.Result{Action: parser.Continue}, nil

	case pkt.ID == PacketIDPing:
		payloadValue, err := ReadPing(payload)
		if err != nil {
			return parser.Result{}, err
		}
		echo := desc.PingEnabled()
		if echo {
			if _, err := s.w.Write(pkt.Frame); err != nil {
				return parser.Result{}, fmt.Errorf("failed to write pong: %w", err)
			}
		}
		_ = s.handler.OnPing(ctx, s.hctx, payloadValue, echo)
		return parser.Result{Action: parser.Continue}, nil

	default:
		return closeResult(fmt.Errorf("%w 0x%02x (length %d) on unrouted connection", ErrUnknownPacket, pkt.ID, len(pkt.Body))), nil
	}
}

func closeResult(reason error) parser.Result {
	return parser.Result{Action: parser.Close, Reason: reason}
}
