// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/mcproxy/pkg/breaker"
	mperrors "github.com/absmach/mcproxy/pkg/errors"
	"github.com/absmach/mcproxy/pkg/handler"
	"github.com/absmach/mcproxy/pkg/metrics"
	"github.com/absmach/mcproxy/pkg/parser"
	"github.com/absmach/mcproxy/pkg/routing"
	"github.com/google/uuid"
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

const defaultDialTimeout = 5 * time.Second

// Config holds the TCP server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// HandshakeTimeout bounds each read while the connection is handled
	// locally. Zero disables it. Relayed connections have no deadline.
	HandshakeTimeout time.Duration

	// DialTimeout bounds opening a backend connection.
	DialTimeout time.Duration

	// MaxConnections caps concurrently served clients. Zero means no cap.
	// Connections over the cap are closed right after accept.
	MaxConnections int

	// ShutdownTimeout is the maximum time to wait for active connections to drain
	// during graceful shutdown. After this timeout, remaining connections are
	// forcefully closed.
	ShutdownTimeout time.Duration

	// Reload triggers a re-read of the routing table. May be nil.
	Reload <-chan struct{}

	// Breakers guards backend dials. May be nil.
	Breakers *breaker.Set

	// Metrics records server activity. May be nil.
	Metrics *metrics.Metrics

	// Logger for server events
	Logger *slog.Logger
}

// Server accepts client connections, drives a parser session over each one,
// and relays the connection to a backend once the session asks for it.
type Server struct {
	config  Config
	parser  parser.Parser
	handler handler.Handler
	routes  *routing.Store
	dialer  *net.Dialer
	connSem chan struct{}
	wg      sync.WaitGroup
}

// New creates a new TCP server with the given configuration, parser, handler
// and routing store.
func New(cfg Config, p parser.Parser, h handler.Handler, routes *routing.Store) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if h == nil {
		h = &handler.NoopHandler{}
	}

	s := &Server{
		config:  cfg,
		parser:  p,
		handler: h,
		routes:  routes,
		dialer:  &net.Dialer{Timeout: cfg.DialTimeout},
	}
	if cfg.MaxConnections > 0 {
		s.connSem = make(chan struct{}, cfg.MaxConnections)
	}
	return s
}

// Listen binds the configured address and serves until ctx is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and
// drains active connections. Serve owns ln.
//
// New connections and reload signals are handled by a single loop, so a
// connection accepted after a reload completes always sees the new table.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.config.Logger.Info("Minecraft proxy listening", slog.String("address", ln.Addr().String()))

	// Active connections outlive ctx until the drain deadline.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	conns := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		acceptErr <- s.accept(ctx, ln, conns)
	}()

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			s.config.Logger.Info("shutdown signal received, closing listener")
			break loop

		case conn := <-conns:
			s.dispatch(connCtx, conn)

		case <-s.config.Reload:
			s.reload()

		case err := <-acceptErr:
			serveErr = err
			break loop
		}
	}

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}
	<-acceptDone

	if err := s.drain(connCancel); err != nil {
		return err
	}
	return serveErr
}

// accept hands accepted connections to the serve loop. It returns nil once
// the listener is closed on shutdown.
func (s *Server) accept(ctx context.Context, ln net.Listener, conns chan<- net.Conn) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.config.Logger.Warn("failed to accept connection", slog.String("error", err.Error()))
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		select {
		case conns <- conn:
		case <-ctx.Done():
			conn.Close()
			return nil
		}
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	if s.connSem != nil {
		select {
		case s.connSem <- struct{}{}:
		default:
			s.config.Logger.Warn("connection limit reached, closing connection",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Int("max_connections", s.config.MaxConnections))
			s.config.Metrics.ConnectionRejected("connection_limit")
			conn.Close()
			return
		}
	}

	// Snapshot at accept time; later reloads do not affect this connection.
	table := s.routes.Load()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.connSem != nil {
			defer func() { <-s.connSem }()
		}
		err := s.config.Metrics.ObserveConnection(func() error {
			return s.handleConn(ctx, conn, table)
		})
		if err != nil {
			s.config.Logger.Warn("connection handler error",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()))
		}
	}()
}

func (s *Server) reload() {
	path := s.routes.Path()
	err := s.routes.Reload()
	if err != nil {
		s.config.Logger.Error("failed to reload routing table, keeping current one",
			slog.String("path", path),
			slog.String("error", err.Error()))
		s.config.Metrics.ObserveReload(err, 0)
		return
	}

	entries := 0
	if t := s.routes.Load(); t != nil {
		entries = len(t.Servers)
	}
	s.config.Logger.Info("routing table reloaded",
		slog.String("path", path),
		slog.Int("servers", entries))
	s.config.Metrics.ObserveReload(nil, entries)
}

func (s *Server) drain(connCancel context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure")
		connCancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return ErrShutdownTimeout
	}
}

// handleConn runs the parser session for one client until it closes or asks
// for a relay. A client hanging up before or between packets is not an error.
func (s *Server) handleConn(ctx context.Context, conn net.Conn, table *routing.Table) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	hctx := &handler.Context{
		SessionID:  uuid.New().String(),
		RemoteAddr: conn.RemoteAddr().String(),
	}
	logger := s.config.Logger.With(
		slog.String("session", hctx.SessionID),
		slog.String("remote", hctx.RemoteAddr))
	logger.Debug("connection accepted")

	defer func() {
		if err := s.handler.OnDisconnect(context.Background(), hctx); err != nil {
			logger.Error("disconnect handler error", slog.String("error", err.Error()))
		}
		logger.Debug("connection closed")
	}()

	br := bufio.NewReader(conn)
	session := s.parser.NewSession(br, conn, table, s.handler, hctx)

	for {
		if s.config.HandshakeTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
				return err
			}
		}

		res, err := session.Parse(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.config.Metrics.ConnectionError(errorType(err))
			return mperrors.New("parse", hctx.Protocol, hctx.SessionID, hctx.RemoteAddr, err)
		}

		switch res.Action {
		case parser.Continue:
			continue

		case parser.Close:
			if res.Reason != nil {
				if errors.Is(res.Reason, mperrors.ErrNoRoute) {
					s.config.Metrics.RouteDecision("no_route")
				}
				logger.Info("closing connection", slog.String("reason", res.Reason.Error()))
			}
			return nil

		case parser.Forward:
			s.config.Metrics.RouteDecision("forward")
			if err := conn.SetReadDeadline(time.Time{}); err != nil {
				return err
			}
			return s.relay(ctx, conn, br, res, hctx, logger)

		default:
			return fmt.Errorf("unknown parser action %v", res.Action)
		}
	}
}

func errorType(err error) string {
	var ne net.Error
	switch {
	case errors.Is(err, mperrors.ErrProtocolViolation):
		return "protocol"
	case errors.As(err, &ne) && ne.Timeout():
		return "timeout"
	default:
		return "io"
	}
}
