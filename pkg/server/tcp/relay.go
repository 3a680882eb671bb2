// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	mperrors "github.com/absmach/mcproxy/pkg/errors"
	"github.com/absmach/mcproxy/pkg/handler"
	"github.com/absmach/mcproxy/pkg/parser"
	proxyproto "github.com/pires/go-proxyproto"
)

// relay dials the routed backend, replays the handshake frame and copies
// bytes in both directions. The first direction to finish tears down both.
//
// client is read through r, the reader the session used, so bytes the client
// pipelined behind the handshake reach the backend.
func (s *Server) relay(ctx context.Context, client net.Conn, r io.Reader, res parser.Result, hctx *handler.Context, logger *slog.Logger) error {
	dest := res.Route.Destination
	logger = logger.With(slog.String("backend", dest))

	backend, err := s.dial(ctx, dest)
	if err != nil {
		logger.Warn("failed to connect to backend", slog.String("error", err.Error()))
		return mperrors.New("dial", hctx.Protocol, hctx.SessionID, hctx.RemoteAddr,
			fmt.Errorf("%w: %w", mperrors.ErrBackendUnavailable, err))
	}
	defer backend.Close()
	stop := context.AfterFunc(ctx, func() { backend.Close() })
	defer stop()

	if res.Route.ProxyProtocol {
		header := proxyproto.HeaderProxyFromAddrs(2, client.RemoteAddr(), client.LocalAddr())
		if _, err := header.WriteTo(backend); err != nil {
			s.config.Metrics.BackendError(dest, "write")
			return mperrors.New("proxy_header", hctx.Protocol, hctx.SessionID, hctx.RemoteAddr, err)
		}
	}
	if _, err := backend.Write(res.Handshake); err != nil {
		s.config.Metrics.BackendError(dest, "write")
		return mperrors.New("replay", hctx.Protocol, hctx.SessionID, hctx.RemoteAddr, err)
	}

	logger.Info("relaying connection",
		slog.String("host", hctx.Host),
		slog.Int("port", int(hctx.Port)))

	start := time.Now()
	err = s.config.Metrics.ObserveRelay(dest, func() error {
		return s.pipe(client, r, backend)
	})
	logger.Debug("relay finished", slog.Duration("duration", time.Since(start)))
	if err != nil {
		return mperrors.New("relay", hctx.Protocol, hctx.SessionID, hctx.RemoteAddr, err)
	}
	return nil
}

func (s *Server) dial(ctx context.Context, dest string) (net.Conn, error) {
	var conn net.Conn
	start := time.Now()
	err := s.config.Breakers.Call(dest, func() error {
		var err error
		conn, err = s.dialer.DialContext(ctx, "tcp", dest)
		return err
	})
	s.config.Metrics.ObserveDial(dest, time.Since(start), err)
	return conn, err
}

// pipe copies client→backend from r and backend→client until one direction
// ends. Closing both connections unblocks the other direction.
func (s *Server) pipe(client net.Conn, r io.Reader, backend net.Conn) error {
	errCh := make(chan error, 2)

	// Upstream: client → backend
	go func() {
		n, err := io.Copy(backend, r)
		s.config.Metrics.AddRelayed(parser.Upstream, n)
		errCh <- err
	}()

	// Downstream: backend → client
	go func() {
		n, err := io.Copy(client, backend)
		s.config.Metrics.AddRelayed(parser.Downstream, n)
		errCh <- err
	}()

	first := <-errCh
	client.Close()
	backend.Close()
	<-errCh

	if first == nil || errors.Is(first, net.ErrClosed) {
		return nil
	}
	return first
}
