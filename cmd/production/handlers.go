// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	mperrors "github.com/absmach/mcproxy/pkg/errors"
	"github.com/absmach/mcproxy/pkg/handler"
	"github.com/absmach/mcproxy/pkg/metrics"
	"github.com/absmach/mcproxy/pkg/ratelimit"
	"golang.org/x/time/rate"
)

var (
	_ handler.Handler = (*RateLimitedHandler)(nil)
	_ handler.Handler = (*InstrumentedHandler)(nil)
)

// RateLimitedHandler rejects handshakes over the global or per-IP rate.
// A rejected handshake closes the connection before any routing happens.
type RateLimitedHandler struct {
	handler          handler.Handler
	perClientLimiter *ratelimit.Limiter
	globalLimiter    *rate.Limiter
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

// AuthHandshake implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) AuthHandshake(ctx context.Context, hctx *handler.Context) error {
	if h.globalLimiter != nil && !h.globalLimiter.Allow() {
		h.metrics.RateLimited("global")
		h.logger.Warn("Global rate limit exceeded",
			slog.String("session", hctx.SessionID),
			slog.String("remote", hctx.RemoteAddr))
		return fmt.Errorf("%w: %w", mperrors.ErrRateLimited, ratelimit.ErrRateLimitExceeded)
	}

	client := clientIP(hctx.RemoteAddr)
	if h.perClientLimiter != nil && !h.perClientLimiter.Allow(client) {
		h.metrics.RateLimited("per_client")
		h.logger.Warn("Per-client rate limit exceeded",
			slog.String("session", hctx.SessionID),
			slog.String("client", client))
		return fmt.Errorf("%w: %w", mperrors.ErrRateLimited, ratelimit.ErrRateLimitExceeded)
	}

	return h.handler.AuthHandshake(ctx, hctx)
}

// OnRoute implements handler.Handler.
func (h *RateLimitedHandler) OnRoute(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnRoute(ctx, hctx)
}

// OnStatus implements handler.Handler.
func (h *RateLimitedHandler) OnStatus(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnStatus(ctx, hctx)
}

// OnPing implements handler.Handler.
func (h *RateLimitedHandler) OnPing(ctx context.Context, hctx *handler.Context, payload int64, echoed bool) error {
	return h.handler.OnPing(ctx, hctx, payload, echoed)
}

// OnDisconnect implements handler.Handler.
func (h *RateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}

// clientIP strips the port so that all connections from one host share a bucket.
func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

// InstrumentedHandler wraps a handler with metrics instrumentation.
type InstrumentedHandler struct {
	handler handler.Handler
	metrics *metrics.Metrics
}

// AuthHandshake implements handler.Handler with metrics.
func (h *InstrumentedHandler) AuthHandshake(ctx context.Context, hctx *handler.Context) error {
	h.metrics.HandshakeRead(hctx.Intent)
	err := h.handler.AuthHandshake(ctx, hctx)
	if err != nil {
		h.metrics.RouteDecision("rejected")
	}
	return err
}

// OnRoute implements handler.Handler.
func (h *InstrumentedHandler) OnRoute(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnRoute(ctx, hctx)
}

// OnStatus implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnStatus(ctx context.Context, hctx *handler.Context) error {
	h.metrics.StatusServed()
	return h.handler.OnStatus(ctx, hctx)
}

// OnPing implements handler.Handler with metrics.
func (h *InstrumentedHandler) OnPing(ctx context.Context, hctx *handler.Context, payload int64, echoed bool) error {
	h.metrics.PingServed(echoed)
	return h.handler.OnPing(ctx, hctx, payload, echoed)
}

// OnDisconnect implements handler.Handler.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}
