// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/mcproxy/pkg/breaker"
	"github.com/absmach/mcproxy/pkg/handler"
	"github.com/absmach/mcproxy/pkg/metrics"
	"github.com/absmach/mcproxy/pkg/parser/minecraft"
	"github.com/absmach/mcproxy/pkg/routing"
	"github.com/absmach/mcproxy/pkg/server/tcp"
	"github.com/absmach/mcproxy/pkg/watcher"
	"golang.org/x/sync/errgroup"
)

// MinecraftConfig holds configuration for the Minecraft proxy.
type MinecraftConfig struct {
	// ConfigPath is the YAML routing file. Its host and port fields give the
	// listen address; they are read once at startup.
	ConfigPath string

	// Watch reloads the routing table when ConfigPath changes.
	Watch          bool
	ReloadDebounce time.Duration

	HandshakeTimeout time.Duration
	DialTimeout      time.Duration
	MaxPacketSize    int
	MaxConnections   int
	ShutdownTimeout  time.Duration

	Breakers *breaker.Set
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// MinecraftProxy coordinates the routing store, reload watcher, TCP server
// and Minecraft parser.
type MinecraftProxy struct {
	store   *routing.Store
	watcher *watcher.Watcher
	server  *tcp.Server
	logger  *slog.Logger
}

// NewMinecraft loads the routing table and builds the proxy. An invalid
// routing file is returned as a *routing.ConfigError.
func NewMinecraft(cfg MinecraftConfig, h handler.Handler) (*MinecraftProxy, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	store, err := routing.NewStore(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	table := store.Load()
	cfg.Metrics.ObserveReload(nil, len(table.Servers))

	p := &MinecraftProxy{store: store, logger: cfg.Logger}

	var reload <-chan struct{}
	if cfg.Watch {
		w, err := watcher.New(cfg.ConfigPath, cfg.ReloadDebounce, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to watch routing file: %w", err)
		}
		p.watcher = w
		reload = w.Signals()
	}

	serverCfg := tcp.Config{
		Address:          table.Address(),
		HandshakeTimeout: cfg.HandshakeTimeout,
		DialTimeout:      cfg.DialTimeout,
		MaxConnections:   cfg.MaxConnections,
		ShutdownTimeout:  cfg.ShutdownTimeout,
		Reload:           reload,
		Breakers:         cfg.Breakers,
		Metrics:          cfg.Metrics,
		Logger:           cfg.Logger,
	}
	parser := minecraft.New(minecraft.Config{MaxPacketSize: cfg.MaxPacketSize})
	p.server = tcp.New(serverCfg, parser, h, store)

	return p, nil
}

// Store returns the routing store the proxy serves from.
func (p *MinecraftProxy) Store() *routing.Store {
	return p.store
}

// Listen starts the proxy and blocks until ctx is cancelled.
func (p *MinecraftProxy) Listen(ctx context.Context) error {
	if p.watcher == nil {
		return p.server.Listen(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.watcher.Watch(gctx)
	})
	g.Go(func() error {
		return p.server.Listen(gctx)
	})
	return g.Wait()
}
