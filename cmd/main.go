// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Command mcproxy routes Minecraft Java Edition connections to backends by
// the host name in the client handshake.
//
// Usage:
//
//	mcproxy [config] [--reload]
//
// config defaults to config.yaml. With --reload the routing table is re-read
// whenever the file changes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/mcproxy"
	"github.com/absmach/mcproxy/examples/simple"
	"github.com/absmach/mcproxy/pkg/proxy"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "config.yaml"

var reload bool

var rootCmd = &cobra.Command{
	Use:   "mcproxy [config]",
	Short: "Host-based reverse proxy for Minecraft Java Edition",
	Long: `mcproxy reads the handshake of each client connection and relays it to
the backend whose routing entry matches the requested host and port.
Handshakes that match nothing can be answered locally with a configured
status response.

Examples:
  # Serve config.yaml from the working directory
  mcproxy

  # Serve a specific file and reload it on change
  mcproxy /etc/mcproxy/config.yaml --reload`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVarP(&reload, "reload", "r", false, "reload the routing table when the config file changes")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := defaultConfigPath
	if len(args) == 1 {
		path = args[0]
	}

	// .env is optional.
	_ = godotenv.Load()

	cfg, err := mcproxy.NewConfig(env.Options{Prefix: mcproxy.EnvPrefix})
	if err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}
	logger := mcproxy.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	p, err := proxy.NewMinecraft(proxy.MinecraftConfig{
		ConfigPath:       path,
		Watch:            reload,
		ReloadDebounce:   cfg.ReloadDebounce,
		HandshakeTimeout: cfg.HandshakeTimeout,
		DialTimeout:      cfg.DialTimeout,
		MaxPacketSize:    cfg.MaxPacketSize,
		MaxConnections:   cfg.MaxConnections,
		ShutdownTimeout:  cfg.ShutdownTimeout,
		Logger:           logger,
	}, simple.New(logger))
	if err != nil {
		logger.Error("failed to start mcproxy", slog.String("config", path), slog.String("error", err.Error()))
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Listen(ctx)
	})
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("mcproxy terminated with error: %s", err))
		return err
	}
	logger.Info("mcproxy stopped")
	return nil
}

// StopSignalHandler cancels ctx on SIGINT or SIGTERM.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
