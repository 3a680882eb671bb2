// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main provides a production-ready mcproxy deployment with metrics,
// health checks, circuit breakers and handshake rate limiting.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/mcproxy"
	"github.com/absmach/mcproxy/examples/simple"
	"github.com/absmach/mcproxy/pkg/breaker"
	"github.com/absmach/mcproxy/pkg/health"
	"github.com/absmach/mcproxy/pkg/metrics"
	"github.com/absmach/mcproxy/pkg/proxy"
	"github.com/absmach/mcproxy/pkg/ratelimit"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config holds the application configuration.
type Config struct {
	mcproxy.Config

	ConfigPath string `env:"CONFIG_PATH" envDefault:"config.yaml"`
	Reload     bool   `env:"RELOAD"      envDefault:"true"`

	// Observability
	MetricsPort    int           `env:"METRICS_PORT"    envDefault:"9090"`
	HealthPort     int           `env:"HEALTH_PORT"     envDefault:"8080"`
	ResourceSample time.Duration `env:"RESOURCE_SAMPLE" envDefault:"15s"`

	// Circuit Breaker
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`

	// Rate Limiting
	RateLimitPerClient float64 `env:"RATE_LIMIT_PER_CLIENT" envDefault:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST"      envDefault:"10"`
	GlobalRateLimit    float64 `env:"GLOBAL_RATE_LIMIT"     envDefault:"1000"`
	GlobalRateBurst    int     `env:"GLOBAL_RATE_BURST"     envDefault:"2000"`
}

func main() {
	// .env file is optional
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: mcproxy.EnvPrefix}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}
	// A positional argument overrides MCPROXY_CONFIG_PATH.
	flag.Parse()
	if flag.NArg() > 0 {
		cfg.ConfigPath = flag.Arg(0)
	}

	logger := mcproxy.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting mcproxy in production mode",
		slog.String("config", cfg.ConfigPath),
		slog.Int("max_connections", cfg.MaxConnections))

	m := metrics.New("mcproxy", prometheus.DefaultRegisterer)

	breakers := breaker.NewSet(breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	}, func(backend string, from, to breaker.State) {
		logger.Warn("Circuit breaker state changed",
			slog.String("backend", backend),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		m.BreakerState(backend, int(to), to == breaker.StateOpen)
	})

	perClientLimiter := ratelimit.NewLimiter(ratelimit.Config{
		Rate:  cfg.RateLimitPerClient,
		Burst: cfg.RateLimitBurst,
	})
	defer perClientLimiter.Close()
	globalLimiter := rate.NewLimiter(rate.Limit(cfg.GlobalRateLimit), cfg.GlobalRateBurst)

	h := &InstrumentedHandler{
		handler: &RateLimitedHandler{
			handler:          simple.New(logger),
			perClientLimiter: perClientLimiter,
			globalLimiter:    globalLimiter,
			metrics:          m,
			logger:           logger,
		},
		metrics: m,
	}

	p, err := proxy.NewMinecraft(proxy.MinecraftConfig{
		ConfigPath:       cfg.ConfigPath,
		Watch:            cfg.Reload,
		ReloadDebounce:   cfg.ReloadDebounce,
		HandshakeTimeout: cfg.HandshakeTimeout,
		DialTimeout:      cfg.DialTimeout,
		MaxPacketSize:    cfg.MaxPacketSize,
		MaxConnections:   cfg.MaxConnections,
		ShutdownTimeout:  cfg.ShutdownTimeout,
		Breakers:         breakers,
		Metrics:          m,
		Logger:           logger,
	}, h)
	if err != nil {
		logger.Error("Failed to create Minecraft proxy", slog.String("error", err.Error()))
		os.Exit(1)
	}

	checker := health.NewChecker(10 * time.Second)
	checker.Register("routing_table", true, health.RoutingTable(p.Store()))
	checker.Register("backends", false, health.Backends(breakers))

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		return serveHTTP(ctx, "metrics", cfg.MetricsPort, mux, logger)
	})
	g.Go(func() error {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", checker.HTTPHandler())
		mux.HandleFunc("/ready", checker.ReadinessHandler())
		mux.HandleFunc("/live", health.LivenessHandler())
		return serveHTTP(ctx, "health", cfg.HealthPort, mux, logger)
	})
	g.Go(func() error {
		return sampleResources(ctx, cfg.ResourceSample, m)
	})
	g.Go(func() error {
		return p.Listen(ctx)
	})

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()

	// The proxy drains for ShutdownTimeout; allow a little more before giving up.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit")
		os.Exit(1)
	}
}

// serveHTTP runs an HTTP server on port until ctx is cancelled.
func serveHTTP(ctx context.Context, name string, port int, h http.Handler, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting "+name+" server", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// sampleResources refreshes goroutine and memory gauges every interval.
func sampleResources(ctx context.Context, interval time.Duration, m *metrics.Metrics) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.UpdateResources()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.UpdateResources()
		}
	}
}
