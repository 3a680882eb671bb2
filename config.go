// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mcproxy holds process-level configuration shared by the mcproxy
// entrypoints.
package mcproxy

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix of every environment variable read by mcproxy.
const EnvPrefix = "MCPROXY_"

// Config is the process configuration read from the environment. The routing
// table itself lives in the YAML file passed on the command line.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	ReloadDebounce   time.Duration `env:"RELOAD_DEBOUNCE"   envDefault:"500ms"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"0s"`
	DialTimeout      time.Duration `env:"DIAL_TIMEOUT"      envDefault:"5s"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"30s"`

	MaxPacketSize  int `env:"MAX_PACKET_SIZE" envDefault:"2097151"`
	MaxConnections int `env:"MAX_CONNECTIONS" envDefault:"0"`
}

// NewConfig parses Config from the environment.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	return c, nil
}

// NewLogger creates a structured logger with the given level and format
// ("json" or "text") writing to w.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
