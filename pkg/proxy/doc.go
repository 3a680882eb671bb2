// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package proxy provides the Minecraft proxy coordinator that wires together
// the routing store, reload watcher, TCP server, parser and handler.
//
// # Architecture
//
//	Application
//	     ↓
//	┌────────────────┐
//	│ MinecraftProxy │  (Coordinator)
//	└────────────────┘
//	     ↓          ↘
//	┌─────────────┐  ┌──────────────┐
//	│ TCP Server  │←─│ Watcher      │ reload signals
//	└─────────────┘  └──────────────┘
//	     ↓
//	┌─────────────┐
//	│ Parser      │  (Minecraft session state machine)
//	└─────────────┘
//	     ↓
//	┌─────────────┐
//	│ Handler     │  (Business Logic)
//	└─────────────┘
//
// # Usage
//
//	cfg := proxy.MinecraftConfig{
//		ConfigPath:      "config.yaml",
//		Watch:           true,
//		ShutdownTimeout: 30 * time.Second,
//		Logger:          logger,
//	}
//
//	p, err := proxy.NewMinecraft(cfg, handler)
//	if err != nil {
//		return err
//	}
//	return p.Listen(ctx)
//
// The listen address comes from the host and port of the routing file as
// loaded at startup. Reloads replace the routing entries and status
// descriptor only.
package proxy
