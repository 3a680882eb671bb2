// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the Minecraft proxy TCP server.
//
// # Architecture
//
//	┌─────────┐         ┌─────────┐         ┌─────────┐
//	│ Client  │ ←─TCP─→ │  Server │ ←─TCP─→ │ Backend │
//	└─────────┘         └─────────┘         └─────────┘
//	                         ↓
//	                    ┌─────────┐
//	                    │ Session │ (parser)
//	                    └─────────┘
//	                         ↓
//	                    ┌─────────┐
//	                    │ Handler │
//	                    └─────────┘
//
// # Connection Flow
//
//  1. The serve loop accepts a connection and snapshots the routing table
//  2. A goroutine runs a parser session over the connection
//  3. Continue results keep the session reading packets
//  4. A Close result ends the connection
//  5. A Forward result dials the backend, writes an optional PROXY v2
//     header, replays the handshake frame and starts the relay
//  6. The relay copies both directions until one of them ends, then closes
//     both connections
//  7. Server calls handler.OnDisconnect()
//
// The backend is only dialed after a handshake has been routed, so clients
// that are answered locally never touch a backend.
//
// # Reload
//
// Config.Reload delivers reload signals. They are handled by the same loop
// that accepts connections: the routing store is re-read and, if the new
// table is valid, connections accepted afterwards use it. A table that fails
// to load is logged and the previous table stays in effect. Open connections
// keep the snapshot taken when they were accepted.
//
// # Graceful Shutdown
//
// When context is canceled:
//
//  1. Server stops accepting new connections
//  2. Server waits for existing connections (with timeout)
//  3. After ShutdownTimeout, forcefully closes remaining connections
//  4. Returns ErrShutdownTimeout if timeout exceeded
//
// # Configuration
//
//   - Address: listen address (e.g., "0.0.0.0:25565")
//   - HandshakeTimeout: per-read deadline before relaying (default: none)
//   - DialTimeout: backend dial timeout (default: 5s)
//   - MaxConnections: concurrent client cap (default: none)
//   - ShutdownTimeout: max wait for graceful shutdown (default: 30s)
//   - Reload, Breakers, Metrics: optional collaborators
//   - Logger: structured logger
//
// # Error Handling
//
//   - Client hang-up between packets: not an error
//   - Protocol violations and read errors: logged, connection closed
//   - Unknown packets, no route: logged at info, connection closed
//   - Backend dial errors: logged and client connection closed
//   - Shutdown timeout: returns ErrShutdownTimeout
//
// # Example
//
//	store, err := routing.NewStore("config.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg := tcp.Config{
//		Address: store.Load().Address(),
//	}
//	server := tcp.New(cfg, minecraft.New(minecraft.Config{}), &handler.NoopHandler{}, store)
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp
