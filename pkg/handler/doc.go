// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler links the connection state machine to application logic.
//
// # Data Flow
//
//	Client → Parser (reads handshake) → Handler.AuthHandshake → Routing
//	  ├─ match:    Handler.OnRoute  → Relay → Backend
//	  └─ no match: Handler.OnStatus / Handler.OnPing (local emulation)
//	Close → Handler.OnDisconnect
//
// # Context
//
// Context is the per-connection scratch state. The parser fills in the
// handshake fields (ProtocolVersion, Host, Port, Intent) and, once a route
// matched, Destination. ProtocolVersion doubles as the fallback protocol
// number for locally emulated status responses.
//
// # Example
//
//	type AllowList struct {
//		hosts map[string]bool
//	}
//
//	func (h *AllowList) AuthHandshake(ctx context.Context, hctx *handler.Context) error {
//		if !h.hosts[hctx.Host] {
//			return errors.New("host not allowed")
//		}
//		return nil
//	}
package handler
