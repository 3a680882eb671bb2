// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package minecraft implements the Minecraft Java Edition wire codec and the
// per-connection state machine that routes on the handshake.
//
// # Wire format
//
//	VarInt:  7-bit groups, least significant first, 0x80 continuation, at most 5 bytes
//	String:  VarInt byte length + UTF-8 bytes
//	Packet:  VarInt length + body, body starts with a VarInt packet id
//
// # States
//
//	AwaitHandshake ──handshake, route found──────────→ Routed (relay, terminal)
//	      │         ──handshake, no route, no status─→ Closed
//	      │         ──handshake, no route, status────→ Unrouted
//	      │         ──id 0x00, empty body────────────→ AwaitHandshake
//	      └───────────any other id / EOF─────────────→ Closed
//
//	Unrouted ──status request──→ send status JSON, stay
//	         ──ping────────────→ echo frame if enabled, stay
//	         ──other / EOF─────→ Closed
//
// Routing looks only at the handshake's host and port, never at its intent.
// A routed connection hands status and ping to the backend like any other
// traffic.
package minecraft
