// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser defines the interface between the TCP server and the
// protocol state machine.
//
// # Architecture Overview
//
// The server accepts a connection, takes a routing snapshot and asks the
// Parser for a Session. It then calls Session.Parse in a loop:
//
//	for {
//		res, err := session.Parse(ctx)
//		switch {
//		case err != nil:          // io.EOF is a clean close
//			return err
//		case res.Action == parser.Forward:
//			return relay(res.Route, res.Handshake)
//		case res.Action == parser.Close:
//			return nil
//		}
//	}
//
// A session either forwards (terminal) or keeps answering locally until the
// client closes. It never does both.
//
// # Direction
//
// Direction labels the two halves of a relayed connection:
//   - Upstream: Client → Backend
//   - Downstream: Backend → Client
//
// # Implementations
//
//   - parser/minecraft: Minecraft Java Edition handshake, status and ping
package parser
