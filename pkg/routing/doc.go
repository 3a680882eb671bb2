// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package routing holds the host/port routing table consulted after a
// handshake is read.
//
// Entries are evaluated in declaration order and the first match wins. When
// nothing matches, the optional StatusDescriptor lets the proxy answer status
// and ping requests itself.
//
// Tables are immutable once loaded. Store publishes the current table behind
// an atomic pointer; every connection takes one snapshot at accept time and
// never re-reads it, so a reload only affects connections accepted later.
//
// # File format
//
//	host: 0.0.0.0
//	port: 25565
//	servers:
//	  - host: play.example.com
//	    destination: 10.0.0.5:25565
//	  - host: creative.example.com
//	    port: 25565
//	    destination: 10.0.0.6:25565
//	    proxy_protocol: true
//	status:
//	  version:
//	    name: mcproxy
//	  description:
//	    text: Unknown server
//	  players:
//	    max: 0
//	    online: 0
//	  ping: true
package routing
