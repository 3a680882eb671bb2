// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"github.com/google/uuid"
)

// Entry maps a requested host and port to a backend address.
// A nil Host or Port matches any value.
type Entry struct {
	Host        *string `yaml:"host"`
	Port        *uint16 `yaml:"port"`
	Destination string  `yaml:"destination"`

	// ProxyProtocol prepends a PROXY protocol v2 header on the backend
	// connection so the backend sees the real client address.
	ProxyProtocol bool `yaml:"proxy_protocol"`
}

// Matches reports whether the entry accepts the given host and port.
func (e *Entry) Matches(host string, port uint16) bool {
	if e.Host != nil && *e.Host != host {
		return false
	}
	if e.Port != nil && *e.Port != port {
		return false
	}
	return true
}

// Version is the version block of a status response.
type Version struct {
	Name     *string `yaml:"name"`
	Protocol *int32  `yaml:"protocol"`
}

// Sample is one entry of the player list hover.
type Sample struct {
	Name string    `yaml:"name" json:"name"`
	ID   uuid.UUID `yaml:"id"   json:"id"`
}

// Players is the player count block of a status response.
type Players struct {
	Max    int      `yaml:"max"    json:"max"`
	Online int      `yaml:"online" json:"online"`
	Sample []Sample `yaml:"sample" json:"sample,omitempty"`
}

// StatusDescriptor describes the status response served for handshakes
// that match no entry.
type StatusDescriptor struct {
	Version     Version  `yaml:"version"`
	Description any      `yaml:"description"`
	Players     *Players `yaml:"players"`
	Favicon     *string  `yaml:"favicon"`
	Ping        *bool    `yaml:"ping"`
}

// PingEnabled reports whether ping packets are echoed. Defaults to true.
func (d *StatusDescriptor) PingEnabled() bool {
	return d.Ping == nil || *d.Ping
}

// Table is an immutable routing snapshot.
type Table struct {
	Host    string            `yaml:"host"`
	Port    uint16            `yaml:"port"`
	Servers []Entry           `yaml:"servers"`
	Status  *StatusDescriptor `yaml:"status"`
}

// Resolve returns the first entry, in declaration order, matching host and port.
func (t *Table) Resolve(host string, port uint16) (*Entry, bool) {
	if t == nil {
		return nil, false
	}
	for i := range t.Servers {
		if t.Servers[i].Matches(host, port) {
			return &t.Servers[i], true
		}
	}
	return nil, false
}

// StatusDescriptor returns the fallback descriptor, or nil if none is configured.
func (t *Table) StatusDescriptor() *StatusDescriptor {
	if t == nil {
		return nil
	}
	return t.Status
}
