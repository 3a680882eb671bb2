// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func strPtr(s string) *string { return &s }

func portPtr(p uint16) *uint16 { return &p }

func TestTable_Resolve(t *testing.T) {
	table := &Table{
		Servers: []Entry{
			{Host: strPtr("a.com"), Destination: "A"},
			{Host: strPtr("b.com"), Port: portPtr(25566), Destination: "B"},
		},
	}

	tests := []struct {
		name string
		host string
		port uint16
		want string
		ok   bool
	}{
		{name: "host only entry matches any port", host: "a.com", port: 1, want: "A", ok: true},
		{name: "host and port match", host: "b.com", port: 25566, want: "B", ok: true},
		{name: "host matches port does not", host: "b.com", port: 1, ok: false},
		{name: "unknown host", host: "c.com", port: 1, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := table.Resolve(tt.host, tt.port)
			if ok != tt.ok {
				t.Fatalf("Resolve(%q, %d) ok = %v, want %v", tt.host, tt.port, ok, tt.ok)
			}
			if ok && e.Destination != tt.want {
				t.Errorf("Resolve(%q, %d) = %q, want %q", tt.host, tt.port, e.Destination, tt.want)
			}
		})
	}
}

func TestTable_ResolveFirstMatchWins(t *testing.T) {
	table := &Table{
		Servers: []Entry{
			{Port: portPtr(25565), Destination: "first"},
			{Host: strPtr("a.com"), Destination: "second"},
			{Destination: "catch-all"},
		},
	}

	if e, _ := table.Resolve("a.com", 25565); e.Destination != "first" {
		t.Errorf("expected first, got %s", e.Destination)
	}
	if e, _ := table.Resolve("a.com", 1); e.Destination != "second" {
		t.Errorf("expected second, got %s", e.Destination)
	}
	if e, _ := table.Resolve("z.com", 1); e.Destination != "catch-all" {
		t.Errorf("expected catch-all, got %s", e.Destination)
	}
}

func TestTable_NilTable(t *testing.T) {
	var table *Table
	if _, ok := table.Resolve("a.com", 1); ok {
		t.Error("nil table should not resolve")
	}
	if table.StatusDescriptor() != nil {
		t.Error("nil table should have no status descriptor")
	}
}

func TestStatusDescriptor_PingEnabled(t *testing.T) {
	off := false
	on := true

	if !(&StatusDescriptor{}).PingEnabled() {
		t.Error("ping should default to enabled")
	}
	if (&StatusDescriptor{Ping: &off}).PingEnabled() {
		t.Error("ping should be disabled")
	}
	if !(&StatusDescriptor{Ping: &on}).PingEnabled() {
		t.Error("ping should be enabled")
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
host: 127.0.0.1
port: 25570
servers:
  - host: localhost
    destination: 127.0.0.1:25566
  - host: mc.example.com
    port: 25565
    destination: 10.0.0.1:25565
    proxy_protocol: true
status:
  version:
    name: mcproxy
    protocol: 47
  description:
    text: hello
  players:
    max: 20
    online: 1
    sample:
      - name: steve
        id: 4566e69f-c907-48ee-8d71-d7ba5aa00d20
  ping: false
`)

	table, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if table.Address() != "127.0.0.1:25570" {
		t.Errorf("unexpected address %s", table.Address())
	}
	if len(table.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(table.Servers))
	}
	if table.Servers[0].Port != nil {
		t.Error("first entry should match any port")
	}
	if !table.Servers[1].ProxyProtocol {
		t.Error("second entry should enable proxy protocol")
	}

	desc := table.StatusDescriptor()
	if desc == nil {
		t.Fatal("expected status descriptor")
	}
	if desc.Version.Protocol == nil || *desc.Version.Protocol != 47 {
		t.Errorf("unexpected protocol %v", desc.Version.Protocol)
	}
	if desc.PingEnabled() {
		t.Error("ping should be disabled")
	}
	if desc.Players == nil || len(desc.Players.Sample) != 1 {
		t.Fatal("expected one player sample")
	}
	if desc.Players.Sample[0].ID.String() != "4566e69f-c907-48ee-8d71-d7ba5aa00d20" {
		t.Errorf("unexpected sample id %s", desc.Players.Sample[0].ID)
	}
	if m, ok := desc.Description.(map[string]any); !ok || m["text"] != "hello" {
		t.Errorf("unexpected description %#v", desc.Description)
	}
}

func TestParse_Defaults(t *testing.T) {
	table, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if table.Address() != "0.0.0.0:25565" {
		t.Errorf("unexpected default address %s", table.Address())
	}
	if table.StatusDescriptor() != nil {
		t.Error("expected no status descriptor")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown field", data: "listen: 1\n"},
		{name: "missing destination", data: "servers:\n  - host: a.com\n"},
		{name: "destination without port", data: "servers:\n  - destination: a.com\n"},
		{name: "malformed yaml", data: "servers: [\n"},
		{name: "port out of range", data: "servers:\n  - port: 70000\n    destination: a:1\n"},
		{name: "description with non-string keys", data: "status:\n  description:\n    1: one\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestStore_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(data string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
	}

	write("servers:\n  - host: a.com\n    destination: 127.0.0.1:1\n")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	snapshot := store.Load()

	write("servers:\n  - host: b.com\n    destination: 127.0.0.1:2\n")
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	if _, ok := snapshot.Resolve("a.com", 1); !ok {
		t.Error("old snapshot must keep resolving a.com")
	}
	if _, ok := store.Load().Resolve("b.com", 1); !ok {
		t.Error("new table should resolve b.com")
	}

	current := store.Load()
	write("servers: [\n")
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if store.Load() != current {
		t.Error("failed reload must keep the previous table")
	}
}
