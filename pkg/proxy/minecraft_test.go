// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/mcproxy/pkg/handler"
	"github.com/absmach/mcproxy/pkg/parser/minecraft"
	"github.com/absmach/mcproxy/pkg/routing"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func TestNewMinecraft_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "servers:\n  - host: a\n")

	_, err := NewMinecraft(MinecraftConfig{ConfigPath: path}, &handler.NoopHandler{})
	var cfgErr *routing.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestMinecraftProxy_WatchReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	port := freePort(t)
	writeConfig(t, path, fmt.Sprintf("host: 127.0.0.1\nport: %d\nservers: []\n", port))

	p, err := NewMinecraft(MinecraftConfig{
		ConfigPath:     path,
		Watch:          true,
		ReloadDebounce: 50 * time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, &handler.NoopHandler{})
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Listen(ctx) }()

	// The bound address comes from the file.
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("proxy did not start listening on %s: %v", addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	writeConfig(t, path, fmt.Sprintf("host: 127.0.0.1\nport: %d\nservers:\n  - destination: 127.0.0.1:1\n", port))

	deadline = time.Now().Add(3 * time.Second)
	for len(p.Store().Load().Servers) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("routing table was not reloaded after the file changed")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("proxy did not stop")
	}
}

func TestMinecraftProxy_StatusWithoutBackends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	port := freePort(t)
	writeConfig(t, path, fmt.Sprintf(`
host: 127.0.0.1
port: %d
status:
  version:
    name: mcproxy
    protocol: 47
  description: hello
`, port))

	p, err := NewMinecraft(MinecraftConfig{
		ConfigPath: path,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Listen(ctx)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("proxy did not start: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	hs := minecraft.Handshake{Protocol: 47, Host: "anything", Port: uint16(port), Intent: minecraft.IntentStatus}
	if err := minecraft.WritePacket(conn, hs.Body()); err != nil {
		t.Fatalf("Failed to write handshake: %v", err)
	}
	if err := minecraft.WritePacket(conn, []byte{0x00}); err != nil {
		t.Fatalf("Failed to write status request: %v", err)
	}

	body, err := minecraft.ReadPacket(bufio.NewReader(conn), 0)
	if err != nil {
		t.Fatalf("Failed to read status response: %v", err)
	}
	want, _ := minecraft.StatusResponse(p.Store().Load().Status, nil)
	if got := minecraft.AppendPacket(nil, body); string(got) != string(want) {
		t.Errorf("unexpected status response:\n got %q\nwant %q", got, want)
	}
}
