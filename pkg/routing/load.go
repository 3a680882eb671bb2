// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 25565
)

// ErrMissingDestination is returned when a server entry has no destination.
var ErrMissingDestination = errors.New("missing destination")

// ConfigError reports a routing file that could not be read, parsed or validated.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads, decodes and validates the routing file at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read: %w", err)}
	}
	t, err := Parse(data)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return t, nil
}

// Parse decodes a routing table from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Table, error) {
	t := &Table{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	if t.Host == "" {
		t.Host = defaultHost
	}
	if t.Port == 0 {
		t.Port = defaultPort
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every entry names a usable host:port destination and
// that the status description can be rendered as JSON.
func (t *Table) Validate() error {
	for i, e := range t.Servers {
		if e.Destination == "" {
			return fmt.Errorf("servers[%d]: %w", i, ErrMissingDestination)
		}
		if _, _, err := net.SplitHostPort(e.Destination); err != nil {
			return fmt.Errorf("servers[%d]: invalid destination %q: %w", i, e.Destination, err)
		}
	}
	if t.Status != nil && t.Status.Description != nil {
		if _, err := json.Marshal(t.Status.Description); err != nil {
			return fmt.Errorf("status.description: %w", err)
		}
	}
	return nil
}

// Address returns the listen address in host:port form.
func (t *Table) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}
