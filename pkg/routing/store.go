// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"sync/atomic"
)

// Store holds the current routing table. Readers take a snapshot with Load
// and keep it for the lifetime of a connection; Reload swaps in a new table
// without touching snapshots already handed out.
type Store struct {
	path    string
	current atomic.Pointer[Table]
}

// NewStore loads path and returns a store holding the result.
func NewStore(path string) (*Store, error) {
	t, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(t)
	return s, nil
}

// NewStaticStore returns a store holding t that cannot be reloaded from disk.
func NewStaticStore(t *Table) *Store {
	s := &Store{}
	s.current.Store(t)
	return s
}

// Load returns the current table.
func (s *Store) Load() *Table {
	return s.current.Load()
}

// Swap installs t as the current table.
func (s *Store) Swap(t *Table) {
	s.current.Store(t)
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the backing file. On failure the previous table stays in
// effect and the error is returned.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	t, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(t)
	return nil
}
