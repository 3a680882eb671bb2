// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package watcher turns file system changes to the routing config into
// debounced reload signals.
//
// The directory holding the file is watched rather than the file itself, so
// editors that replace the file by rename keep triggering events. The first
// matching event arms a timer; events arriving before it fires are absorbed.
// When the timer fires one signal is sent on a channel with capacity one.
// If a signal is already pending the new one is dropped.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the delay between the first change and the reload signal.
const DefaultDebounce = 500 * time.Millisecond

var errEventsClosed = errors.New("watcher events channel closed")

// Watcher emits a signal after the watched file changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	name     string
	debounce time.Duration
	logger   *slog.Logger
	signals  chan struct{}
}

// New starts watching the directory containing path. Changes are observed
// from the moment New returns; Watch must run for signals to be delivered.
func New(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		fsw:      fsw,
		path:     abs,
		name:     filepath.Base(abs),
		debounce: debounce,
		logger:   logger,
		signals:  make(chan struct{}, 1),
	}, nil
}

// Signals returns the channel reload signals are delivered on.
func (w *Watcher) Signals() <-chan struct{} {
	return w.signals
}

// Watch processes file system events until ctx is cancelled. It closes the
// underlying watcher on return.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.fsw.Close()

	w.logger.Info("Config watcher started",
		slog.String("path", w.path),
		slog.Duration("debounce", w.debounce),
	)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Config watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errEventsClosed
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("Config file event",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)
			if fire == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			}

		case <-fire:
			fire = nil
			select {
			case w.signals <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errEventsClosed
			}
			w.logger.Warn("Config watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != w.name {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}
