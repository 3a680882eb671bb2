// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package breaker guards backend dials with per-destination circuit breakers.
//
// A breaker opens after MaxFailures consecutive dial failures. While open,
// dials fail immediately with ErrCircuitOpen so that clients routed to a dead
// backend are disconnected without waiting for a dial timeout. After
// ResetTimeout one probe dial is let through; its result closes or reopens
// the breaker.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// MaxFailures is the number of consecutive failures before opening the circuit.
	MaxFailures int
	// ResetTimeout is how long to stay open before letting a probe through.
	ResetTimeout time.Duration
}

// StateFunc observes state transitions of the breaker for a backend.
type StateFunc func(backend string, from, to State)

// CircuitBreaker tracks dial health for a single backend.
type CircuitBreaker struct {
	mu       sync.Mutex
	backend  string
	config   Config
	state    State
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
	notify   StateFunc
}

// New creates a new circuit breaker for backend.
func New(backend string, config Config) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		backend: backend,
		config:  config,
		now:     time.Now,
	}
}

// Call runs fn unless the breaker is open and records its result.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.ResetTimeout {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return nil
	case StateHalfOpen:
		// One probe at a time.
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probing = false
		if err != nil {
			cb.trip()
			return
		}
		cb.failures = 0
		cb.setState(StateClosed)
		return
	}

	if err == nil {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.config.MaxFailures {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.notify != nil {
		cb.notify(cb.backend, from, to)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current count of consecutive failures.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Set holds one breaker per backend address, created on first use.
type Set struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*CircuitBreaker
	notify   StateFunc
}

// NewSet creates an empty breaker set. notify may be nil.
func NewSet(config Config, notify StateFunc) *Set {
	return &Set{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
		notify:   notify,
	}
}

// Get returns the breaker for backend.
func (s *Set) Get(backend string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[backend]
	if !ok {
		cb = New(backend, s.config)
		cb.notify = s.notify
		s.breakers[backend] = cb
	}
	return cb
}

// Call runs fn through the breaker for backend. A nil Set calls fn directly.
func (s *Set) Call(backend string, fn func() error) error {
	if s == nil {
		return fn()
	}
	return s.Get(backend).Call(fn)
}

// States returns a snapshot of every known backend's breaker state.
func (s *Set) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]State, len(s.breakers))
	for backend, cb := range s.breakers {
		out[backend] = cb.State()
	}
	return out
}
