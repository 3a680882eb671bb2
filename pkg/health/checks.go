// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/absmach/mcproxy/pkg/breaker"
	"github.com/absmach/mcproxy/pkg/routing"
)

// ErrNoRoutingTable is reported while no routing table has been loaded.
var ErrNoRoutingTable = errors.New("routing table not loaded")

// RoutingTable checks that store holds a routing table.
func RoutingTable(store *routing.Store) CheckFunc {
	return func(context.Context) error {
		if store.Load() == nil {
			return ErrNoRoutingTable
		}
		return nil
	}
}

// Backends reports backends whose circuit breaker is open.
func Backends(set *breaker.Set) CheckFunc {
	return func(context.Context) error {
		var open []string
		for backend, state := range set.States() {
			if state == breaker.StateOpen {
				open = append(open, backend)
			}
		}
		if len(open) == 0 {
			return nil
		}
		sort.Strings(open)
		return fmt.Errorf("circuit open for %s", strings.Join(open, ", "))
	}
}
