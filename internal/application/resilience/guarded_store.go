package resilience

import (
	"context"
	"errors"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/circuitbreaker"
)

// GuardedStore wraps a backend.Store with a circuit breaker. While the
// circuit is open calls fail fast with a network-category error, so writes
// are queued without waiting for a connection timeout.
type GuardedStore struct {
	inner   backend.Store
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedStore wraps inner. The breaker counts only network failures.
func NewGuardedStore(inner backend.Store, breaker *circuitbreaker.CircuitBreaker) *GuardedStore {
	return &GuardedStore{inner: inner, breaker: breaker}
}

// BreakerFailure is the failure predicate for breakers built for a
// GuardedStore.
func BreakerFailure(err error) bool {
	return IsNetwork(err)
}

// Select implements backend.Store.
func (g *GuardedStore) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	var rows []backend.Row
	err := g.run(ctx, "select "+q.Table, func(ctx context.Context) error {
		var err error
		rows, err = g.inner.Select(ctx, q)
		return err
	})
	return rows, err
}

// Insert implements backend.Store.
func (g *GuardedStore) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	var out backend.Row
	err := g.run(ctx, "insert "+table, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Insert(ctx, table, row)
		return err
	})
	return out, err
}

// Update implements backend.Store.
func (g *GuardedStore) Update(ctx context.Context, table string, where []backend.Cond, set backend.Row) (backend.Row, error) {
	var out backend.Row
	err := g.run(ctx, "update "+table, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Update(ctx, table, where, set)
		return err
	})
	return out, err
}

// Count implements backend.Store.
func (g *GuardedStore) Count(ctx context.Context, table string, where []backend.Cond) (int, error) {
	var n int
	err := g.run(ctx, "count "+table, func(ctx context.Context) error {
		var err error
		n, err = g.inner.Count(ctx, table, where)
		return err
	})
	return n, err
}

// Healthy reports whether the circuit lets calls through.
func (g *GuardedStore) Healthy() bool {
	return !g.breaker.IsOpen()
}

func (g *GuardedStore) run(ctx context.Context, op string, fn func(context.Context) error) error {
	err := g.breaker.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.NetworkError(op, err)
	}
	return err
}
