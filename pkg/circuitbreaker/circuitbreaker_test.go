package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/study-pace/pkg/clock"
)

var errBackend = errors.New("dial tcp: connection refused")

func fail(ctx context.Context) error    { return errBackend }
func succeed(ctx context.Context) error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	var transitions []State
	cb := BackendBreaker(time.Minute, func(name string, from, to State) {
		transitions = append(transitions, to)
	}, WithClock(clk))

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBackend)
	}

	assert.True(t, cb.IsOpen())
	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestBreaker_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	cb := BackendBreaker(time.Minute, nil, WithClock(clk))

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	clk.Advance(61 * time.Second)

	assert.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	cb := BackendBreaker(time.Minute, nil, WithClock(clk))

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	clk.Advance(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)
}

func TestBreaker_IsFailureFiltersErrors(t *testing.T) {
	validation := errors.New("invalid input")
	cb := New("backend",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, validation) }),
	)

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return validation })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Counts().TotalSuccesses)
}

func TestBreaker_FallbackOnOpen(t *testing.T) {
	cb := New("backend", WithFailureThreshold(1))
	_ = cb.Execute(context.Background(), fail)

	called := false
	err := cb.ExecuteWithFallback(context.Background(), succeed, func(err error) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Counts().Requests)
}
