package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-pace/pkg/clock"
)

func TestDelay_PowersOfTwoSeconds(t *testing.T) {
	r := New()

	assert.Equal(t, 1*time.Second, r.Delay(0))
	assert.Equal(t, 2*time.Second, r.Delay(1))
	assert.Equal(t, 4*time.Second, r.Delay(2))
	assert.Equal(t, 8*time.Second, r.Delay(3))
	assert.Equal(t, 30*time.Second, r.Delay(10))
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("timeout"))
		}
		return nil
	}, WithClock(clk), WithMaxAttempts(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Sleeps())
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	clk := clock.NewFake(time.Now())
	boom := errors.New("connection refused")
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(boom)
	}, WithClock(clk), WithMaxAttempts(3))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, boom, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, clk.Sleeps(), 2)
}

func TestDo_DoesNotRetryPlainOrPermanentErrors(t *testing.T) {
	clk := clock.NewFake(time.Now())

	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("bad input")
	}, WithClock(clk))
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = RefreshRetrier(WithClock(clk)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("invalid"))
	})
	assert.EqualError(t, err, "invalid")
	assert.Equal(t, 1, calls)
	assert.Empty(t, clk.Sleeps())
}

func TestRefreshRetrier_RetriesAnyError(t *testing.T) {
	clk := clock.NewFake(time.Now())
	calls := 0

	err := RefreshRetrier(WithClock(clk)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("network unreachable")
	})

	assert.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clk.Sleeps())
}

func TestDo_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoWithData_ReturnsValue(t *testing.T) {
	clk := clock.NewFake(time.Now())
	calls := 0

	v, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errors.New("flaky"))
		}
		return 42, nil
	}, WithClock(clk))

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestOnRetry_ReceivesAttemptAndDelay(t *testing.T) {
	clk := clock.NewFake(time.Now())
	var attempts []int
	var delays []time.Duration

	_ = Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errors.New("again"))
	}, WithClock(clk), WithMaxAttempts(3), WithOnRetry(func(attempt int, err error, d time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, d)
	}))

	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}
