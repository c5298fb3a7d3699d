package syncqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/pkg/clock"
)

var errOffline = errors.New("dial tcp: connection refused")

// flakyStore fails the first failures[table] inserts for each table.
type flakyStore struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	inserted []backend.Row
	gate     chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{failures: map[string]int{}, calls: map[string]int{}}
}

func (s *flakyStore) Select(ctx context.Context, q backend.Query) ([]backend.Row, error) {
	return nil, nil
}

func (s *flakyStore) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[row.String("id")]++
	if s.failures[table] > 0 {
		s.failures[table]--
		return nil, errOffline
	}
	s.inserted = append(s.inserted, row)
	return row, nil
}

func (s *flakyStore) Update(ctx context.Context, table string, where []backend.Cond, set backend.Row) (backend.Row, error) {
	return s.Insert(ctx, table, set)
}

func (s *flakyStore) Count(ctx context.Context, table string, where []backend.Cond) (int, error) {
	return 0, nil
}

func (s *flakyStore) callsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

type countingObserver struct {
	enqueued, drained, failed, dropped, depth atomic.Int64
}

func (o *countingObserver) Enqueued()     { o.enqueued.Add(1) }
func (o *countingObserver) Drained(n int) { o.drained.Add(int64(n)) }
func (o *countingObserver) Failed(n int)  { o.failed.Add(int64(n)) }
func (o *countingObserver) Dropped(n int) { o.dropped.Add(int64(n)) }
func (o *countingObserver) Depth(n int)   { o.depth.Store(int64(n)) }

func newQueue(t *testing.T, store backend.Store, log *zap.Logger) (*Queue, *countingObserver) {
	t.Helper()
	obs := &countingObserver{}
	q := New(NewMemoryStorage(), store, log, Config{
		Clock:    clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		Observer: obs,
	})
	return q, obs
}

func focusWrite(id string) backend.Write {
	return backend.InsertWrite(backend.TableFocusSessions, backend.Row{"id": id, "user_id": "u1", "duration_minutes": 25})
}

func TestEnqueueThenDrain_RemovesItem(t *testing.T) {
	store := newFlakyStore()
	q, obs := newQueue(t, store, zap.NewNop())
	ctx := context.Background()

	item, err := q.Enqueue(ctx, focusWrite("f1"))
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Zero(t, item.RetryCount)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.Remaining)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, store.inserted, 1)
	assert.Equal(t, 25, store.inserted[0].Int("duration_minutes"))
	assert.EqualValues(t, 1, obs.enqueued.Load())
	assert.EqualValues(t, 1, obs.drained.Load())
	assert.EqualValues(t, 0, obs.depth.Load())
}

func TestDrain_FourFailuresThenSuccess(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newFlakyStore()
	store.failures[backend.TableFocusSessions] = 4
	q, obs := newQueue(t, store, zap.New(core))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, focusWrite("f1"))
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		report, err := q.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Retried)
		pending, _ := q.Pending(ctx)
		require.Len(t, pending, 1)
		assert.Equal(t, i, pending[0].RetryCount)
	}

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, report.Dropped)

	n, _ := q.Len(ctx)
	assert.Zero(t, n)
	assert.Zero(t, logs.Len(), "no drop warning")
	assert.EqualValues(t, 0, obs.dropped.Load())
}

func TestDrain_DropsAfterFiveFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newFlakyStore()
	store.failures[backend.TableFocusSessions] = 100
	q, obs := newQueue(t, store, zap.New(core))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, focusWrite("f1"))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := q.Drain(ctx)
		require.NoError(t, err)
	}

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, 5, report.Dropped[0].RetryCount)

	// A sixth pass has nothing to retry.
	report, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Equal(t, 5, store.callsFor("f1"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "queued write dropped after max retries", logs.All()[0].Message)
	assert.EqualValues(t, 1, obs.dropped.Load())
}

func TestDrain_ConcurrentCallsProcessEachItemOnce(t *testing.T) {
	store := newFlakyStore()
	q, _ := newQueue(t, store, zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, focusWrite(id))
		require.NoError(t, err)
	}

	store.gate = make(chan struct{})
	var wg sync.WaitGroup
	reports := make([]DrainReport, 8)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := q.Drain(ctx)
			assert.NoError(t, err)
			reports[i] = r
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, store.callsFor(id), "item %s", id)
	}
	n, _ := q.Len(ctx)
	assert.Zero(t, n)
}

func TestDrain_KeepsItemsEnqueuedDuringPass(t *testing.T) {
	store := newFlakyStore()
	q, _ := newQueue(t, store, zap.NewNop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, focusWrite("first"))
	require.NoError(t, err)

	store.gate = make(chan struct{})
	done := make(chan DrainReport)
	go func() {
		r, _ := q.Drain(ctx)
		done <- r
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = q.Enqueue(ctx, focusWrite("second"))
	require.NoError(t, err)
	close(store.gate)

	report := <-done
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Remaining)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "second", pending[0].Payload.Row.String("id"))
	assert.Zero(t, pending[0].RetryCount)
}

// ctxStorage fails once the context is done, like the sqlite and redis storages.
type ctxStorage struct {
	*MemoryStorage
}

func (s ctxStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return s.MemoryStorage.Get(ctx, key)
}

func (s ctxStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStorage.Set(ctx, key, value)
}

// cancelOnInsert cancels the drain's context after the first successful insert.
type cancelOnInsert struct {
	*flakyStore
	cancel context.CancelFunc
}

func (s *cancelOnInsert) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	out, err := s.flakyStore.Insert(ctx, table, row)
	if err == nil {
		s.cancel()
	}
	return out, err
}

func TestDrain_ContextEndsMidPass_KeepsResults(t *testing.T) {
	inner := newFlakyStore()
	inner.failures[backend.TableFocusSessions] = 1
	store := &cancelOnInsert{flakyStore: inner}
	q := New(ctxStorage{NewMemoryStorage()}, store, zap.NewNop(), Config{})

	for _, id := range []string{"failed", "applied", "untouched"} {
		_, err := q.Enqueue(context.Background(), focusWrite(id))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store.cancel = cancel
	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, 2, report.Remaining)

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	retries := map[string]int{}
	for _, item := range pending {
		retries[item.Payload.Row.String("id")] = item.RetryCount
	}
	assert.Equal(t, map[string]int{"failed": 1, "untouched": 0}, retries)

	store.cancel = func() {}
	report, err = q.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, inner.callsFor("applied"), "applied write is not replayed")
	assert.Len(t, inner.inserted, 3)
}

func TestCBORCodec_RoundTripsThroughQueue(t *testing.T) {
	codec, err := CodecByName("cbor")
	require.NoError(t, err)

	store := newFlakyStore()
	q := New(NewMemoryStorage(), store, nil, Config{Codec: codec})
	ctx := context.Background()

	due := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err = q.Enqueue(ctx, backend.UpdateWrite(backend.TableTasks,
		[]backend.Cond{backend.Eq("id", "t1")},
		backend.Row{"due_date": due, "completed": false, "attempts": 3},
	))
	require.NoError(t, err)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	row := pending[0].Payload.Row
	got, ok := row.Time("due_date")
	require.True(t, ok)
	assert.True(t, got.Equal(due))
	assert.Equal(t, 3, row.Int("attempts"))
	assert.False(t, row.Bool("completed"))
	assert.Equal(t, "t1", pending[0].Payload.Where[0].Value)

	_, err = CodecByName("xml")
	assert.Error(t, err)
}
