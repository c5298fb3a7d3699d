package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-pace/internal/infrastructure/syncqueue"
)

type fakeDrainer struct {
	mu     sync.Mutex
	calls  int
	report syncqueue.DrainReport
	err    error
}

func (f *fakeDrainer) Drain(context.Context) (syncqueue.DrainReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.report, f.err
}

func (f *fakeDrainer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLock struct {
	free     bool
	released int
}

func (l *fakeLock) TryAcquire(context.Context) (bool, error) { return l.free, nil }
func (l *fakeLock) Release(context.Context) error {
	l.released++
	return nil
}

type noticeSpy struct {
	users   []string
	notices []resilience.Notice
}

func (s *noticeSpy) Notify(_ context.Context, userID string, n resilience.Notice) {
	s.users = append(s.users, userID)
	s.notices = append(s.notices, n)
}

type fakeProber struct{ err error }

func (p *fakeProber) Ping(context.Context) error { return p.err }

// ══════════════════════════════════════════════════════════════════════════════
// DRAIN
// ══════════════════════════════════════════════════════════════════════════════

func TestDrainJob_ReplaysQueue(t *testing.T) {
	store := memory.NewStore()
	q := syncqueue.New(syncqueue.NewMemoryStorage(), store, zap.NewNop(), syncqueue.Config{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, backend.InsertWrite(backend.TableFocusSessions, backend.Row{"user_id": "u1", "duration_minutes": 25}))
	require.NoError(t, err)

	job := NewDrainSyncQueueJob(q, nil, nil, zap.NewNop(), DrainSyncQueueConfig{})
	require.NoError(t, job.Run(ctx))

	assert.Len(t, store.Rows(backend.TableFocusSessions), 1)
	n, _ := q.Len(ctx)
	assert.Zero(t, n)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Report.Succeeded)
}

func TestDrainJob_NotifiesOwnersOfDroppedWrites(t *testing.T) {
	d := &fakeDrainer{report: syncqueue.DrainReport{
		Attempted: 2,
		Dropped: []syncqueue.Item{
			{ID: "a", Payload: backend.InsertWrite(backend.TableTasks, backend.Row{"user_id": "u1"})},
			{ID: "b", Payload: backend.UpdateWrite(backend.TableTasks,
				[]backend.Cond{backend.Eq("id", "t1"), backend.Eq("user_id", "u2")}, backend.Row{"completed": true})},
		},
	}}
	spy := &noticeSpy{}

	job := NewDrainSyncQueueJob(d, nil, spy, zap.NewNop(), DrainSyncQueueConfig{})
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []string{"u1", "u2"}, spy.users)
	for _, n := range spy.notices {
		assert.Equal(t, resilience.MsgSaveFailed, n.Message)
		assert.Equal(t, resilience.NoticeError, n.Type)
	}
}

func TestDrainJob_Lock(t *testing.T) {
	d := &fakeDrainer{}

	held := &fakeLock{free: false}
	job := NewDrainSyncQueueJob(d, held, nil, zap.NewNop(), DrainSyncQueueConfig{})
	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, d.Calls(), "another worker holds the lock")
	assert.True(t, job.LastStats().Skipped)

	free := &fakeLock{free: true}
	job = NewDrainSyncQueueJob(d, free, nil, zap.NewNop(), DrainSyncQueueConfig{})
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, 1, free.released)
}

func TestDrainJob_Error(t *testing.T) {
	d := &fakeDrainer{err: errors.New("storage unavailable")}
	job := NewDrainSyncQueueJob(d, nil, nil, zap.NewNop(), DrainSyncQueueConfig{Timeout: time.Second})
	assert.Error(t, job.Run(context.Background()))
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTIVITY
// ══════════════════════════════════════════════════════════════════════════════

func TestConnectivityWatch_DrainsOnReconnect(t *testing.T) {
	p := &fakeProber{}
	d := &fakeDrainer{}
	job := NewConnectivityWatchJob(p, d, zap.NewNop(), time.Second)
	ctx := context.Background()

	_, known := job.Online()
	assert.False(t, known)

	require.NoError(t, job.Run(ctx))
	online, known := job.Online()
	assert.True(t, known)
	assert.True(t, online)
	assert.Zero(t, d.Calls(), "first probe only records the state")

	p.err = errors.New("connection refused")
	require.NoError(t, job.Run(ctx))
	online, _ = job.Online()
	assert.False(t, online)
	require.NoError(t, job.Run(ctx))
	assert.Zero(t, d.Calls())

	p.err = nil
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, d.Calls(), "offline to online triggers one drain")

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, d.Calls(), "staying online does not drain")
}
