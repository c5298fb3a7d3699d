package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/query"
	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/capacity"
	"github.com/alem-hub/study-pace/internal/domain/persona"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/internal/domain/task"
	"github.com/alem-hub/study-pace/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-pace/internal/infrastructure/syncqueue"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

const user = "22222222-2222-2222-2222-222222222222"

type env struct {
	store  *memory.Store
	queue  *syncqueue.Queue
	writer *resilience.Writer
	reader *query.CapacityReader
	clk    *clock.Fake
	cal    timeutil.Calendar
}

func newEnv() *env {
	store := memory.NewStore()
	q := syncqueue.New(syncqueue.NewMemoryStorage(), store, zap.NewNop(), syncqueue.Config{})
	return &env{
		store:  store,
		queue:  q,
		writer: resilience.NewWriter(store, resilience.NewPolicy(q, zap.NewNop()), zap.NewNop()),
		reader: query.NewCapacityReader(store, time.Minute),
		clk:    clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		cal:    timeutil.NewCalendar(time.UTC),
	}
}

func (e *env) seedCapacity(maxTasks int) {
	c := capacity.Derive(persona.Balanced, persona.Answers{})
	c.UserID = user
	c.MaxTasksPerDay = maxTasks
	e.store.Seed(backend.TableCapacity, c.ToRow())
}

func (e *env) seedTask(id, due string, completed bool) {
	e.store.Seed(backend.TableTasks, backend.Row{
		"id": id, "user_id": user, "title": "task " + id, "priority": "medium", "due_date": due, "completed": completed,
	})
}

func (e *env) task(t *testing.T, id string) task.Task {
	for _, r := range e.store.Rows(backend.TableTasks) {
		if r.String("id") == id {
			return task.FromRow(r)
		}
	}
	t.Fatalf("task %s not found", id)
	return task.Task{}
}

func (e *env) addTask() *AddTaskHandler {
	overrides := NewRecordOverrideHandler(e.store, e.reader, e.writer, e.clk, e.cal)
	return NewAddTaskHandler(e.store, e.reader, e.writer, overrides, e.clk, e.cal, zap.NewNop())
}

func (e *env) drain(t *testing.T) syncqueue.DrainReport {
	report, err := e.queue.Drain(context.Background())
	require.NoError(t, err)
	return report
}

// ══════════════════════════════════════════════════════════════════════════════
// ADD TASK / OVERRIDE
// ══════════════════════════════════════════════════════════════════════════════

func TestAddTask_LimitReachedThenOverride(t *testing.T) {
	e := newEnv()
	e.seedCapacity(3)
	for _, id := range []string{"t1", "t2", "t3"} {
		e.seedTask(id, "2025-03-10", false)
	}
	ctx := context.Background()

	status := query.NewGetCapacityStatusHandler(e.store, e.reader, e.clk, e.cal)
	ok, err := status.CanAddTask(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)

	today := e.cal.Today(e.clk.Now())
	h := e.addTask()

	res, err := h.Handle(ctx, AddTaskCommand{UserID: user, Title: "one more", DueDate: &today})
	require.Error(t, err)
	assert.True(t, shared.IsLimitReached(err))
	require.NotNil(t, res)
	assert.True(t, res.LimitReached)
	assert.Equal(t, []capacity.LimitOption{capacity.OptionReschedule, capacity.OptionReplace, capacity.OptionOverride}, res.Options)
	assert.Len(t, e.store.Rows(backend.TableTasks), 3, "nothing inserted")
	assert.Empty(t, e.store.Rows(backend.TableCapacityOverrides))

	reason := "exam tomorrow"
	res, err = h.Handle(ctx, AddTaskCommand{UserID: user, Title: "one more", DueDate: &today, Override: &OverrideChoice{Reason: &reason}})
	require.NoError(t, err)
	require.NotNil(t, res.Task)
	assert.NotEmpty(t, res.Task.ID)
	assert.Len(t, e.store.Rows(backend.TableTasks), 4)

	overrides := e.store.Rows(backend.TableCapacityOverrides)
	require.Len(t, overrides, 1)
	o := capacity.OverrideFromRow(overrides[0])
	assert.Equal(t, capacity.OverrideTaskLimit, o.Kind)
	assert.Equal(t, 3, o.OriginalLimit)
	assert.Equal(t, 4, o.AttemptedValue)
	require.NotNil(t, o.Reason)
	assert.Equal(t, reason, *o.Reason)
}

func TestRecordOverride_ThenInsert(t *testing.T) {
	e := newEnv()
	e.seedCapacity(3)
	for _, id := range []string{"t1", "t2", "t3"} {
		e.seedTask(id, "2025-03-10", false)
	}
	ctx := context.Background()

	res, err := NewRecordOverrideHandler(e.store, e.reader, e.writer, e.clk, e.cal).
		Handle(ctx, RecordOverrideCommand{UserID: user, Kind: capacity.OverrideTaskLimit})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Override.OriginalLimit)
	assert.Equal(t, 4, res.Override.AttemptedValue)
	assert.NotEmpty(t, res.Override.ID)

	_, err = e.store.Insert(ctx, backend.TableTasks, backend.Row{"user_id": user, "title": "extra", "due_date": "2025-03-10"})
	require.NoError(t, err)
	assert.Len(t, e.store.Rows(backend.TableCapacityOverrides), 1)

	_, err = NewRecordOverrideHandler(e.store, e.reader, e.writer, e.clk, e.cal).
		Handle(ctx, RecordOverrideCommand{UserID: user, Kind: "daily_limit"})
	assert.ErrorIs(t, err, shared.ErrInvalidOverride)
	assert.True(t, shared.IsValidation(err))
}

func TestAddTask_FutureTaskSkipsLimit(t *testing.T) {
	e := newEnv()
	e.seedCapacity(1)
	e.seedTask("t1", "2025-03-10", false)

	tomorrow := e.cal.Tomorrow(e.clk.Now())
	res, err := e.addTask().Handle(context.Background(), AddTaskCommand{
		UserID: user, Title: "later", DueDate: &tomorrow, Priority: task.PriorityHigh,
	})
	require.NoError(t, err)
	assert.False(t, res.LimitReached)
	assert.Equal(t, task.PriorityHigh, res.Task.Priority)
	require.NotNil(t, res.Task.DueDate)
	assert.True(t, res.Task.DueDate.Equal(tomorrow))
}

func TestAddTask_Validation(t *testing.T) {
	e := newEnv()
	_, err := e.addTask().Handle(context.Background(), AddTaskCommand{UserID: user, Priority: "urgent"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Empty(t, e.store.Rows(backend.TableTasks))
}

// ══════════════════════════════════════════════════════════════════════════════
// CAPACITY
// ══════════════════════════════════════════════════════════════════════════════

func seedProfile(t *testing.T, e *env, a persona.Answers) {
	p := &persona.Profile{UserID: user, Answers: a, Persona: persona.Classify(a), UpdatedAt: e.clk.Now()}
	row, err := p.ToRow()
	require.NoError(t, err)
	e.store.Seed(backend.TableProfiles, row)
}

func TestRecalculateCapacity_SavesDerivedLimits(t *testing.T) {
	e := newEnv()
	seedProfile(t, e, persona.Answers{FocusDifficulty: persona.FocusVeryHard})
	h := NewRecalculateCapacityHandler(e.store, e.reader, resilience.NewPolicy(nil, zap.NewNop()), e.clk, zap.NewNop())
	ctx := context.Background()

	res, err := h.Handle(ctx, RecalculateCapacityCommand{UserID: user})
	require.NoError(t, err)
	assert.Equal(t, persona.LowFocusShortSession, res.Capacity.Persona)
	assert.Equal(t, 4, res.Capacity.MaxTasksPerDay)
	assert.Equal(t, 20, res.Capacity.DefaultFocusMinutes)

	rows := e.store.Rows(backend.TableCapacity)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Int("max_tasks_per_day"))

	// Второй пересчёт обновляет ту же строку.
	_, err = h.Handle(ctx, RecalculateCapacityCommand{UserID: user})
	require.NoError(t, err)
	assert.Len(t, e.store.Rows(backend.TableCapacity), 1)
}

func TestRecalculateCapacity_FailureKeepsPreviousRow(t *testing.T) {
	e := newEnv()
	seedProfile(t, e, persona.Answers{FocusDifficulty: persona.FocusVeryHard})
	e.seedCapacity(7)
	e.store.FailWith(func(op, table string) error {
		if op == "update" && table == backend.TableCapacity {
			return shared.DatabaseError("update capacity", errors.New("deadlock detected"))
		}
		return nil
	})

	h := NewRecalculateCapacityHandler(e.store, e.reader, resilience.NewPolicy(nil, zap.NewNop()), e.clk, zap.NewNop())
	res, err := h.Handle(context.Background(), RecalculateCapacityCommand{UserID: user})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 7, res.Capacity.MaxTasksPerDay)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, resilience.MsgGenericMedium, res.Notices[0].Message)

	rows := e.store.Rows(backend.TableCapacity)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].Int("max_tasks_per_day"))
}

func TestRecalculateCapacity_NoProfile(t *testing.T) {
	e := newEnv()
	h := NewRecalculateCapacityHandler(e.store, e.reader, resilience.NewPolicy(nil, zap.NewNop()), e.clk, zap.NewNop())
	_, err := h.Handle(context.Background(), RecalculateCapacityCommand{UserID: user})
	assert.ErrorIs(t, err, shared.ErrProfileNotFound)
}

func TestUpdateCapacity(t *testing.T) {
	intp := func(v int) *int { return &v }
	ctx := context.Background()

	t.Run("updates configured row", func(t *testing.T) {
		e := newEnv()
		e.seedCapacity(5)
		h := NewUpdateCapacityHandler(e.reader, e.writer, e.clk)

		res, err := h.Handle(ctx, UpdateCapacityCommand{UserID: user, Patch: capacity.Patch{MaxTasksPerDay: intp(8)}})
		require.NoError(t, err)
		assert.Equal(t, 8, res.Capacity.MaxTasksPerDay)
		assert.Equal(t, 8, e.store.Rows(backend.TableCapacity)[0].Int("max_tasks_per_day"))

		c, err := e.reader.Get(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, 8, c.MaxTasksPerDay)
	})

	t.Run("inserts when unconfigured", func(t *testing.T) {
		e := newEnv()
		h := NewUpdateCapacityHandler(e.reader, e.writer, e.clk)

		_, err := h.Handle(ctx, UpdateCapacityCommand{UserID: user, Patch: capacity.Patch{DefaultBreakMinutes: intp(12)}})
		require.NoError(t, err)
		rows := e.store.Rows(backend.TableCapacity)
		require.Len(t, rows, 1)
		assert.Equal(t, 12, rows[0].Int("default_break_minutes"))
	})

	t.Run("rejects out of range and broken focus order", func(t *testing.T) {
		e := newEnv()
		e.seedCapacity(5)
		h := NewUpdateCapacityHandler(e.reader, e.writer, e.clk)

		for _, p := range []capacity.Patch{
			{MaxTasksPerDay: intp(11)},
			{MinFocusMinutes: intp(40), DefaultFocusMinutes: intp(30)},
			{},
		} {
			_, err := h.Handle(ctx, UpdateCapacityCommand{UserID: user, Patch: p})
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		}
		assert.Equal(t, 5, e.store.Rows(backend.TableCapacity)[0].Int("max_tasks_per_day"))
		n, _ := e.queue.Len(ctx)
		assert.Zero(t, n, "validation failures are never queued")
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSED TASKS
// ══════════════════════════════════════════════════════════════════════════════

func TestRescheduleTask(t *testing.T) {
	e := newEnv()
	e.seedTask("late", "2025-03-07", false)
	h := NewRescheduleTaskHandler(e.writer, e.clk, e.cal, zap.NewNop())
	ctx := context.Background()

	res, err := h.Handle(ctx, TaskCommand{UserID: user, TaskID: "late"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", res.DueDate)
	assert.True(t, e.task(t, "late").DueDate.Equal(timeutil.Date(2025, 3, 10)))

	audit := e.store.Rows(backend.TableMissedTaskReasons)
	require.Len(t, audit, 1)
	assert.Equal(t, "rescheduled", audit[0].String("reason"))
	assert.Equal(t, "late", audit[0].String("task_id"))

	_, err = h.Handle(ctx, TaskCommand{UserID: user, TaskID: "missing"})
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)
}

func TestSkipTask(t *testing.T) {
	e := newEnv()
	e.seedTask("late", "2025-03-07", false)
	h := NewSkipTaskHandler(e.writer, e.clk, e.cal, zap.NewNop())
	ctx := context.Background()

	_, err := h.Handle(ctx, SkipTaskCommand{TaskCommand: TaskCommand{UserID: user, TaskID: "late"}, Reason: "bored"})
	assert.ErrorIs(t, err, shared.ErrInvalidSkip)
	assert.False(t, e.task(t, "late").Completed)
	assert.Empty(t, e.store.Rows(backend.TableMissedTaskReasons))

	res, err := h.Handle(ctx, SkipTaskCommand{TaskCommand: TaskCommand{UserID: user, TaskID: "late"}, Reason: task.SkipNoTime})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.True(t, e.task(t, "late").Completed)

	audit := e.store.Rows(backend.TableMissedTaskReasons)
	require.Len(t, audit, 1)
	assert.Equal(t, "no_time", audit[0].String("reason"))
}

func TestSkipTask_OfflineIsQueuedAndReplayed(t *testing.T) {
	e := newEnv()
	e.seedTask("late", "2025-03-07", false)
	h := NewSkipTaskHandler(e.writer, e.clk, e.cal, zap.NewNop())
	ctx := context.Background()

	e.store.Offline()
	res, err := h.Handle(ctx, SkipTaskCommand{TaskCommand: TaskCommand{UserID: user, TaskID: "late"}, Reason: task.SkipTooDifficult})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, resilience.MsgSavedLocally, res.Notices[0].Message)

	e.store.Online()
	assert.False(t, e.task(t, "late").Completed)

	report := e.drain(t)
	assert.Equal(t, 2, report.Succeeded)
	assert.True(t, e.task(t, "late").Completed)
	assert.Len(t, e.store.Rows(backend.TableMissedTaskReasons), 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// TODAY
// ══════════════════════════════════════════════════════════════════════════════

func TestToggleTask_RecordsStreak(t *testing.T) {
	e := newEnv()
	e.seedTask("a", "2025-03-10", false)
	e.seedTask("b", "2025-03-11", false)
	streaks := NewStreakRecorder(e.store, e.writer, e.clk, zap.NewNop())
	h := NewToggleTaskHandler(e.store, e.writer, streaks, e.clk, e.cal, zap.NewNop())
	ctx := context.Background()

	res, err := h.Handle(ctx, TaskCommand{UserID: user, TaskID: "a"})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.NotNil(t, e.task(t, "a").CompletedAt)

	res, err = h.Handle(ctx, TaskCommand{UserID: user, TaskID: "a"})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Nil(t, e.task(t, "a").CompletedAt)

	e.clk.Advance(24 * time.Hour)
	res, err = h.Handle(ctx, TaskCommand{UserID: user, TaskID: "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CurrentStreak)

	rows := e.store.Rows(backend.TableUserStreaks)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Int("current_streak"))
	assert.Equal(t, 2, rows[0].Int("longest_streak"))

	_, err = h.Handle(ctx, TaskCommand{UserID: user, TaskID: "missing"})
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)
}

func TestDismissSuggestion_SnoozesToTomorrow(t *testing.T) {
	e := newEnv()
	e.seedTask("a", "2025-03-10", false)

	res, err := NewDismissSuggestionHandler(e.writer, e.clk, e.cal, zap.NewNop()).
		Handle(context.Background(), TaskCommand{UserID: user, TaskID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", res.DueDate)
	assert.True(t, e.task(t, "a").DueDate.Equal(timeutil.Date(2025, 3, 11)))
}

// ══════════════════════════════════════════════════════════════════════════════
// FOCUS SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordFocusSession(t *testing.T) {
	e := newEnv()
	streaks := NewStreakRecorder(e.store, e.writer, e.clk, zap.NewNop())
	h := NewRecordFocusSessionHandler(e.writer, streaks, e.clk, e.cal, zap.NewNop())
	ctx := context.Background()

	for _, d := range []int{0, -5, 181} {
		res, err := h.Handle(ctx, RecordFocusSessionCommand{UserID: user, DurationMinutes: d})
		require.Error(t, err, "duration %d", d)
		assert.True(t, shared.IsValidation(err))
		require.Len(t, res.Notices, 1)
		assert.Equal(t, MsgInvalidDuration, res.Notices[0].Message)
	}
	assert.Empty(t, e.store.Rows(backend.TableFocusSessions))
	n, _ := e.queue.Len(ctx)
	assert.Zero(t, n)

	res, err := h.Handle(ctx, RecordFocusSessionCommand{UserID: user, TaskID: "t1", DurationMinutes: 25})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "2025-03-10", res.SessionDate)
	assert.Equal(t, 1, res.CurrentStreak)

	usage, err := query.LoadUsage(ctx, e.store, user, e.cal.Today(e.clk.Now()))
	require.NoError(t, err)
	assert.Equal(t, 25, usage.FocusMinutes)
}

func TestRecordFocusSession_OfflineQueues(t *testing.T) {
	e := newEnv()
	h := NewRecordFocusSessionHandler(e.writer, NewStreakRecorder(e.store, e.writer, e.clk, zap.NewNop()), e.clk, e.cal, zap.NewNop())
	ctx := context.Background()

	e.store.Offline()
	res, err := h.Handle(ctx, RecordFocusSessionCommand{UserID: user, DurationMinutes: 45})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Empty(t, res.SessionID)

	e.store.Online()
	report := e.drain(t)
	assert.Equal(t, 1, report.Succeeded)

	rows := e.store.Rows(backend.TableFocusSessions)
	require.Len(t, rows, 1)
	assert.Equal(t, 45, rows[0].Int("duration_minutes"))
	assert.Equal(t, "2025-03-10", rows[0].String("session_date"))
}
