package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/capacity"
	"github.com/alem-hub/study-pace/internal/domain/persona"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CAPACITY READER
// Кэширует лимиты студента в памяти процесса. Кэш не авторитетен:
// запись можно потерять в любой момент, источник истины - таблица capacity.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCapacityTTL - время жизни записи в кэше по умолчанию.
const DefaultCapacityTTL = 5 * time.Minute

// CapacityReader читает лимиты через кэш go-cache.
type CapacityReader struct {
	store backend.Store
	cache *gocache.Cache
}

// NewCapacityReader создаёт читателя. ttl <= 0 означает DefaultCapacityTTL.
func NewCapacityReader(store backend.Store, ttl time.Duration) *CapacityReader {
	if ttl <= 0 {
		ttl = DefaultCapacityTTL
	}
	return &CapacityReader{
		store: store,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get возвращает сохранённые лимиты или ErrCapacityNotFound.
func (r *CapacityReader) Get(ctx context.Context, userID string) (capacity.Capacity, error) {
	if v, ok := r.cache.Get(userID); ok {
		return v.(capacity.Capacity), nil
	}

	rows, err := r.store.Select(ctx, backend.Query{
		Table: backend.TableCapacity,
		Where: []backend.Cond{backend.Eq("user_id", userID)},
		Limit: 1,
	})
	if err != nil {
		return capacity.Capacity{}, fmt.Errorf("load capacity: %w", err)
	}
	if len(rows) == 0 {
		return capacity.Capacity{}, shared.ErrCapacityNotFound
	}

	c := capacity.FromRow(rows[0])
	r.cache.SetDefault(userID, c)
	return c, nil
}

// GetOrDefault возвращает сохранённые лимиты, а если их ещё нет -
// лимиты сбалансированной персоны. Второе значение false для дефолта.
func (r *CapacityReader) GetOrDefault(ctx context.Context, userID string) (capacity.Capacity, bool, error) {
	c, err := r.Get(ctx, userID)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, shared.ErrCapacityNotFound) {
		return capacity.Capacity{}, false, err
	}

	c = capacity.Derive(persona.Balanced, persona.Answers{})
	c.UserID = userID
	return c, false, nil
}

// Put кладёт свежие лимиты в кэш после записи.
func (r *CapacityReader) Put(c capacity.Capacity) {
	r.cache.SetDefault(c.UserID, c)
}

// Invalidate удаляет запись из кэша.
func (r *CapacityReader) Invalidate(userID string) {
	r.cache.Delete(userID)
}

// ══════════════════════════════════════════════════════════════════════════════
// USAGE
// ══════════════════════════════════════════════════════════════════════════════

// LoadUsage считает невыполненные задачи на сегодня и минуты фокуса
// сегодняшних сессий. Выполненные задачи в лимит не входят.
func LoadUsage(ctx context.Context, store backend.Store, userID string, today time.Time) (capacity.Usage, error) {
	day := timeutil.FormatDateStr(today)

	count, err := store.Count(ctx, backend.TableTasks, []backend.Cond{
		backend.Eq("user_id", userID),
		backend.Eq("due_date", day),
		backend.Eq("completed", false),
	})
	if err != nil {
		return capacity.Usage{}, fmt.Errorf("count today's tasks: %w", err)
	}

	sessions, err := store.Select(ctx, backend.Query{
		Table: backend.TableFocusSessions,
		Where: []backend.Cond{
			backend.Eq("user_id", userID),
			backend.Eq("session_date", day),
		},
	})
	if err != nil {
		return capacity.Usage{}, fmt.Errorf("load today's focus sessions: %w", err)
	}

	minutes := 0
	for _, s := range sessions {
		minutes += s.Int("duration_minutes")
	}
	return capacity.Usage{TaskCount: count, FocusMinutes: minutes}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET CAPACITY STATUS QUERY
// Лимиты, сегодняшнее использование и можно ли добавить ещё задачу.
// ══════════════════════════════════════════════════════════════════════════════

// GetCapacityStatusQuery - параметры запроса.
type GetCapacityStatusQuery struct {
	UserID string
}

// Validate проверяет параметры.
func (q GetCapacityStatusQuery) Validate() error {
	if q.UserID == "" {
		return shared.InvalidField("GetCapacityStatus", "user_id", "user is required")
	}
	return nil
}

// CapacityStatusResult - ответ на запрос.
type CapacityStatusResult struct {
	// Capacity - действующие лимиты.
	Capacity capacity.Capacity `json:"capacity"`

	// Configured - false, если лимиты ещё не сохранялись и показан дефолт.
	Configured bool `json:"configured"`

	// Usage - сегодняшнее использование.
	Usage capacity.Usage `json:"usage"`

	// CanAddTask - рекомендация, а не запрет.
	CanAddTask bool `json:"can_add_task"`

	RemainingTasks        int `json:"remaining_tasks"`
	RemainingFocusMinutes int `json:"remaining_focus_minutes"`
}

// GetCapacityStatusHandler обрабатывает запрос статуса лимитов.
type GetCapacityStatusHandler struct {
	store  backend.Store
	reader *CapacityReader
	clock  clock.Clock
	cal    timeutil.Calendar
}

// NewGetCapacityStatusHandler создаёт обработчик.
func NewGetCapacityStatusHandler(store backend.Store, reader *CapacityReader, clk clock.Clock, cal timeutil.Calendar) *GetCapacityStatusHandler {
	return &GetCapacityStatusHandler{store: store, reader: reader, clock: clk, cal: cal}
}

// Handle выполняет запрос.
func (h *GetCapacityStatusHandler) Handle(ctx context.Context, query GetCapacityStatusQuery) (*CapacityStatusResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	c, configured, err := h.reader.GetOrDefault(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	usage, err := LoadUsage(ctx, h.store, query.UserID, h.cal.Today(h.clock.Now()))
	if err != nil {
		return nil, err
	}

	return &CapacityStatusResult{
		Capacity:              c,
		Configured:            configured,
		Usage:                 usage,
		CanAddTask:            c.CanAddTask(usage),
		RemainingTasks:        max(0, c.MaxTasksPerDay-usage.TaskCount),
		RemainingFocusMinutes: c.RemainingFocusMinutes(usage),
	}, nil
}

// CanAddTask - короткая форма: есть ли место под ещё одну задачу сегодня.
func (h *GetCapacityStatusHandler) CanAddTask(ctx context.Context, userID string) (bool, error) {
	res, err := h.Handle(ctx, GetCapacityStatusQuery{UserID: userID})
	if err != nil {
		return false, err
	}
	return res.CanAddTask, nil
}
