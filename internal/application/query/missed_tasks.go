package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/internal/domain/task"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MISSED TASKS QUERY
// Невыполненные задачи со сроком до сегодняшнего дня.
// Сначала самые старые, не больше MaxMissedTasks.
// ══════════════════════════════════════════════════════════════════════════════

// MaxMissedTasks - предел длины списка.
const MaxMissedTasks = 10

// GetMissedTasksQuery содержит параметры запроса.
type GetMissedTasksQuery struct {
	UserID string
}

// Validate проверяет параметры.
func (q GetMissedTasksQuery) Validate() error {
	if q.UserID == "" {
		return shared.InvalidField("GetMissedTasks", "user_id", "user is required")
	}
	return nil
}

// MissedTaskDTO - просроченная задача для показа.
type MissedTaskDTO struct {
	TaskID     string `json:"task_id"`
	Title      string `json:"title"`
	DueDate    string `json:"due_date"`
	Priority   string `json:"priority"`
	DaysMissed int    `json:"days_missed"`
}

// MissedTasksResult - результат запроса.
type MissedTasksResult struct {
	Tasks []task.MissedTask `json:"-"`
	Items []MissedTaskDTO   `json:"tasks"`
}

// GetMissedTasksHandler обрабатывает запрос.
type GetMissedTasksHandler struct {
	store backend.Store
	clock clock.Clock
	cal   timeutil.Calendar
}

// NewGetMissedTasksHandler создаёт обработчик.
func NewGetMissedTasksHandler(store backend.Store, clk clock.Clock, cal timeutil.Calendar) *GetMissedTasksHandler {
	return &GetMissedTasksHandler{store: store, clock: clk, cal: cal}
}

// Handle выполняет запрос.
func (h *GetMissedTasksHandler) Handle(ctx context.Context, query GetMissedTasksQuery) (*MissedTasksResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	today := h.cal.Today(now)

	rows, err := h.store.Select(ctx, backend.Query{
		Table: backend.TableTasks,
		Where: []backend.Cond{
			backend.Eq("user_id", query.UserID),
			backend.Eq("completed", false),
			backend.Lt("due_date", timeutil.FormatDateStr(today)),
		},
		OrderBy: []backend.Order{{Column: "due_date"}, {Column: "created_at"}},
		Limit:   MaxMissedTasks,
	})
	if err != nil {
		return nil, fmt.Errorf("load missed tasks: %w", err)
	}

	res := &MissedTasksResult{
		Tasks: make([]task.MissedTask, 0, len(rows)),
		Items: make([]MissedTaskDTO, 0, len(rows)),
	}
	for _, t := range task.FromRows(rows) {
		m := task.NewMissedTask(t, now, h.cal)
		res.Tasks = append(res.Tasks, m)

		dto := MissedTaskDTO{
			TaskID:     t.ID,
			Title:      t.Title,
			Priority:   string(t.Priority),
			DaysMissed: m.DaysMissed,
		}
		if t.DueDate != nil {
			dto.DueDate = timeutil.FormatDateStr(*t.DueDate)
		}
		res.Items = append(res.Items, dto)
	}
	return res, nil
}
