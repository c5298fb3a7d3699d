// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
	"github.com/alem-hub/study-pace/internal/domain/task"
	"github.com/alem-hub/study-pace/pkg/clock"
	"github.com/alem-hub/study-pace/pkg/logger"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SMART TODAY QUERY
// Собирает задачи на сегодня из четырёх источников по очереди:
// экзамен, просроченные, высокий приоритет, ближайшие по сроку.
// Задача попадает в список один раз - из первого источника, где встретилась.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMaxSuggestions - размер списка по умолчанию.
const DefaultMaxSuggestions = 8

// MsgTodayUnavailable - предупреждение, когда список собрать не удалось.
const MsgTodayUnavailable = "Couldn't load today's suggestions. Pull to refresh in a moment."

// GetSmartTodayQuery содержит параметры запроса.
type GetSmartTodayQuery struct {
	// UserID - владелец задач.
	UserID string

	// MaxSuggestions - длина списка (0 = по умолчанию).
	MaxSuggestions int
}

// Validate проверяет параметры и подставляет значения по умолчанию.
func (q *GetSmartTodayQuery) Validate() error {
	if q.UserID == "" {
		return shared.InvalidField("GetSmartToday", "user_id", "user is required")
	}
	if q.MaxSuggestions < 0 {
		return shared.InvalidField("GetSmartToday", "max_suggestions", "max suggestions cannot be negative")
	}
	if q.MaxSuggestions == 0 {
		q.MaxSuggestions = DefaultMaxSuggestions
	}
	return nil
}

// SuggestionDTO - одна рекомендация.
type SuggestionDTO struct {
	TaskID   string      `json:"task_id"`
	Title    string      `json:"title"`
	DueDate  string      `json:"due_date,omitempty"`
	Priority string      `json:"priority"`
	Reason   task.Reason `json:"reason"`
	Score    int         `json:"score"`
}

// SmartTodayResult - результат ранжирования.
type SmartTodayResult struct {
	// Suggestions - отсортированный список, не длиннее MaxSuggestions.
	Suggestions []task.Suggestion `json:"-"`

	// Items - то же в виде DTO.
	Items []SuggestionDTO `json:"suggestions"`

	// TotalPending - все невыполненные задачи, а не только попавшие в список.
	TotalPending int `json:"total_pending"`

	// ExamDaysAway - дней до активного экзамена; nil, если экзамена нет
	// или он дальше недели. Отрицательное значение - экзамен уже прошёл.
	ExamDaysAway *int `json:"exam_days_away"`

	// Notices - сообщения для показа студенту.
	Notices []resilience.Notice `json:"notices,omitempty"`
}

// RankingObserver получает замеры ранжирования.
type RankingObserver interface {
	ObserveRanking(d time.Duration, suggestions int)
	RankingFailed()
}

// GetSmartTodayHandler обрабатывает запрос "Smart Today".
type GetSmartTodayHandler struct {
	store    backend.Store
	policy   *resilience.Policy
	clock    clock.Clock
	cal      timeutil.Calendar
	log      *zap.Logger
	observer RankingObserver
}

// NewGetSmartTodayHandler создаёт обработчик. observer может быть nil.
func NewGetSmartTodayHandler(
	store backend.Store,
	policy *resilience.Policy,
	clk clock.Clock,
	cal timeutil.Calendar,
	log *zap.Logger,
	observer RankingObserver,
) *GetSmartTodayHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &GetSmartTodayHandler{
		store:    store,
		policy:   policy,
		clock:    clk,
		cal:      cal,
		log:      log.With(logger.Component("smart_today")),
		observer: observer,
	}
}

// Handle выполняет запрос. Ошибка бэкенда не возвращается наружу:
// результат пустой, а в Notices лежит предупреждение.
func (h *GetSmartTodayHandler) Handle(ctx context.Context, query GetSmartTodayQuery) (*SmartTodayResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := h.rank(ctx, query)
	if err != nil {
		if h.observer != nil {
			h.observer.RankingFailed()
		}
		return h.failed(ctx, err), nil
	}

	if h.observer != nil {
		h.observer.ObserveRanking(time.Since(start), len(res.Suggestions))
	}
	h.log.Debug("ranked suggestions",
		logger.UserID(query.UserID),
		zap.Int("suggestions", len(res.Suggestions)),
		zap.Int("total_pending", res.TotalPending),
	)
	return res, nil
}

func (h *GetSmartTodayHandler) failed(ctx context.Context, err error) *SmartTodayResult {
	res := &SmartTodayResult{Suggestions: []task.Suggestion{}, Items: []SuggestionDTO{}}

	var out resilience.Outcome
	if h.policy != nil {
		out = h.policy.Handle(ctx, err, resilience.Options{Op: "GetSmartToday"})
	}
	for _, n := range out.Notices {
		if n.Type == resilience.NoticeWarning {
			res.Notices = append(res.Notices, n)
		}
	}
	if len(res.Notices) == 0 {
		res.Notices = append(res.Notices, resilience.WarningNotice(MsgTodayUnavailable))
	}
	return res
}

// candidates накапливает рекомендации в порядке генерации.
type candidates struct {
	seen  map[string]bool
	items []task.Suggestion
}

func (c *candidates) add(t task.Task, reason task.Reason, score int) {
	if c.seen[t.ID] {
		return
	}
	c.seen[t.ID] = true
	c.items = append(c.items, task.Suggestion{Task: t, Reason: reason, Priority: score})
}

func (h *GetSmartTodayHandler) rank(ctx context.Context, query GetSmartTodayQuery) (*SmartTodayResult, error) {
	today := h.cal.Today(h.clock.Now())
	todayStr := timeutil.FormatDateStr(today)
	pending := []backend.Cond{
		backend.Eq("user_id", query.UserID),
		backend.Eq("completed", false),
	}
	byDue := []backend.Order{{Column: "due_date"}, {Column: "created_at"}}

	cands := &candidates{seen: make(map[string]bool)}
	res := &SmartTodayResult{}

	// 1. Экзамен в пределах недели
	exam, found, err := h.activeExam(ctx, query.UserID)
	if err != nil {
		return nil, err
	}
	if found {
		days := exam.DaysAway(today)
		if days <= task.ExamWindowDays {
			res.ExamDaysAway = &days
		}
		if task.InExamWindow(days) {
			linked, err := h.examTasks(ctx, exam.ID, pending, byDue)
			if err != nil {
				return nil, err
			}
			for _, t := range linked {
				cands.add(t, task.ReasonExamPrep, task.ExamScore(days))
			}
		}
	}

	// 2. Просроченные
	overdue, err := h.tasks(ctx, backend.Query{
		Table:   backend.TableTasks,
		Where:   append(clone(pending), backend.Lt("due_date", todayStr)),
		OrderBy: byDue,
	})
	if err != nil {
		return nil, err
	}
	for _, t := range overdue {
		cands.add(t, task.ReasonOverdue, task.OverdueScore)
	}

	// 3. Высокий приоритет
	high, err := h.tasks(ctx, backend.Query{
		Table:   backend.TableTasks,
		Where:   append(clone(pending), backend.Eq("priority", string(task.PriorityHigh))),
		OrderBy: byDue,
	})
	if err != nil {
		return nil, err
	}
	for _, t := range high {
		cands.add(t, task.ReasonHighPriority, task.HighPriorityScore)
	}

	// 4. Сегодня и позже, по возрастанию срока
	upcoming, err := h.tasks(ctx, backend.Query{
		Table:   backend.TableTasks,
		Where:   append(clone(pending), backend.Gte("due_date", todayStr)),
		OrderBy: byDue,
	})
	if err != nil {
		return nil, err
	}
	for _, t := range upcoming {
		days := 0
		if t.DueDate != nil {
			days = timeutil.DaysBetween(today, *t.DueDate)
		}
		cands.add(t, task.ReasonUpcoming, task.UpcomingScore(days))
	}

	// 5. Стабильная сортировка: при равном счёте сохраняется порядок источников
	sort.SliceStable(cands.items, func(i, j int) bool {
		return cands.items[i].Priority > cands.items[j].Priority
	})

	// 6. Обрезка
	if len(cands.items) > query.MaxSuggestions {
		cands.items = cands.items[:query.MaxSuggestions]
	}

	total, err := h.store.Count(ctx, backend.TableTasks, pending)
	if err != nil {
		return nil, fmt.Errorf("count pending tasks: %w", err)
	}

	res.Suggestions = cands.items
	res.Items = toSuggestionDTOs(cands.items)
	res.TotalPending = total
	return res, nil
}

func (h *GetSmartTodayHandler) activeExam(ctx context.Context, userID string) (task.ExamMode, bool, error) {
	rows, err := h.store.Select(ctx, backend.Query{
		Table: backend.TableExamModes,
		Where: []backend.Cond{
			backend.Eq("user_id", userID),
			backend.Eq("is_active", true),
		},
		OrderBy: []backend.Order{{Column: "exam_date"}},
		Limit:   1,
	})
	if err != nil {
		return task.ExamMode{}, false, fmt.Errorf("load active exam: %w", err)
	}
	if len(rows) == 0 {
		return task.ExamMode{}, false, nil
	}
	return task.ExamModeFromRow(rows[0]), true, nil
}

func (h *GetSmartTodayHandler) examTasks(ctx context.Context, examID string, pending []backend.Cond, order []backend.Order) ([]task.Task, error) {
	links, err := h.store.Select(ctx, backend.Query{
		Table: backend.TableExamModeTasks,
		Where: []backend.Cond{backend.Eq("exam_mode_id", examID)},
	})
	if err != nil {
		return nil, fmt.Errorf("load exam tasks: %w", err)
	}
	if len(links) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.String("task_id"))
	}
	return h.tasks(ctx, backend.Query{
		Table:   backend.TableTasks,
		Where:   append(clone(pending), backend.In("id", ids...)),
		OrderBy: order,
	})
}

func (h *GetSmartTodayHandler) tasks(ctx context.Context, q backend.Query) ([]task.Task, error) {
	rows, err := h.store.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return task.FromRows(rows), nil
}

func clone(conds []backend.Cond) []backend.Cond {
	out := make([]backend.Cond, len(conds), len(conds)+1)
	copy(out, conds)
	return out
}

func toSuggestionDTOs(items []task.Suggestion) []SuggestionDTO {
	out := make([]SuggestionDTO, 0, len(items))
	for _, s := range items {
		dto := SuggestionDTO{
			TaskID:   s.Task.ID,
			Title:    s.Task.Title,
			Priority: string(s.Task.Priority),
			Reason:   s.Reason,
			Score:    s.Priority,
		}
		if s.Task.DueDate != nil {
			dto.DueDate = timeutil.FormatDateStr(*s.Task.DueDate)
		}
		out = append(out, dto)
	}
	return out
}
