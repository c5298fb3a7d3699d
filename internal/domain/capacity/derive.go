package capacity

import (
	"github.com/alem-hub/study-pace/internal/domain/persona"
)

// base - пять базовых значений персоны.
type base struct {
	tasks    int
	focus    int
	brk      int
	daily    int
	sessions int
}

// baseFor - таблица базовых значений. switch исчерпывающий: новая персона
// без строки здесь ловится тестом.
func baseFor(p persona.Persona) (base, bool) {
	switch p {
	case persona.LowFocusShortSession:
		return base{tasks: 4, focus: 20, brk: 5, daily: 120, sessions: 4}, true
	case persona.ExamSprinter:
		return base{tasks: 7, focus: 45, brk: 10, daily: 300, sessions: 6}, true
	case persona.BurnoutRecovery:
		return base{tasks: 3, focus: 25, brk: 10, daily: 90, sessions: 3}, true
	case persona.OverloadedJuggler:
		return base{tasks: 5, focus: 30, brk: 5, daily: 180, sessions: 5}, true
	case persona.Balanced:
		return base{tasks: 5, focus: 35, brk: 7, daily: 210, sessions: 5}, true
	}
	return base{tasks: 5, focus: 35, brk: 7, daily: 210, sessions: 5}, false
}

// Derive выводит лимиты из персоны и ответов.
//
// Шаги:
//  1. базовые значения персоны
//  2. правила по порядку: внимание, заявленная ёмкость, стабильность,
//     реакция на перегрузку, близость экзамена; у каждого свой пол или потолок
//  3. min/max фокуса из дефолта, затем глобальный clamp
//
// Буст экзамена никогда не увеличивает MaxDailyFocusMinutes.
func Derive(p persona.Persona, a persona.Answers) Capacity {
	b, _ := baseFor(p)

	// Внимание
	switch a.AttentionDiagnosis {
	case persona.DiagnosisConfirmed:
		b.tasks = decrease(b.tasks, 2, 2)
		b.focus = decrease(b.focus, 5, 15)
		b.brk = increase(b.brk, 2, 15)
	case persona.DiagnosisSuspected:
		b.focus = decrease(b.focus, 5, 15)
	}

	// Заявленная ёмкость полностью заменяет базовое значение персоны.
	if daily, ok := statedDailyMinutes(a.DailyFocusCapacity); ok {
		b.daily = daily
		fit := b.daily / max(b.focus, 1)
		b.sessions = min(b.sessions, max(1, fit))
	}

	// Стабильность
	switch a.ConsistencySpan {
	case persona.Consistency1to2Days:
		b.tasks = decrease(b.tasks, 1, 2)
		b.sessions = decrease(b.sessions, 1, 2)
	case persona.ConsistencyOver2Weeks:
		b.tasks = increase(b.tasks, 1, 8)
	}

	// Реакция на перегрузку
	switch a.OverloadResponse {
	case persona.OverloadShutDown, persona.OverloadAvoid:
		b.tasks = decrease(b.tasks, 1, 2)
		b.brk = increase(b.brk, 3, 15)
	case persona.OverloadPushThrough:
		b.daily = decrease(b.daily, 30, 60)
	}

	// Экзамен: больше задач и сессий, но не больше минут фокуса.
	if a.ExamImminent() {
		b.tasks = increase(b.tasks, 2, 10)
		b.sessions = increase(b.sessions, 1, 8)
	}

	c := Capacity{
		MaxTasksPerDay:            b.tasks,
		DefaultFocusMinutes:       b.focus,
		MinFocusMinutes:           b.focus / 2,
		MaxFocusMinutes:           b.focus * 2,
		DefaultBreakMinutes:       b.brk,
		MaxDailyFocusMinutes:      b.daily,
		RecommendedSessionsPerDay: b.sessions,
		Persona:                   p,
	}
	return c.Clamped()
}

// statedDailyMinutes переводит ответ о ёмкости в минуты.
func statedDailyMinutes(c persona.DailyFocusCapacity) (int, bool) {
	switch c {
	case persona.CapacityUnder1h:
		return 60, true
	case persona.Capacity1to2h:
		return 120, true
	case persona.Capacity2to4h:
		return 240, true
	case persona.CapacityOver4h:
		return 360, true
	}
	return 0, false
}

// decrease уменьшает v на d, но не ниже floor. Значение уже ниже пола
// правило не поднимает.
func decrease(v, d, floor int) int {
	if v <= floor {
		return v
	}
	return max(v-d, floor)
}

// increase увеличивает v на d, но не выше ceil. Значение уже выше потолка
// правило не опускает.
func increase(v, d, ceil int) int {
	if v >= ceil {
		return v
	}
	return min(v+d, ceil)
}
