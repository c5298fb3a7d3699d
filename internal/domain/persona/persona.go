// Package persona содержит ответы онбординга и классификацию студента
// по поведенческим персонам. Здесь нет внешних зависимостей.
package persona

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERSONA
// ══════════════════════════════════════════════════════════════════════════════

// Persona - закрытый набор поведенческих профилей.
type Persona string

const (
	// LowFocusShortSession - тяжело держать фокус, нужны короткие сессии.
	LowFocusShortSession Persona = "low_focus_short_session"
	// ExamSprinter - экзамен близко, студент хочет плотного ведения.
	ExamSprinter Persona = "exam_sprinter"
	// BurnoutRecovery - признаки выгорания или частого бросания.
	BurnoutRecovery Persona = "burnout_recovery"
	// OverloadedJuggler - хроническая перегрузка.
	OverloadedJuggler Persona = "overloaded_juggler"
	// Balanced - по умолчанию.
	Balanced Persona = "balanced"
)

// All возвращает все персоны в порядке приоритета правил.
func All() []Persona {
	return []Persona{LowFocusShortSession, ExamSprinter, BurnoutRecovery, OverloadedJuggler, Balanced}
}

// IsValid проверяет, что персона из закрытого набора.
func (p Persona) IsValid() bool {
	switch p {
	case LowFocusShortSession, ExamSprinter, BurnoutRecovery, OverloadedJuggler, Balanced:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление.
func (p Persona) String() string {
	return string(p)
}

// Parse разбирает строку; неизвестное значение даёт Balanced и false.
func Parse(s string) (Persona, bool) {
	p := Persona(s)
	if p.IsValid() {
		return p, true
	}
	return Balanced, false
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Classify определяет персону по ответам.
// Правила проверяются строго по порядку, побеждает первое совпадение:
//
//  1. тяжесть проблем с фокусом
//  2. близкий экзамен и запрос на сильное ведение
//  3. выгорание или частое бросание
//  4. хроническая перегрузка
//  5. Balanced
//
// Порядок важен: профиль, подходящий под несколько правил, получает персону
// самого раннего из них.
func Classify(a Answers) Persona {
	switch {
	case a.SevereAttentionIssue():
		return LowFocusShortSession
	case a.ExamImminent() && a.DesiredGuidance == GuidanceHigh:
		return ExamSprinter
	case a.EnergyAfterStudy == EnergyExhausted ||
		a.AbandonmentFrequency == AbandonOften ||
		a.AbandonmentFrequency == AbandonAlways:
		return BurnoutRecovery
	case a.Workload == WorkloadHeavy ||
		a.Workload == WorkloadOverwhelming ||
		a.OverloadResponse == OverloadShutDown:
		return OverloadedJuggler
	default:
		return Balanced
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile - ответы студента и производные от них персона и план.
// Меняется только через пайплайн классификации.
type Profile struct {
	// UserID - идентификатор владельца.
	UserID string

	// Answers - ответы онбординга.
	Answers Answers

	// Persona - производная от Answers.
	Persona Persona

	// SelectedPlanID - выбранный план.
	SelectedPlanID string

	// UpdatedAt - время последней классификации.
	UpdatedAt time.Time
}

// Reclassify пересчитывает персону после изменения ответов.
func (p *Profile) Reclassify(answers Answers, now time.Time) error {
	if err := answers.Validate(); err != nil {
		return err
	}
	p.Answers = answers
	p.Persona = Classify(answers)
	p.UpdatedAt = now
	return nil
}

// ToRow переводит профиль в строку таблицы profiles.
func (p *Profile) ToRow() (backend.Row, error) {
	answers, err := EncodeAnswers(p.Answers)
	if err != nil {
		return nil, err
	}
	row := backend.Row{
		"user_id":    p.UserID,
		"answers":    answers,
		"persona":    string(p.Persona),
		"updated_at": p.UpdatedAt,
	}
	if p.SelectedPlanID != "" {
		row["selected_plan_id"] = p.SelectedPlanID
	}
	return row, nil
}

// ProfileFromRow восстанавливает профиль. Неизвестная персона в строке
// заменяется результатом классификации ответов.
func ProfileFromRow(r backend.Row) (*Profile, error) {
	answers, err := DecodeAnswers(r["answers"])
	if err != nil {
		return nil, err
	}
	p, ok := Parse(r.String("persona"))
	if !ok {
		p = Classify(answers)
	}
	updated, _ := r.Time("updated_at")
	return &Profile{
		UserID:         r.String("user_id"),
		Answers:        answers,
		Persona:        p,
		SelectedPlanID: r.String("selected_plan_id"),
		UpdatedAt:      updated,
	}, nil
}

// EncodeAnswers сериализует ответы для колонки profiles.answers.
func EncodeAnswers(a Answers) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}
	return string(data), nil
}

// DecodeAnswers принимает значение колонки answers: строку JSON, байты
// или уже разобранную карту (jsonb из pgx).
func DecodeAnswers(v any) (Answers, error) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return Answers{}, nil
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return Answers{}, fmt.Errorf("decode answers: %w", err)
		}
		raw = data
	}

	var a Answers
	if err := json.Unmarshal(raw, &a); err != nil {
		return Answers{}, shared.WrapError("profile", "DecodeAnswers", shared.ErrInvalidFormat, "malformed answers", err)
	}
	return a, nil
}
