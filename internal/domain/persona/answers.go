package persona

import (
	"github.com/alem-hub/study-pace/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// FocusDifficulty - насколько трудно держать фокус.
type FocusDifficulty string

const (
	FocusEasy     FocusDifficulty = "easy"
	FocusModerate FocusDifficulty = "moderate"
	FocusHard     FocusDifficulty = "hard"
	FocusVeryHard FocusDifficulty = "very_hard"
)

// AttentionDiagnosis - наличие диагноза, связанного с вниманием.
type AttentionDiagnosis string

const (
	DiagnosisNone      AttentionDiagnosis = "none"
	DiagnosisSuspected AttentionDiagnosis = "suspected"
	DiagnosisConfirmed AttentionDiagnosis = "diagnosed"
)

// ExamProximity - как скоро ближайший экзамен.
type ExamProximity string

const (
	ExamNone           ExamProximity = "none"
	ExamMoreThanMonth  ExamProximity = "more_than_month"
	ExamWithinMonth    ExamProximity = "within_month"
	ExamWithinTwoWeeks ExamProximity = "within_two_weeks"
	ExamWithinWeek     ExamProximity = "within_week"
)

// DesiredGuidance - сколько ведения хочет студент.
type DesiredGuidance string

const (
	GuidanceLow    DesiredGuidance = "low"
	GuidanceMedium DesiredGuidance = "medium"
	GuidanceHigh   DesiredGuidance = "high"
)

// AbandonmentFrequency - как часто студент бросает план.
type AbandonmentFrequency string

const (
	AbandonRarely    AbandonmentFrequency = "rarely"
	AbandonSometimes AbandonmentFrequency = "sometimes"
	AbandonOften     AbandonmentFrequency = "often"
	AbandonAlways    AbandonmentFrequency = "always"
)

// EnergyAfterStudy - самочувствие после учёбы.
type EnergyAfterStudy string

const (
	EnergyEnergized EnergyAfterStudy = "energized"
	EnergyNeutral   EnergyAfterStudy = "neutral"
	EnergyDrained   EnergyAfterStudy = "drained"
	EnergyExhausted EnergyAfterStudy = "exhausted"
)

// OverloadResponse - реакция на перегрузку.
type OverloadResponse string

const (
	OverloadPushThrough OverloadResponse = "push_through"
	OverloadSlowDown    OverloadResponse = "slow_down"
	OverloadShutDown    OverloadResponse = "shut_down"
	OverloadAvoid       OverloadResponse = "avoid"
)

// Workload - текущая нагрузка.
type Workload string

const (
	WorkloadLight        Workload = "light"
	WorkloadModerate     Workload = "moderate"
	WorkloadHeavy        Workload = "heavy"
	WorkloadOverwhelming Workload = "overwhelming"
)

// DailyFocusCapacity - сколько часов фокуса в день студент называет сам.
type DailyFocusCapacity string

const (
	CapacityUnder1h DailyFocusCapacity = "under_1h"
	Capacity1to2h   DailyFocusCapacity = "1_2h"
	Capacity2to4h   DailyFocusCapacity = "2_4h"
	CapacityOver4h  DailyFocusCapacity = "over_4h"
)

// ConsistencySpan - сколько обычно держится привычка.
type ConsistencySpan string

const (
	Consistency1to2Days   ConsistencySpan = "1_2_days"
	Consistency3to5Days   ConsistencySpan = "3_5_days"
	Consistency1to2Weeks  ConsistencySpan = "1_2_weeks"
	ConsistencyOver2Weeks ConsistencySpan = "over_2_weeks"
)

// EnergyPeak - время суток с пиком энергии.
type EnergyPeak string

const (
	PeakMorning   EnergyPeak = "morning"
	PeakAfternoon EnergyPeak = "afternoon"
	PeakEvening   EnergyPeak = "evening"
	PeakNight     EnergyPeak = "night"
)

// SessionLength - предпочитаемая длина сессии.
type SessionLength string

const (
	SessionShort  SessionLength = "short"
	SessionMedium SessionLength = "medium"
	SessionLong   SessionLength = "long"
)

// StudyLevel - уровень обучения.
type StudyLevel string

const (
	LevelHighSchool    StudyLevel = "high_school"
	LevelUndergraduate StudyLevel = "undergraduate"
	LevelGraduate      StudyLevel = "graduate"
	LevelOther         StudyLevel = "other"
)

// MotivationStyle - что мотивирует студента.
type MotivationStyle string

const (
	MotivationStreaks   MotivationStyle = "streaks"
	MotivationProgress  MotivationStyle = "progress"
	MotivationDeadlines MotivationStyle = "deadlines"
	MotivationRewards   MotivationStyle = "rewards"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWERS
// ══════════════════════════════════════════════════════════════════════════════

// Answers - 14 ответов онбординга. Пустая строка означает "не отвечено".
type Answers struct {
	FocusDifficulty        FocusDifficulty      `json:"focus_difficulty,omitempty"`
	AttentionDiagnosis     AttentionDiagnosis   `json:"attention_diagnosis,omitempty"`
	ExamProximity          ExamProximity        `json:"exam_proximity,omitempty"`
	DesiredGuidance        DesiredGuidance      `json:"desired_guidance,omitempty"`
	AbandonmentFrequency   AbandonmentFrequency `json:"abandonment_frequency,omitempty"`
	EnergyAfterStudy       EnergyAfterStudy     `json:"energy_after_study,omitempty"`
	OverloadResponse       OverloadResponse     `json:"overload_response,omitempty"`
	Workload               Workload             `json:"workload,omitempty"`
	DailyFocusCapacity     DailyFocusCapacity   `json:"daily_focus_capacity,omitempty"`
	ConsistencySpan        ConsistencySpan      `json:"consistency_span,omitempty"`
	EnergyPeak             EnergyPeak           `json:"energy_peak,omitempty"`
	PreferredSessionLength SessionLength        `json:"preferred_session_length,omitempty"`
	StudyLevel             StudyLevel           `json:"study_level,omitempty"`
	MotivationStyle        MotivationStyle      `json:"motivation_style,omitempty"`
}

// SevereAttentionIssue - очень трудно держать фокус, либо трудно и есть диагноз.
func (a Answers) SevereAttentionIssue() bool {
	return a.FocusDifficulty == FocusVeryHard ||
		(a.FocusDifficulty == FocusHard && a.AttentionDiagnosis == DiagnosisConfirmed)
}

// SevereFocusDifficulty - фокус даётся тяжело или очень тяжело.
// Используется как сигнал при подборе альтернативных планов.
func (a Answers) SevereFocusDifficulty() bool {
	return a.FocusDifficulty == FocusHard || a.FocusDifficulty == FocusVeryHard
}

// ExamImminent - экзамен в ближайшие две недели.
func (a Answers) ExamImminent() bool {
	return a.ExamProximity == ExamWithinWeek || a.ExamProximity == ExamWithinTwoWeeks
}

// Validate проверяет, что каждый заполненный ответ из допустимого набора.
func (a Answers) Validate() error {
	var fields []shared.FieldError
	check := func(name string, ok bool) {
		if !ok {
			fields = append(fields, shared.FieldError{Field: name, Message: "unsupported answer"})
		}
	}

	check("focus_difficulty", oneOf(a.FocusDifficulty, FocusEasy, FocusModerate, FocusHard, FocusVeryHard))
	check("attention_diagnosis", oneOf(a.AttentionDiagnosis, DiagnosisNone, DiagnosisSuspected, DiagnosisConfirmed))
	check("exam_proximity", oneOf(a.ExamProximity, ExamNone, ExamMoreThanMonth, ExamWithinMonth, ExamWithinTwoWeeks, ExamWithinWeek))
	check("desired_guidance", oneOf(a.DesiredGuidance, GuidanceLow, GuidanceMedium, GuidanceHigh))
	check("abandonment_frequency", oneOf(a.AbandonmentFrequency, AbandonRarely, AbandonSometimes, AbandonOften, AbandonAlways))
	check("energy_after_study", oneOf(a.EnergyAfterStudy, EnergyEnergized, EnergyNeutral, EnergyDrained, EnergyExhausted))
	check("overload_response", oneOf(a.OverloadResponse, OverloadPushThrough, OverloadSlowDown, OverloadShutDown, OverloadAvoid))
	check("workload", oneOf(a.Workload, WorkloadLight, WorkloadModerate, WorkloadHeavy, WorkloadOverwhelming))
	check("daily_focus_capacity", oneOf(a.DailyFocusCapacity, CapacityUnder1h, Capacity1to2h, Capacity2to4h, CapacityOver4h))
	check("consistency_span", oneOf(a.ConsistencySpan, Consistency1to2Days, Consistency3to5Days, Consistency1to2Weeks, ConsistencyOver2Weeks))
	check("energy_peak", oneOf(a.EnergyPeak, PeakMorning, PeakAfternoon, PeakEvening, PeakNight))
	check("preferred_session_length", oneOf(a.PreferredSessionLength, SessionShort, SessionMedium, SessionLong))
	check("study_level", oneOf(a.StudyLevel, LevelHighSchool, LevelUndergraduate, LevelGraduate, LevelOther))
	check("motivation_style", oneOf(a.MotivationStyle, MotivationStreaks, MotivationProgress, MotivationDeadlines, MotivationRewards))

	if len(fields) > 0 {
		return shared.ValidationError("profile.Answers", fields...)
	}
	return nil
}

// oneOf допускает пустое значение (нет ответа).
func oneOf[T ~string](v T, allowed ...T) bool {
	if v == "" {
		return true
	}
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
