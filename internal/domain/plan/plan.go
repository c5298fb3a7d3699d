// Package plan holds the static catalog of study plans and the rules that
// pick a plan for a persona.
package plan

import (
	"github.com/alem-hub/study-pace/internal/domain/persona"
)

// ID identifies a catalog plan.
type ID string

const (
	AttentionFriendly ID = "attention_friendly"
	ExamSprint        ID = "exam_sprint"
	BurnoutRecovery   ID = "burnout_recovery"
	Balanced          ID = "balanced"
	UltraLight        ID = "ultra_light"
	NightOwl          ID = "night_owl"
	DeepWork          ID = "deep_work"
	SteadyBuilder     ID = "steady_builder"
)

// Tone is the analytics/copy register used when presenting a plan.
type Tone string

const (
	ToneGentle      Tone = "gentle"
	ToneEncouraging Tone = "encouraging"
	ToneDirect      Tone = "direct"
	ToneCalm        Tone = "calm"
)

// Plan is immutable reference data.
type Plan struct {
	ID                      ID
	Name                    string
	Description             string
	SessionMinutes          int
	BreakMinutes            int
	LongBreakMinutes        int
	SessionsBeforeLongBreak int
	MaxTasksPerDay          int
	MaxDailyFocusMinutes    int
	Warnings                []string
	Tone                    Tone
}

var catalog = []Plan{
	{
		ID:                      AttentionFriendly,
		Name:                    "Attention Friendly",
		Description:             "Short focused bursts with frequent breaks and a small daily list.",
		SessionMinutes:          20,
		BreakMinutes:            5,
		LongBreakMinutes:        15,
		SessionsBeforeLongBreak: 3,
		MaxTasksPerDay:          4,
		MaxDailyFocusMinutes:    120,
		Warnings:                []string{"Stop after four tasks even if you feel fine."},
		Tone:                    ToneGentle,
	},
	{
		ID:                      ExamSprint,
		Name:                    "Exam Sprint",
		Description:             "Longer sessions and a fuller list while an exam is close.",
		SessionMinutes:          45,
		BreakMinutes:            10,
		LongBreakMinutes:        30,
		SessionsBeforeLongBreak: 3,
		MaxTasksPerDay:          8,
		MaxDailyFocusMinutes:    300,
		Warnings:                []string{"Sprint mode is meant for two weeks at most.", "Keep sleeping at least seven hours."},
		Tone:                    ToneDirect,
	},
	{
		ID:                      BurnoutRecovery,
		Name:                    "Burnout Recovery",
		Description:             "A light load with long breaks to rebuild energy.",
		SessionMinutes:          25,
		BreakMinutes:            10,
		LongBreakMinutes:        30,
		SessionsBeforeLongBreak: 2,
		MaxTasksPerDay:          3,
		MaxDailyFocusMinutes:    90,
		Warnings:                []string{"Rest days count as progress."},
		Tone:                    ToneCalm,
	},
	{
		ID:                      Balanced,
		Name:                    "Balanced",
		Description:             "A steady mix of focus and rest that fits most weeks.",
		SessionMinutes:          35,
		BreakMinutes:            7,
		LongBreakMinutes:        20,
		SessionsBeforeLongBreak: 4,
		MaxTasksPerDay:          5,
		MaxDailyFocusMinutes:    210,
		Tone:                    ToneEncouraging,
	},
	{
		ID:                      UltraLight,
		Name:                    "Ultra Light",
		Description:             "One or two small tasks a day to build the habit back up.",
		SessionMinutes:          15,
		BreakMinutes:            5,
		LongBreakMinutes:        15,
		SessionsBeforeLongBreak: 2,
		MaxTasksPerDay:          2,
		MaxDailyFocusMinutes:    45,
		Warnings:                []string{"Resist adding more until the streak holds for a week."},
		Tone:                    ToneGentle,
	},
	{
		ID:                      NightOwl,
		Name:                    "Night Owl",
		Description:             "Sessions scheduled for the evening energy peak.",
		SessionMinutes:          40,
		BreakMinutes:            8,
		LongBreakMinutes:        20,
		SessionsBeforeLongBreak: 3,
		MaxTasksPerDay:          5,
		MaxDailyFocusMinutes:    200,
		Warnings:                []string{"Finish an hour before you plan to sleep."},
		Tone:                    ToneEncouraging,
	},
	{
		ID:                      DeepWork,
		Name:                    "Deep Work",
		Description:             "Few long uninterrupted blocks for demanding material.",
		SessionMinutes:          90,
		BreakMinutes:            15,
		LongBreakMinutes:        30,
		SessionsBeforeLongBreak: 2,
		MaxTasksPerDay:          3,
		MaxDailyFocusMinutes:    270,
		Warnings:                []string{"Turn off notifications during blocks."},
		Tone:                    ToneDirect,
	},
	{
		ID:                      SteadyBuilder,
		Name:                    "Steady Builder",
		Description:             "Moderate sessions every day with gradual increases.",
		SessionMinutes:          30,
		BreakMinutes:            6,
		LongBreakMinutes:        20,
		SessionsBeforeLongBreak: 4,
		MaxTasksPerDay:          6,
		MaxDailyFocusMinutes:    180,
		Tone:                    ToneEncouraging,
	},
}

// All returns a copy of the catalog in display order.
func All() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a plan by id.
func Lookup(id ID) (Plan, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// mustLookup panics on catalog ids that are defined in this file.
func mustLookup(id ID) Plan {
	p, ok := Lookup(id)
	if !ok {
		panic("plan: catalog missing " + string(id))
	}
	return p
}

// primaryFor maps a persona to its plan id. The second result is false
// for personas without an entry.
func primaryFor(p persona.Persona) (ID, bool) {
	switch p {
	case persona.LowFocusShortSession:
		return AttentionFriendly, true
	case persona.ExamSprinter:
		return ExamSprint, true
	case persona.BurnoutRecovery:
		return BurnoutRecovery, true
	case persona.OverloadedJuggler:
		return Balanced, true
	case persona.Balanced:
		return Balanced, true
	}
	return Balanced, false
}

// SelectBest returns the primary plan for p, falling back to Balanced.
func SelectBest(p persona.Persona) Plan {
	id, _ := primaryFor(p)
	if plan, ok := Lookup(id); ok {
		return plan
	}
	return mustLookup(Balanced)
}

// Signals are the secondary answers that suggest alternative plans.
type Signals struct {
	SevereFocusDifficulty bool
	LowConsistency        bool
	NightPeak             bool
}

// SignalsFrom extracts Signals from onboarding answers.
func SignalsFrom(a persona.Answers) Signals {
	return Signals{
		SevereFocusDifficulty: a.SevereFocusDifficulty(),
		LowConsistency:        a.ConsistencySpan == persona.Consistency1to2Days,
		NightPeak:             a.EnergyPeak == persona.PeakNight,
	}
}

const maxAlternates = 2

// RecommendAlternatives returns the primary plan followed by up to two
// alternates. Signals are checked in order (focus, consistency, night peak);
// missing slots are backfilled with Balanced then BurnoutRecovery. The
// result never repeats a plan and always has 1 to 3 entries.
func RecommendAlternatives(p persona.Persona, s Signals) []Plan {
	primary := SelectBest(p)
	out := []Plan{primary}
	seen := map[ID]bool{primary.ID: true}

	add := func(id ID) {
		if len(out) > maxAlternates || seen[id] {
			return
		}
		plan, ok := Lookup(id)
		if !ok {
			return
		}
		seen[id] = true
		out = append(out, plan)
	}

	if s.SevereFocusDifficulty {
		add(AttentionFriendly)
	}
	if s.LowConsistency {
		add(UltraLight)
	}
	if s.NightPeak {
		add(NightOwl)
	}
	add(Balanced)
	add(BurnoutRecovery)

	return out
}
