// Package readiness turns a day's health metrics into a 0-100 readiness score
// and a mental-load tier.
package readiness

import (
	"context"
	"math"
	"time"

	"github.com/alem-hub/study-pace/internal/domain/backend"
	"github.com/alem-hub/study-pace/pkg/timeutil"
)

// DayMetrics is one reading from the health metrics provider.
type DayMetrics struct {
	SleepHours float64
	HRV        float64
	Steps      int
	StandHours int
}

// MetricsProvider is the external source of health readings.
type MetricsProvider interface {
	FetchDayMetrics(ctx context.Context) (DayMetrics, error)
}

// MentalLoad is the coarse tier derived from the score.
type MentalLoad string

const (
	LoadLow    MentalLoad = "low"
	LoadMedium MentalLoad = "medium"
	LoadHigh   MentalLoad = "high"
)

// Tuning constants.
const (
	CalibrationDays  = 3
	CalibratingScore = 75
	MinScore         = 40
	MaxScore         = 95
	BaselineWindow   = 14

	sleepRatioFloor   = 0.80
	hrvRatioFloor     = 0.85
	sleepAbsoluteMin  = 6.0
	sleepPenalty      = 20
	shortSleepPenalty = 10
	hrvPenalty        = 15
)

// Baseline is the rolling average of recent readings.
type Baseline struct {
	Days       int
	SleepHours float64
	HRV        float64
}

// BaselineFrom averages readings, ignoring zero values per metric.
func BaselineFrom(readings []DayMetrics) Baseline {
	var sleepSum, hrvSum float64
	var sleepN, hrvN int
	for _, r := range readings {
		if r.SleepHours > 0 {
			sleepSum += r.SleepHours
			sleepN++
		}
		if r.HRV > 0 {
			hrvSum += r.HRV
			hrvN++
		}
	}

	b := Baseline{Days: len(readings)}
	if sleepN > 0 {
		b.SleepHours = sleepSum / float64(sleepN)
	}
	if hrvN > 0 {
		b.HRV = hrvSum / float64(hrvN)
	}
	return b
}

// Readiness is the estimate for one day.
type Readiness struct {
	Score       int
	MentalLoad  MentalLoad
	Calibrating bool
}

// Estimate scores m against b. With fewer than CalibrationDays of baseline
// data it returns a fixed friendly default.
func Estimate(m DayMetrics, b Baseline) Readiness {
	if b.Days < CalibrationDays {
		return Readiness{Score: CalibratingScore, MentalLoad: LoadMedium, Calibrating: true}
	}

	score := 100
	switch {
	case b.SleepHours > 0 && m.SleepHours < b.SleepHours*sleepRatioFloor:
		score -= sleepPenalty
	case m.SleepHours < sleepAbsoluteMin:
		score -= shortSleepPenalty
	}
	if b.HRV > 0 && m.HRV < b.HRV*hrvRatioFloor {
		score -= hrvPenalty
	}

	score = min(max(score, MinScore), MaxScore)
	return Readiness{Score: score, MentalLoad: LoadFor(score)}
}

// LoadFor maps a score to its tier.
func LoadFor(score int) MentalLoad {
	switch {
	case score < 60:
		return LoadHigh
	case score < 80:
		return LoadMedium
	default:
		return LoadLow
	}
}

// SuggestedMaxTasks scales a task limit by readiness, never below 1.
func SuggestedMaxTasks(maxTasks, score int) int {
	return max(1, int(math.Round(float64(maxTasks)*float64(score)/100)))
}

// ToRow builds a health_readings row.
func ToRow(userID string, day time.Time, m DayMetrics) backend.Row {
	return backend.Row{
		"user_id":      userID,
		"reading_date": timeutil.FormatDateStr(day),
		"sleep_hours":  m.SleepHours,
		"hrv":          m.HRV,
		"steps":        m.Steps,
		"stand_hours":  m.StandHours,
	}
}

// FromRow decodes a health_readings row.
func FromRow(r backend.Row) DayMetrics {
	return DayMetrics{
		SleepHours: r.Float("sleep_hours"),
		HRV:        r.Float("hrv"),
		Steps:      r.Int("steps"),
		StandHours: r.Int("stand_hours"),
	}
}
