package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-pace/internal/domain/persona"
)

func ids(plans []Plan) []ID {
	out := make([]ID, len(plans))
	for i, p := range plans {
		out[i] = p.ID
	}
	return out
}

func TestCatalog_HasEightUniquePlans(t *testing.T) {
	all := All()
	require.Len(t, all, 8)

	seen := map[ID]bool{}
	for _, p := range all {
		assert.False(t, seen[p.ID], "duplicate %s", p.ID)
		seen[p.ID] = true
		assert.NotEmpty(t, p.Name)
		assert.Positive(t, p.SessionMinutes)
		assert.Positive(t, p.MaxTasksPerDay)
	}
}

func TestSelectBest_EveryPersonaMapped(t *testing.T) {
	for _, p := range persona.All() {
		_, ok := primaryFor(p)
		assert.True(t, ok, "persona %s has no plan", p)
	}

	assert.Equal(t, AttentionFriendly, SelectBest(persona.LowFocusShortSession).ID)
	assert.Equal(t, ExamSprint, SelectBest(persona.ExamSprinter).ID)
	assert.Equal(t, BurnoutRecovery, SelectBest(persona.BurnoutRecovery).ID)
	assert.Equal(t, Balanced, SelectBest(persona.OverloadedJuggler).ID)
	assert.Equal(t, Balanced, SelectBest(persona.Balanced).ID)
	assert.Equal(t, Balanced, SelectBest(persona.Persona("unknown")).ID)
}

func TestAttentionFriendlyShape(t *testing.T) {
	p, ok := Lookup(AttentionFriendly)
	require.True(t, ok)
	assert.Equal(t, 20, p.SessionMinutes)
	assert.Equal(t, 4, p.MaxTasksPerDay)
}

func TestRecommendAlternatives(t *testing.T) {
	tests := []struct {
		name    string
		persona persona.Persona
		signals Signals
		want    []ID
	}{
		{
			name:    "no signals backfills defaults",
			persona: persona.ExamSprinter,
			want:    []ID{ExamSprint, Balanced, BurnoutRecovery},
		},
		{
			name:    "all signals keep the first two",
			persona: persona.ExamSprinter,
			signals: Signals{SevereFocusDifficulty: true, LowConsistency: true, NightPeak: true},
			want:    []ID{ExamSprint, AttentionFriendly, UltraLight},
		},
		{
			name:    "signal equal to primary is skipped",
			persona: persona.LowFocusShortSession,
			signals: Signals{SevereFocusDifficulty: true, NightPeak: true},
			want:    []ID{AttentionFriendly, NightOwl, Balanced},
		},
		{
			name:    "backfill skips the primary",
			persona: persona.Balanced,
			want:    []ID{Balanced, BurnoutRecovery},
		},
		{
			name:    "backfill skips the primary burnout plan",
			persona: persona.BurnoutRecovery,
			signals: Signals{LowConsistency: true},
			want:    []ID{BurnoutRecovery, UltraLight, Balanced},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecommendAlternatives(tt.persona, tt.signals)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestRecommendAlternatives_LengthAndUniqueness(t *testing.T) {
	for _, p := range persona.All() {
		for mask := 0; mask < 8; mask++ {
			s := Signals{SevereFocusDifficulty: mask&1 != 0, LowConsistency: mask&2 != 0, NightPeak: mask&4 != 0}
			got := RecommendAlternatives(p, s)

			require.GreaterOrEqual(t, len(got), 1)
			require.LessOrEqual(t, len(got), 3)
			assert.Equal(t, SelectBest(p).ID, got[0].ID)

			seen := map[ID]bool{}
			for _, plan := range got {
				require.False(t, seen[plan.ID])
				seen[plan.ID] = true
			}
		}
	}
}

func TestSignalsFrom(t *testing.T) {
	s := SignalsFrom(persona.Answers{
		FocusDifficulty: persona.FocusHard,
		ConsistencySpan: persona.Consistency1to2Days,
		EnergyPeak:      persona.PeakNight,
	})
	assert.Equal(t, Signals{SevereFocusDifficulty: true, LowConsistency: true, NightPeak: true}, s)
	assert.Equal(t, Signals{}, SignalsFrom(persona.Answers{}))
}
