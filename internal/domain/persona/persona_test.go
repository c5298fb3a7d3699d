package persona

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-pace/internal/domain/shared"
)

func TestClassify_SingleRuleProfiles(t *testing.T) {
	tests := []struct {
		name    string
		answers Answers
		want    Persona
	}{
		{"empty answers", Answers{}, Balanced},
		{"very hard focus", Answers{FocusDifficulty: FocusVeryHard}, LowFocusShortSession},
		{"hard focus with diagnosis", Answers{FocusDifficulty: FocusHard, AttentionDiagnosis: DiagnosisConfirmed}, LowFocusShortSession},
		{"hard focus without diagnosis", Answers{FocusDifficulty: FocusHard, AttentionDiagnosis: DiagnosisSuspected}, Balanced},
		{"exam this week, high guidance", Answers{ExamProximity: ExamWithinWeek, DesiredGuidance: GuidanceHigh}, ExamSprinter},
		{"exam in two weeks, high guidance", Answers{ExamProximity: ExamWithinTwoWeeks, DesiredGuidance: GuidanceHigh}, ExamSprinter},
		{"exam this week, medium guidance", Answers{ExamProximity: ExamWithinWeek, DesiredGuidance: GuidanceMedium}, Balanced},
		{"exam in a month, high guidance", Answers{ExamProximity: ExamWithinMonth, DesiredGuidance: GuidanceHigh}, Balanced},
		{"exhausted", Answers{EnergyAfterStudy: EnergyExhausted}, BurnoutRecovery},
		{"abandons often", Answers{AbandonmentFrequency: AbandonOften}, BurnoutRecovery},
		{"abandons always", Answers{AbandonmentFrequency: AbandonAlways}, BurnoutRecovery},
		{"heavy workload", Answers{Workload: WorkloadHeavy}, OverloadedJuggler},
		{"overwhelming workload", Answers{Workload: WorkloadOverwhelming}, OverloadedJuggler},
		{"shuts down", Answers{OverloadResponse: OverloadShutDown}, OverloadedJuggler},
		{"avoids is not overload", Answers{OverloadResponse: OverloadAvoid}, Balanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.answers))
		})
	}
}

func TestClassify_RuleOrder(t *testing.T) {
	everything := Answers{
		FocusDifficulty:      FocusVeryHard,
		ExamProximity:        ExamWithinWeek,
		DesiredGuidance:      GuidanceHigh,
		EnergyAfterStudy:     EnergyExhausted,
		AbandonmentFrequency: AbandonAlways,
		Workload:             WorkloadOverwhelming,
		OverloadResponse:     OverloadShutDown,
	}
	assert.Equal(t, LowFocusShortSession, Classify(everything), "attention beats every other rule")

	noAttention := everything
	noAttention.FocusDifficulty = FocusModerate
	assert.Equal(t, ExamSprinter, Classify(noAttention), "exam beats burnout and overload")

	noExam := noAttention
	noExam.DesiredGuidance = GuidanceLow
	assert.Equal(t, BurnoutRecovery, Classify(noExam), "burnout beats overload")

	noBurnout := noExam
	noBurnout.EnergyAfterStudy = EnergyDrained
	noBurnout.AbandonmentFrequency = AbandonSometimes
	assert.Equal(t, OverloadedJuggler, Classify(noBurnout))

	calm := noBurnout
	calm.Workload = WorkloadLight
	calm.OverloadResponse = OverloadSlowDown
	assert.Equal(t, Balanced, Classify(calm))
}

func TestClassify_TotalAndDeterministic(t *testing.T) {
	focus := []FocusDifficulty{"", FocusEasy, FocusModerate, FocusHard, FocusVeryHard}
	diagnosis := []AttentionDiagnosis{"", DiagnosisNone, DiagnosisSuspected, DiagnosisConfirmed}
	exam := []ExamProximity{"", ExamNone, ExamMoreThanMonth, ExamWithinMonth, ExamWithinTwoWeeks, ExamWithinWeek}
	guidance := []DesiredGuidance{"", GuidanceLow, GuidanceMedium, GuidanceHigh}
	energy := []EnergyAfterStudy{"", EnergyEnergized, EnergyNeutral, EnergyDrained, EnergyExhausted}
	workload := []Workload{"", WorkloadLight, WorkloadModerate, WorkloadHeavy, WorkloadOverwhelming}

	for _, f := range focus {
		for _, d := range diagnosis {
			for _, e := range exam {
				for _, g := range guidance {
					for _, en := range energy {
						for _, w := range workload {
							a := Answers{
								FocusDifficulty:    f,
								AttentionDiagnosis: d,
								ExamProximity:      e,
								DesiredGuidance:    g,
								EnergyAfterStudy:   en,
								Workload:           w,
							}
							first := Classify(a)
							require.True(t, first.IsValid())
							require.Equal(t, first, Classify(a))
						}
					}
				}
			}
		}
	}
}

func TestAnswers_Validate(t *testing.T) {
	assert.NoError(t, Answers{}.Validate())
	assert.NoError(t, Answers{FocusDifficulty: FocusHard, EnergyPeak: PeakNight}.Validate())

	err := Answers{FocusDifficulty: "impossible", Workload: "infinite"}.Validate()
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	var ce *shared.CategorizedError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Fields, 2)
	assert.Equal(t, "focus_difficulty", ce.Fields[0].Field)
}

func TestProfile_Reclassify(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &Profile{UserID: "u1", Persona: Balanced}

	require.NoError(t, p.Reclassify(Answers{EnergyAfterStudy: EnergyExhausted}, now))
	assert.Equal(t, BurnoutRecovery, p.Persona)
	assert.Equal(t, now, p.UpdatedAt)

	assert.Error(t, p.Reclassify(Answers{Workload: "bad"}, now))
	assert.Equal(t, BurnoutRecovery, p.Persona)
}

func TestAnswers_EncodeDecode(t *testing.T) {
	a := Answers{FocusDifficulty: FocusVeryHard, ConsistencySpan: Consistency1to2Days}

	s, err := EncodeAnswers(a)
	require.NoError(t, err)

	fromString, err := DecodeAnswers(s)
	require.NoError(t, err)
	assert.Equal(t, a, fromString)

	fromMap, err := DecodeAnswers(map[string]any{"focus_difficulty": "very_hard", "consistency_span": "1_2_days"})
	require.NoError(t, err)
	assert.Equal(t, a, fromMap)

	_, err = DecodeAnswers("{not json")
	assert.True(t, shared.IsValidation(err))
}

func TestParse(t *testing.T) {
	p, ok := Parse("exam_sprinter")
	assert.True(t, ok)
	assert.Equal(t, ExamSprinter, p)

	p, ok = Parse("wizard")
	assert.False(t, ok)
	assert.Equal(t, Balanced, p)
	assert.Len(t, All(), 5)
}

func TestProfile_RowRoundTrip(t *testing.T) {
	p := &Profile{UserID: "u1", SelectedPlanID: "exam_sprint", UpdatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, p.Reclassify(Answers{ExamProximity: ExamWithinWeek, DesiredGuidance: GuidanceHigh}, p.UpdatedAt))

	row, err := p.ToRow()
	require.NoError(t, err)
	assert.Equal(t, "exam_sprinter", row["persona"])

	got, err := ProfileFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	row["persona"] = "retired_persona"
	got, err = ProfileFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, ExamSprinter, got.Persona)
}
