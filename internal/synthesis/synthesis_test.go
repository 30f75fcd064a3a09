package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
)

func dim(id string) schema.DimensionSpec {
	return schema.DimensionSpec{ID: id, Name: id}
}

func opinion(role schema.JudgeRole, dimID string, score int) schema.Opinion {
	return schema.Opinion{Judge: role, CriterionID: dimID, Score: score, Argument: "because"}
}

func fullPanel(dimID string, adversarial, advocate, arbiter int) []schema.Opinion {
	return []schema.Opinion{
		opinion(schema.RoleAdversarial, dimID, adversarial),
		opinion(schema.RoleAdvocate, dimID, advocate),
		opinion(schema.RoleArbiter, dimID, arbiter),
	}
}

func TestBuild_WeightedBlend(t *testing.T) {
	report := New("run-1").Build(state.RunState{
		RepoRef:    "repo",
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions:   fullPanel("a", 2, 4, 3),
	})

	// 0.3*2 + 0.3*4 + 0.4*3 = 3.0
	require.Len(t, report.Criteria, 1)
	assert.Equal(t, 3, report.Criteria[0].FinalScore)
	assert.InDelta(t, 3.0, report.OverallScore, 1e-9)
}

func TestBuild_MissingVoiceForfeitsWeight(t *testing.T) {
	report := New("run-1").Build(state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions: []schema.Opinion{
			opinion(schema.RoleAdversarial, "a", 5),
			opinion(schema.RoleArbiter, "a", 5),
		},
	})

	// 0.3*5 + 0.4*5 = 3.5, not renormalized to 5.0.
	assert.InDelta(t, 3.5, report.OverallScore, 1e-9)
	assert.Equal(t, 4, report.Criteria[0].FinalScore)
}

func TestBuild_FactPenaltyIsExactlyOne(t *testing.T) {
	base := state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions:   fullPanel("a", 4, 4, 4),
	}
	clean := New("r").Build(base)

	base.Conflicts = []schema.ConflictRecord{
		{Kind: schema.KindFactMismatch, Severity: schema.SeverityHigh, Dimension: "a"},
	}
	penalized := New("r").Build(base)

	assert.InDelta(t, 1.0, clean.OverallScore-penalized.OverallScore, 1e-9)
}

func TestBuild_PenaltyMatchesExactDimensionOnly(t *testing.T) {
	report := New("r").Build(state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a"), dim("b")},
		Opinions: append(
			fullPanel("a", 4, 4, 4),
			fullPanel("b", 4, 4, 4)...),
		Conflicts: []schema.ConflictRecord{
			{Kind: schema.KindHolisticMismatch, Severity: schema.SeverityCritical, Dimension: "a"},
		},
	})

	assert.Equal(t, 3, report.Criteria[0].FinalScore, "penalized dimension drops")
	assert.Equal(t, 4, report.Criteria[1].FinalScore, "sibling dimension untouched")
}

func TestBuild_DissentThreshold(t *testing.T) {
	cases := []struct {
		name        string
		adversarial int
		advocate    int
		dissent     bool
	}{
		{"wide split", 5, 1, true},
		{"gap of three", 5, 2, true},
		{"gap of two stays quiet", 4, 2, false},
		{"agreement", 3, 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := New("r").Build(state.RunState{
				Dimensions: []schema.DimensionSpec{dim("a")},
				Opinions:   fullPanel("a", tc.adversarial, tc.advocate, 3),
			})
			if tc.dissent {
				assert.NotEmpty(t, report.Criteria[0].DissentSummary)
			} else {
				assert.Empty(t, report.Criteria[0].DissentSummary)
			}
		})
	}
}

func TestBuild_SecurityFlawCapsOverall(t *testing.T) {
	report := New("r").Build(state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions:   fullPanel("a", 5, 5, 5),
		Conflicts: []schema.ConflictRecord{
			{Kind: schema.KindSecurityFlaw, Severity: schema.SeverityCritical, Dimension: "a"},
		},
	})

	assert.InDelta(t, 3.0, report.OverallScore, 1e-9, "cap overrides a perfect blend")
	assert.Contains(t, report.ExecutiveSummary, "security flaw")
}

func TestBuild_SecurityCapDoesNotRaiseLowScores(t *testing.T) {
	report := New("r").Build(state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions:   fullPanel("a", 1, 1, 1),
		Conflicts: []schema.ConflictRecord{
			{Kind: schema.KindSecurityFlaw, Severity: schema.SeverityCritical, Dimension: "a"},
		},
	})

	assert.InDelta(t, 1.0, report.OverallScore, 1e-9)
}

func TestBuild_OpinionlessDimensionIsSkipped(t *testing.T) {
	report := New("r").Build(state.RunState{
		RepoRef:    "repo",
		Dimensions: []schema.DimensionSpec{dim("a"), dim("b")},
		Opinions: []schema.Opinion{
			opinion(schema.RoleArbiter, "a", 5),
		},
	})

	// Only "a" was judged: one result, and the mean runs over it alone
	// (0.4*5 = 2.0) instead of averaging in a phantom zero for "b".
	require.Len(t, report.Criteria, 1)
	assert.Equal(t, "a", report.Criteria[0].DimensionID)
	assert.InDelta(t, 2.0, report.OverallScore, 1e-9)
	assert.Contains(t, report.ExecutiveSummary, "1 criteria")
}

func TestBuild_RemediationFromArbiter(t *testing.T) {
	ops := []schema.Opinion{
		opinion(schema.RoleAdversarial, "a", 2),
		{Judge: schema.RoleArbiter, CriterionID: "a", Score: 2, Argument: "add a fan-in barrier"},
	}
	report := New("r").Build(state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions:   ops,
	})

	assert.Equal(t, "add a fan-in barrier", report.Criteria[0].Remediation)
	assert.Contains(t, report.RemediationPlan, "add a fan-in barrier")
}

func TestBuild_GenericRemediationWithoutArbiter(t *testing.T) {
	report := New("r").Build(state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions: []schema.Opinion{
			{Judge: schema.RoleAdversarial, CriterionID: "a", Score: 2, Argument: "weak barrier"},
			{Judge: schema.RoleAdvocate, CriterionID: "a", Score: 2, Argument: "fair effort"},
		},
	})

	assert.Equal(t, genericRemediation, report.Criteria[0].Remediation,
		"no arbiter voice falls back to the fixed guidance, not a persona argument")
}

func TestBuild_ClampFloor(t *testing.T) {
	report := New("r").Build(state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions:   fullPanel("a", 1, 1, 1),
		Conflicts: []schema.ConflictRecord{
			{Kind: schema.KindFactMismatch, Severity: schema.SeverityHigh, Dimension: "a"},
		},
	})

	// Blend 1.0 minus the penalty is 0.0; the final score clamps to 1 while
	// the overall mean keeps the pre-clamp value.
	assert.Equal(t, 1, report.Criteria[0].FinalScore)
	assert.InDelta(t, 0.0, report.OverallScore, 1e-9)
}

func TestBuild_OpinionOrderIsCanonical(t *testing.T) {
	ops := []schema.Opinion{
		opinion(schema.RoleArbiter, "a", 3),
		opinion(schema.RoleAdversarial, "a", 3),
		opinion(schema.RoleAdvocate, "a", 3),
	}
	report := New("r").Build(state.RunState{
		Dimensions: []schema.DimensionSpec{dim("a")},
		Opinions:   ops,
	})

	got := report.Criteria[0].Opinions
	require.Len(t, got, 3)
	assert.Equal(t, schema.RoleAdversarial, got[0].Judge)
	assert.Equal(t, schema.RoleAdvocate, got[1].Judge)
	assert.Equal(t, schema.RoleArbiter, got[2].Judge)
}
