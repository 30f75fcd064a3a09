// Package synthesis folds the panel's opinions and the conflict record into
// the final audit report. Blending is deterministic arithmetic; no reasoning
// provider is consulted here.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
)

// roleWeights fixes each persona's share of the blended score. The weights
// are absolute: a missing voice forfeits its share rather than inflating the
// others.
var roleWeights = map[schema.JudgeRole]float64{
	schema.RoleArbiter:     0.4,
	schema.RoleAdversarial: 0.3,
	schema.RoleAdvocate:    0.3,
}

// factPenalty is subtracted from the blend of any dimension whose claims
// were contradicted by the structural ground truth.
const factPenalty = 1.0

// dissentThreshold is the adversarial/advocate score gap beyond which the
// split is surfaced in the report.
const dissentThreshold = 2

// securityCap is the ceiling imposed on the overall score when the audit
// found a security flaw.
const securityCap = 3.0

// Synthesizer is the terminal node producing the audit report.
type Synthesizer struct {
	runID string
	log   *slog.Logger
}

// New creates a synthesizer. runID identifies the run in the report.
func New(runID string) *Synthesizer {
	return &Synthesizer{runID: runID, log: logging.New("synthesis")}
}

// Synthesize is the node function.
func (s *Synthesizer) Synthesize(_ context.Context, snap state.RunState) (state.Delta, error) {
	report := s.Build(snap)
	s.log.Info("report synthesized", "run_id", report.RunID, "overall", report.OverallScore)
	return state.Delta{Report: &report}, nil
}

// Build assembles the report from a snapshot. It is exported for direct use
// in tests; Synthesize is the node wrapper.
func (s *Synthesizer) Build(snap state.RunState) schema.AuditReport {
	penalized := penalizedDimensions(snap.Conflicts)

	var criteria []schema.CriterionResult
	var blendSum float64
	var scored int
	var remediation []string
	for _, dim := range snap.Dimensions {
		ops := opinionsFor(snap.Opinions, dim.ID)
		if len(ops) == 0 {
			// No judge reached this dimension; it carries no score and
			// does not drag the mean down.
			continue
		}
		blend := blendScore(ops)
		if penalized[dim.ID] {
			blend -= factPenalty
		}
		blendSum += blend
		scored++

		cr := schema.CriterionResult{
			DimensionID:   dim.ID,
			DimensionName: dim.Name,
			FinalScore:    clampRound(blend),
			Opinions:      ops,
			Remediation:   remediationFor(ops),
		}
		if d := dissent(ops); d != "" {
			cr.DissentSummary = d
		}
		if cr.FinalScore < 4 && cr.Remediation != "" {
			remediation = append(remediation, fmt.Sprintf("%s: %s", dim.Name, cr.Remediation))
		}
		criteria = append(criteria, cr)
	}

	overall := 0.0
	if scored > 0 {
		overall = blendSum / float64(scored)
	}
	if hasSecurityFlaw(snap.Conflicts) {
		overall = math.Min(securityCap, overall)
	}
	overall = math.Round(overall*100) / 100

	return schema.AuditReport{
		RunID:            s.runID,
		RepoRef:          snap.RepoRef,
		ExecutiveSummary: executiveSummary(snap, scored, overall),
		OverallScore:     overall,
		Criteria:         criteria,
		RemediationPlan:  strings.Join(remediation, "\n"),
	}
}

// opinionsFor returns the dimension's opinions in fixed persona order.
func opinionsFor(all []schema.Opinion, dimID string) []schema.Opinion {
	var ops []schema.Opinion
	for _, op := range all {
		if op.CriterionID == dimID {
			ops = append(ops, op)
		}
	}
	order := map[schema.JudgeRole]int{
		schema.RoleAdversarial: 0,
		schema.RoleAdvocate:    1,
		schema.RoleArbiter:     2,
	}
	sort.SliceStable(ops, func(i, j int) bool {
		return order[ops[i].Judge] < order[ops[j].Judge]
	})
	return ops
}

// blendScore sums weight * score over the present voices.
func blendScore(ops []schema.Opinion) float64 {
	var blend float64
	for _, op := range ops {
		blend += roleWeights[op.Judge] * float64(op.Score)
	}
	return blend
}

// clampRound converts a blend to the final integer score on [1,5].
func clampRound(blend float64) int {
	clamped := math.Min(5, math.Max(1, blend))
	return int(math.Round(clamped))
}

// dissent reports an adversarial/advocate split wider than the threshold.
func dissent(ops []schema.Opinion) string {
	var adversarial, advocate *schema.Opinion
	for i := range ops {
		switch ops[i].Judge {
		case schema.RoleAdversarial:
			adversarial = &ops[i]
		case schema.RoleAdvocate:
			advocate = &ops[i]
		}
	}
	if adversarial == nil || advocate == nil {
		return ""
	}
	gap := adversarial.Score - advocate.Score
	if gap < 0 {
		gap = -gap
	}
	if gap <= dissentThreshold {
		return ""
	}
	return fmt.Sprintf("panel split: adversarial scored %d, advocate scored %d",
		adversarial.Score, advocate.Score)
}

// genericRemediation is the fixed guidance used when the arbiter gave none.
const genericRemediation = "Review this criterion against the collected evidence and address the weaknesses the panel identified."

// remediationFor takes the arbiter's argument as the remediation guidance,
// falling back to fixed generic guidance when the arbiter is silent.
func remediationFor(ops []schema.Opinion) string {
	for _, op := range ops {
		if op.Judge == schema.RoleArbiter && op.Argument != "" {
			return op.Argument
		}
	}
	return genericRemediation
}

// penalizedDimensions collects dimensions whose interpretive claims were
// contradicted by the ground truth.
func penalizedDimensions(conflicts []schema.ConflictRecord) map[string]bool {
	out := map[string]bool{}
	for _, c := range conflicts {
		switch c.Kind {
		case schema.KindFactMismatch, schema.KindHolisticMismatch:
			if c.Dimension != "" {
				out[c.Dimension] = true
			}
		}
	}
	return out
}

func hasSecurityFlaw(conflicts []schema.ConflictRecord) bool {
	for _, c := range conflicts {
		if c.Kind == schema.KindSecurityFlaw {
			return true
		}
	}
	return false
}

// executiveSummary renders the headline paragraph of the report.
func executiveSummary(snap state.RunState, scored int, overall float64) string {
	var critical, high int
	for _, c := range snap.Conflicts {
		switch c.Severity {
		case schema.SeverityCritical:
			critical++
		case schema.SeverityHigh:
			high++
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Audit of %s across %d criteria; overall score %.2f of 5.",
		snap.RepoRef, scored, overall)
	if critical > 0 || high > 0 {
		fmt.Fprintf(&sb, " Arbitration raised %d critical and %d high-severity conflicts.",
			critical, high)
	} else {
		sb.WriteString(" Arbitration raised no high-severity conflicts.")
	}
	if hasSecurityFlaw(snap.Conflicts) {
		sb.WriteString(" A security flaw in the submission caps the overall score.")
	}
	return sb.String()
}
