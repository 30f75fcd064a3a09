// Package arbiter cross-examines the collected evidence at the fan-in
// barrier. It applies source-authority precedence to surface contradictions,
// gaps, and security findings as first-class conflict records; it never
// mutates or discards evidence.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
)

// Authority ranks evidence categories. Structural repo extraction is ground
// truth; the interpretive lanes sit strictly below it.
var Authority = map[string]float64{
	schema.CategoryRepo:   1.0,
	schema.CategoryDoc:    0.8,
	schema.CategoryVision: 0.8,
}

// holisticQuorum is the number of corroborating lower-authority findings
// needed to escalate a contradiction from factual to holistic.
const holisticQuorum = 3

// EvidenceArbiter is the barrier node reconciling all evidence categories.
type EvidenceArbiter struct {
	log *slog.Logger
}

// New creates an arbiter.
func New() *EvidenceArbiter {
	return &EvidenceArbiter{log: logging.New("arbiter")}
}

// Arbitrate is the node function. It emits conflict records only; detection
// is pure given the snapshot.
func (a *EvidenceArbiter) Arbitrate(_ context.Context, snap state.RunState) (state.Delta, error) {
	var conflicts []schema.ConflictRecord

	conflicts = append(conflicts, completenessConflicts(snap)...)
	conflicts = append(conflicts, mismatchConflicts(snap)...)
	conflicts = append(conflicts, securityConflicts(snap)...)

	a.log.Info("arbitration complete", "conflicts", len(conflicts))
	return state.Delta{Conflicts: conflicts}, nil
}

// completenessConflicts flags categories that were scheduled to run but
// produced no evidence. Categories the routing decision skipped are not
// gaps.
func completenessConflicts(snap state.RunState) []schema.ConflictRecord {
	var out []schema.ConflictRecord
	for _, cat := range snap.Scheduled {
		if len(snap.Evidence[cat]) > 0 {
			continue
		}
		out = append(out, schema.ConflictRecord{
			Kind:        schema.KindCompleteness,
			Severity:    schema.SeverityInfo,
			Description: fmt.Sprintf("scheduled evidence category %q produced no findings", cat),
		})
	}
	return out
}

// mismatchConflicts applies the asymmetric precedence rule on monitored
// claims: a conflict is raised only when a lower-authority source asserts
// found=true and the ground truth denies the claim or never produced it. The
// reverse direction (a cautious report about a verified claim) is not a
// contradiction. Corroboration is counted per source category, not per
// evidence item, so repeated passages from one document cannot reach the
// holistic quorum alone.
func mismatchConflicts(snap state.RunState) []schema.ConflictRecord {
	if !repoScheduled(snap) {
		return nil
	}

	// Monitored claims are the ones the structural lane is answerable for.
	monitored := map[string]bool{}
	for _, d := range snap.Dimensions {
		if d.Artifact == "repo" {
			monitored[d.ID] = true
		}
	}
	truth := map[string]schema.EvidenceItem{}
	for _, it := range snap.Evidence[schema.CategoryRepo] {
		truth[it.Goal] = it
	}

	contested := map[string]map[string]bool{}
	for cat, items := range snap.Evidence {
		if Authority[cat] >= Authority[schema.CategoryRepo] {
			continue
		}
		for _, it := range items {
			if !it.Found || !monitored[it.Goal] {
				continue
			}
			if ground, ok := truth[it.Goal]; ok && ground.Found {
				continue
			}
			if contested[it.Goal] == nil {
				contested[it.Goal] = map[string]bool{}
			}
			contested[it.Goal][cat] = true
		}
	}

	var out []schema.ConflictRecord
	for _, dim := range sortedKeys(contested) {
		cats := sortedKeys(contested[dim])
		if len(cats) >= holisticQuorum {
			out = append(out, schema.ConflictRecord{
				Kind:     schema.KindHolisticMismatch,
				Severity: schema.SeverityCritical,
				Description: fmt.Sprintf(
					"%d corroborating sources (%s) assert %q against the structural finding",
					len(cats), strings.Join(cats, ", "), dim),
				Dimension: dim,
			})
			continue
		}
		out = append(out, schema.ConflictRecord{
			Kind:     schema.KindFactMismatch,
			Severity: schema.SeverityHigh,
			Description: fmt.Sprintf(
				"claims from %s assert %q which the structural finding denies or never produced",
				strings.Join(cats, ", "), dim),
			Dimension: dim,
		})
	}
	return out
}

// repoScheduled reports whether the ground-truth lane was scheduled to run.
// With no structural lane there is no authority to contradict.
func repoScheduled(snap state.RunState) bool {
	for _, cat := range snap.Scheduled {
		if cat == schema.CategoryRepo {
			return true
		}
	}
	return false
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// securityConflicts promotes unsafe-call findings from the structural scan
// to critical conflicts.
func securityConflicts(snap state.RunState) []schema.ConflictRecord {
	var out []schema.ConflictRecord
	for _, it := range snap.Evidence[schema.CategoryRepo] {
		calls := unsafeCalls(it)
		if len(calls) == 0 {
			continue
		}
		out = append(out, schema.ConflictRecord{
			Kind:     schema.KindSecurityFlaw,
			Severity: schema.SeverityCritical,
			Description: fmt.Sprintf(
				"structural scan found blacklisted calls: %s", strings.Join(calls, ", ")),
			Dimension: it.Goal,
		})
	}
	return out
}

// unsafeCalls extracts the unsafe-call list from evidence metadata,
// tolerating both the typed and the JSON-decoded shape.
func unsafeCalls(it schema.EvidenceItem) []string {
	raw, ok := it.Metadata["unsafe_calls"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
