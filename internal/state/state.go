// Package state models the shared run state and its declarative merge
// semantics. The scheduler owns the only mutable copy; node code receives a
// read-only snapshot and returns a Delta. Apply is the single merge point,
// invoked centrally after each barrier; nodes never merge with each other.
package state

import "github.com/dshills/tribunal/internal/schema"

// Policy is the merge policy of one RunState field, fixed at schema
// definition time.
type Policy int

const (
	// Replace is for singleton fields written by exactly one branch;
	// the last non-zero write wins.
	Replace Policy = iota
	// KeyUnion is for map fields populated by disjoint-key concurrent
	// branches; each branch's keys are inserted unchanged. If two branches
	// write the same key, the inner lists are concatenated so no branch's
	// evidence is lost.
	KeyUnion
	// Append is for sequence fields where every branch's emitted list is
	// concatenated. Cross-branch order is not guaranteed; consumers must be
	// order-insensitive.
	Append
)

// Policies declares the merge policy of every RunState field. The table is
// exported so the reducer-robustness property (at least two distinct policy
// kinds in use) is checkable.
var Policies = map[string]Policy{
	"repo_ref":   Replace,
	"doc_path":   Replace,
	"dimensions": Replace,
	"scheduled":  Replace,
	"evidence":   KeyUnion,
	"opinions":   Append,
	"conflicts":  Append,
	"report":     Replace,
}

// RunState is the shared record threaded through the task graph. It is
// created once per run and mutated only via Apply.
type RunState struct {
	RepoRef    string
	DocPath    string
	Dimensions []schema.DimensionSpec
	// Scheduled lists the evidence categories the routing decision made
	// runnable; arbitration uses it to distinguish skipped from missing.
	Scheduled []string
	// Evidence maps category name to the ordered findings of that category's
	// detective.
	Evidence  map[string][]schema.EvidenceItem
	Opinions  []schema.Opinion
	Conflicts []schema.ConflictRecord
	Report    *schema.AuditReport
}

// Delta is a partial contribution returned by a node. Zero-value fields
// contribute nothing.
type Delta struct {
	Scheduled []string
	Evidence  map[string][]schema.EvidenceItem
	Opinions  []schema.Opinion
	Conflicts []schema.ConflictRecord
	Report    *schema.AuditReport
}

// Apply merges a delta into a state and returns the result. It is pure: the
// inputs are never mutated, and shared slices are copied before growth so a
// snapshot handed to one node cannot observe another node's contribution.
func Apply(s RunState, d Delta) RunState {
	out := s

	if d.Scheduled != nil {
		out.Scheduled = d.Scheduled
	}
	if d.Report != nil {
		out.Report = d.Report
	}
	if len(d.Evidence) > 0 {
		out.Evidence = unionEvidence(s.Evidence, d.Evidence)
	}
	if len(d.Opinions) > 0 {
		out.Opinions = appendList(s.Opinions, d.Opinions)
	}
	if len(d.Conflicts) > 0 {
		out.Conflicts = appendList(s.Conflicts, d.Conflicts)
	}

	return out
}

// unionEvidence implements the KeyUnion policy. Branches are expected to
// write disjoint keys; when they do not, the inner lists are concatenated.
func unionEvidence(base, add map[string][]schema.EvidenceItem) map[string][]schema.EvidenceItem {
	merged := make(map[string][]schema.EvidenceItem, len(base)+len(add))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range add {
		if existing, ok := merged[k]; ok {
			merged[k] = appendList(existing, v)
			continue
		}
		merged[k] = v
	}
	return merged
}

// appendList implements the Append policy without aliasing either input.
func appendList[T any](base, add []T) []T {
	out := make([]T, 0, len(base)+len(add))
	out = append(out, base...)
	return append(out, add...)
}
