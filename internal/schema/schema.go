// Package schema defines the canonical data types shared by every stage of
// the audit pipeline: evidence produced by detectives, opinions produced by
// judges, conflicts produced by arbitration, and the final report.
package schema

import "fmt"

// JudgeRole identifies the persona that produced an opinion.
type JudgeRole string

const (
	// RoleAdversarial hunts for failures, violations, and structural debt.
	RoleAdversarial JudgeRole = "ADVERSARIAL"
	// RoleAdvocate highlights strengths, modularity, and compliance.
	RoleAdvocate JudgeRole = "ADVOCATE"
	// RoleArbiter provides the balanced judgment and remediation steps.
	RoleArbiter JudgeRole = "ARBITER"
)

// Severity represents the severity tier of a conflict record.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ConflictKind is the tagged taxonomy of arbitration conflicts. Downstream
// consumers match on the kind, never on description substrings.
type ConflictKind string

const (
	// KindCompleteness marks an evidence category that was scheduled to run
	// but produced nothing.
	KindCompleteness ConflictKind = "COMPLETENESS"
	// KindFactMismatch marks a lower-authority claim contradicted by the
	// ground-truth structural source.
	KindFactMismatch ConflictKind = "FACT_MISMATCH"
	// KindHolisticMismatch marks three or more independent sources
	// corroborating a claim the ground-truth source denies.
	KindHolisticMismatch ConflictKind = "HOLISTIC_MISMATCH"
	// KindSecurityFlaw marks an unsafe-call finding from the structural scan.
	KindSecurityFlaw ConflictKind = "SECURITY_FLAW"
)

// Evidence category names. Categories are also the keys of the run state
// evidence map; each detective writes exactly one.
const (
	CategoryRepo   = "repo"
	CategoryDoc    = "doc"
	CategoryVision = "vision"
)

// EvidenceItem is a single structured forensic finding. Items are immutable
// once appended to run state.
type EvidenceItem struct {
	// Goal is the rubric dimension id this finding speaks to.
	Goal       string         `json:"goal"`
	Found      bool           `json:"found"`
	Content    string         `json:"content,omitempty"`
	Location   string         `json:"location"`
	Rationale  string         `json:"rationale"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate checks the EvidenceItem invariants.
func (e EvidenceItem) Validate() error {
	if e.Goal == "" {
		return fmt.Errorf("schema: evidence goal is empty")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("schema: evidence confidence %v outside [0,1]", e.Confidence)
	}
	return nil
}

// Opinion is a scored, justified judgment on one rubric dimension from one
// judge persona. Opinions are written by the reasoning provider and validated
// before entering run state.
type Opinion struct {
	Judge         JudgeRole `json:"judge"`
	CriterionID   string    `json:"criterion_id"`
	Score         int       `json:"score"`
	Argument      string    `json:"argument"`
	CitedEvidence []string  `json:"cited_evidence"`
}

// Validate checks the Opinion invariants.
func (o Opinion) Validate() error {
	switch o.Judge {
	case RoleAdversarial, RoleAdvocate, RoleArbiter:
	default:
		return fmt.Errorf("schema: unknown judge role %q", o.Judge)
	}
	if o.CriterionID == "" {
		return fmt.Errorf("schema: opinion criterion_id is empty")
	}
	if o.Score < 1 || o.Score > 5 {
		return fmt.Errorf("schema: opinion score %d outside [1,5]", o.Score)
	}
	return nil
}

// ConflictRecord is a detected contradiction or gap between evidence sources.
// A conflict is a first-class fact, not an error; records are read-only once
// emitted.
type ConflictRecord struct {
	Kind        ConflictKind `json:"kind"`
	Severity    Severity     `json:"severity"`
	Description string       `json:"description"`
	// Dimension is the exact rubric dimension id the conflict refers to,
	// empty for run-level conflicts such as completeness gaps.
	Dimension string `json:"dimension,omitempty"`
}

// DimensionSpec is one rubric dimension, loaded once at run start and
// immutable thereafter.
type DimensionSpec struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// Artifact names the artifact class under evaluation: "repo", "doc",
	// or "diagram".
	Artifact    string `json:"artifact" yaml:"artifact"`
	Instruction string `json:"instruction" yaml:"instruction"`
	// Probe selects the structural check backing this dimension, if any.
	// The forensics package implements the probes.
	Probe          string `json:"probe,omitempty" yaml:"probe,omitempty"`
	SuccessPattern string `json:"success_pattern" yaml:"success_pattern"`
	FailurePattern string `json:"failure_pattern" yaml:"failure_pattern"`
}

// Probe names accepted in DimensionSpec.Probe.
const (
	ProbeGraphStructure = "graph_structure"
	ProbeReducers       = "reducers"
	ProbeSafety         = "safety"
	ProbeGitHistory     = "git_history"
)

// CriterionResult is the synthesized consensus for one rubric dimension.
type CriterionResult struct {
	DimensionID    string    `json:"dimension_id"`
	DimensionName  string    `json:"dimension_name"`
	FinalScore     int       `json:"final_score"`
	Opinions       []Opinion `json:"opinions"`
	DissentSummary string    `json:"dissent_summary,omitempty"`
	Remediation    string    `json:"remediation"`
}

// AuditReport is the terminal artifact of a run.
type AuditReport struct {
	RunID            string            `json:"run_id"`
	RepoRef          string            `json:"repo_ref"`
	ExecutiveSummary string            `json:"executive_summary"`
	OverallScore     float64           `json:"overall_score"`
	Criteria         []CriterionResult `json:"criteria"`
	RemediationPlan  string            `json:"remediation_plan"`
}
