// Package judge implements the deliberation panel. Each persona scores every
// rubric dimension from the same evidence and conflict record, through the
// reasoning provider. A judge never fails the run: provider errors become
// minimum-score opinions carrying the failure in their argument.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/tribunal/internal/llm"
	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
)

// personaPrompts are the system prompts fixing each judge's disposition.
var personaPrompts = map[schema.JudgeRole]string{
	schema.RoleAdversarial: "You are the adversarial judge on an audit panel. " +
		"Hunt for failures, invariant violations, unsupported claims, and structural debt. " +
		"Score harshly when the evidence leaves doubt.",
	schema.RoleAdvocate: "You are the advocate judge on an audit panel. " +
		"Highlight demonstrated strengths, modularity, and compliance with the criterion. " +
		"Give credit wherever the evidence supports it.",
	schema.RoleArbiter: "You are the arbiter judge on an audit panel. " +
		"Weigh the adversarial and advocate perspectives against the evidence, deliver the balanced " +
		"judgment, and prescribe concrete remediation steps.",
}

const outputContract = `Respond with a single JSON object and nothing else:
{"judge": %q, "criterion_id": %q, "score": <integer 1-5>, "argument": "<your reasoning>", "cited_evidence": ["<goal ids you relied on>"]}`

// Judge scores every rubric dimension from one persona.
type Judge struct {
	role schema.JudgeRole
	opts llm.Options
	log  *slog.Logger
}

// New creates a judge for the given persona.
func New(role schema.JudgeRole, opts llm.Options) *Judge {
	return &Judge{
		role: role,
		opts: opts,
		log:  logging.New("judge." + strings.ToLower(string(role))),
	}
}

// Deliberate is the node function. One opinion is emitted per dimension,
// always: failed requests degrade to the minimum score so synthesis never
// sees a missing voice.
func (j *Judge) Deliberate(ctx context.Context, snap state.RunState) (state.Delta, error) {
	provider, err := llm.NewProvider(j.opts.Provider, j.opts.Model)
	if err != nil {
		j.log.Error("provider unavailable", "error", err)
		var ops []schema.Opinion
		for _, dim := range snap.Dimensions {
			ops = append(ops, j.failedOpinion(dim, err))
		}
		return state.Delta{Opinions: ops}, nil
	}

	ops := make([]schema.Opinion, 0, len(snap.Dimensions))
	for _, dim := range snap.Dimensions {
		op, err := llm.RequestOpinion(ctx, provider,
			j.systemPrompt(dim), j.userPrompt(dim, snap), j.opts)
		if err != nil {
			j.log.Warn("opinion request failed", "dimension", dim.ID, "error", err)
			ops = append(ops, j.failedOpinion(dim, err))
			continue
		}
		// The model's self-labels are advisory; the panel assignment is
		// authoritative.
		op.Judge = j.role
		op.CriterionID = dim.ID
		ops = append(ops, op)
	}
	return state.Delta{Opinions: ops}, nil
}

func (j *Judge) systemPrompt(dim schema.DimensionSpec) string {
	return personaPrompts[j.role] + "\n\n" +
		fmt.Sprintf(outputContract, string(j.role), dim.ID)
}

// userPrompt assembles the dimension brief: the instruction, the evidence
// gathered for this dimension across every category, and the conflicts the
// arbitration raised against it.
func (j *Judge) userPrompt(dim schema.DimensionSpec, snap state.RunState) string {
	type categorized struct {
		Category string              `json:"category"`
		Item     schema.EvidenceItem `json:"item"`
	}
	var evidence []categorized
	for _, cat := range []string{schema.CategoryRepo, schema.CategoryDoc, schema.CategoryVision} {
		for _, it := range snap.Evidence[cat] {
			if it.Goal == dim.ID {
				evidence = append(evidence, categorized{Category: cat, Item: it})
			}
		}
	}
	var conflicts []schema.ConflictRecord
	for _, c := range snap.Conflicts {
		if c.Dimension == dim.ID || c.Dimension == "" {
			conflicts = append(conflicts, c)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Criterion: %s (%s)\n", dim.Name, dim.ID)
	fmt.Fprintf(&sb, "Instruction: %s\n", dim.Instruction)
	sb.WriteString("\nEvidence (repo findings are structural ground truth; doc and vision are interpretive):\n")
	sb.WriteString(mustJSON(evidence))
	sb.WriteString("\n\nConflicts raised by arbitration:\n")
	sb.WriteString(mustJSON(conflicts))
	sb.WriteString("\n\nScore this criterion from 1 (absent or broken) to 5 (exemplary).")
	return sb.String()
}

// failedOpinion is the degraded voice of a judge whose request could not be
// completed.
func (j *Judge) failedOpinion(dim schema.DimensionSpec, err error) schema.Opinion {
	return schema.Opinion{
		Judge:       j.role,
		CriterionID: dim.ID,
		Score:       1,
		Argument:    fmt.Sprintf("judgment unavailable: %v", err),
	}
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
