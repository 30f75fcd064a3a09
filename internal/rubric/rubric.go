// Package rubric loads and validates the evaluation dimensions supplied to a
// run. Dimensions are read once before scheduling and immutable thereafter.
package rubric

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dshills/tribunal/internal/schema"
)

type document struct {
	Dimensions []schema.DimensionSpec `yaml:"dimensions"`
}

// Load reads a YAML rubric file into dimension specs.
func Load(path string) ([]schema.DimensionSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rubric: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("rubric: parse %s: %w", path, err)
	}
	if err := Validate(doc.Dimensions); err != nil {
		return nil, err
	}
	return doc.Dimensions, nil
}

// Validate checks dimension invariants: at least one dimension, non-empty
// unique ids, known artifact kinds and probes.
func Validate(dims []schema.DimensionSpec) error {
	if len(dims) == 0 {
		return fmt.Errorf("rubric: no dimensions defined")
	}
	seen := map[string]bool{}
	for i, d := range dims {
		if d.ID == "" {
			return fmt.Errorf("rubric: dimension %d has empty id", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("rubric: duplicate dimension id %q", d.ID)
		}
		seen[d.ID] = true
		if d.Name == "" {
			return fmt.Errorf("rubric: dimension %q has empty name", d.ID)
		}
		switch d.Artifact {
		case "repo", "doc", "diagram":
		default:
			return fmt.Errorf("rubric: dimension %q has unknown artifact %q", d.ID, d.Artifact)
		}
		switch d.Probe {
		case "", schema.ProbeGraphStructure, schema.ProbeReducers, schema.ProbeSafety, schema.ProbeGitHistory:
		default:
			return fmt.Errorf("rubric: dimension %q has unknown probe %q", d.ID, d.Probe)
		}
	}
	return nil
}

// Builtin returns the default audit rubric used when no rubric file is
// supplied.
func Builtin() []schema.DimensionSpec {
	return []schema.DimensionSpec{
		{
			ID:             "graph_architecture",
			Name:           "State Graph Architecture",
			Artifact:       "repo",
			Probe:          schema.ProbeGraphStructure,
			Instruction:    "Verify the submission builds a state graph with parallel fan-out from the start node and a fan-in barrier.",
			SuccessPattern: "parallel fan-out barrier state graph",
			FailurePattern: "sequential single chain",
		},
		{
			ID:             "state_management",
			Name:           "Concurrent State Management",
			Artifact:       "repo",
			Probe:          schema.ProbeReducers,
			Instruction:    "Verify the shared state declares per-field reducers covering both map-union and list-append semantics.",
			SuccessPattern: "reducer annotated operator merge",
			FailurePattern: "global mutable state overwrite",
		},
		{
			ID:             "tool_safety",
			Name:           "Safe Tool Engineering",
			Artifact:       "repo",
			Probe:          schema.ProbeSafety,
			Instruction:    "Verify tooling avoids shell execution and dynamic code evaluation, and sandboxes external operations.",
			SuccessPattern: "sandbox timeout temporary directory",
			FailurePattern: "os.system eval exec",
		},
		{
			ID:             "dev_narrative",
			Name:           "Development Narrative",
			Artifact:       "repo",
			Probe:          schema.ProbeGitHistory,
			Instruction:    "Verify the commit history shows iterative development rather than a single monolithic dump.",
			SuccessPattern: "iterative incremental commits",
			FailurePattern: "single commit dump",
		},
		{
			ID:             "doc_fidelity",
			Name:           "Report Fidelity",
			Artifact:       "doc",
			Instruction:    "Verify the report's claims about architecture and metacognition are backed by the code evidence.",
			SuccessPattern: "metacognition architecture evidence",
			FailurePattern: "unsupported claim",
		},
		{
			ID:             "diagram_fidelity",
			Name:           "Architecture Diagram Fidelity",
			Artifact:       "diagram",
			Instruction:    "Verify the embedded diagram depicts the declared start and end nodes and the parallel branches.",
			SuccessPattern: "diagram START END arrows",
			FailurePattern: "generic unrelated figure",
		},
	}
}
