// Package audit assembles and runs the full investigation pipeline: triage,
// parallel evidence gathering, arbitration, the judge panel, and synthesis,
// scheduled on the task graph.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dshills/tribunal/internal/arbiter"
	"github.com/dshills/tribunal/internal/detective"
	"github.com/dshills/tribunal/internal/graph"
	"github.com/dshills/tribunal/internal/judge"
	"github.com/dshills/tribunal/internal/llm"
	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
	"github.com/dshills/tribunal/internal/synthesis"
)

// Pipeline node names.
const (
	nodeTriage      = "triage"
	nodeRepo        = "repo_investigator"
	nodeDoc         = "doc_analyst"
	nodeVision      = "vision_inspector"
	nodeArbiter     = "evidence_arbiter"
	nodeAdversarial = "judge_adversarial"
	nodeAdvocate    = "judge_advocate"
	nodeArbiterJdg  = "judge_arbiter"
	nodeSynthesize  = "synthesize"
)

// ErrNoRunnableLane is returned when triage cannot schedule any evidence
// category for the supplied inputs.
var ErrNoRunnableLane = errors.New("audit: no evidence lane runnable for the supplied inputs")

// Options configures a run.
type Options struct {
	RepoRef    string
	DocPath    string
	Dimensions []schema.DimensionSpec
	Detective  detective.Config
	LLM        llm.Options
}

// Result is the outcome of a completed run.
type Result struct {
	Report    schema.AuditReport
	Conflicts []schema.ConflictRecord
	Ran       []string
	Skipped   []string
}

// Run executes one audit end to end.
func Run(ctx context.Context, opts Options) (Result, error) {
	log := logging.New("audit")
	runID := uuid.NewString()

	g, err := buildPipeline(runID, opts)
	if err != nil {
		return Result{}, err
	}

	initial := state.RunState{
		RepoRef:    opts.RepoRef,
		DocPath:    opts.DocPath,
		Dimensions: opts.Dimensions,
	}
	log.Info("run starting", "run_id", runID, "repo", opts.RepoRef, "dimensions", len(opts.Dimensions))

	final, trace, err := g.Invoke(ctx, initial)
	if err != nil {
		return Result{}, fmt.Errorf("audit: run %s: %w", runID, err)
	}
	if trace.Terminal == graph.Failure {
		return Result{}, ErrNoRunnableLane
	}
	if final.Report == nil {
		return Result{}, fmt.Errorf("audit: run %s finished without a report", runID)
	}

	log.Info("run complete", "run_id", runID, "overall", final.Report.OverallScore)
	return Result{
		Report:    *final.Report,
		Conflicts: final.Conflicts,
		Ran:       trace.Ran,
		Skipped:   trace.Skipped,
	}, nil
}

// buildPipeline wires the fixed audit topology: triage routes into the
// detective fan-out, arbitration is the fan-in barrier, the judge panel fans
// out again, and synthesis is the terminal barrier.
func buildPipeline(runID string, opts Options) (*graph.Graph[state.RunState, state.Delta], error) {
	repo := detective.NewRepoInvestigator(opts.Detective)
	doc := detective.NewDocAnalyst(opts.Detective)
	vision := detective.NewVisionInspector(opts.Detective)
	arb := arbiter.New()
	synth := synthesis.New(runID)

	b := graph.New[state.RunState, state.Delta](state.Apply)

	b.AddNode(nodeTriage, triage).
		AddNode(nodeRepo, repo.Investigate).
		AddNode(nodeDoc, doc.Analyze).
		AddNode(nodeVision, vision.Inspect).
		AddNode(nodeArbiter, arb.Arbitrate).
		AddNode(nodeAdversarial, judgeNode(schema.RoleAdversarial, opts.LLM)).
		AddNode(nodeAdvocate, judgeNode(schema.RoleAdvocate, opts.LLM)).
		AddNode(nodeArbiterJdg, judgeNode(schema.RoleArbiter, opts.LLM)).
		AddNode(nodeSynthesize, synth.Synthesize)

	b.AddEdge(graph.Start, nodeTriage)
	b.AddConditionalEdges(nodeTriage, routeDetectives, nodeRepo, nodeDoc, nodeVision)
	b.AddEdge(nodeRepo, nodeArbiter)
	b.AddEdge(nodeDoc, nodeArbiter)
	b.AddEdge(nodeVision, nodeArbiter)
	b.AddEdge(nodeArbiter, nodeAdversarial)
	b.AddEdge(nodeArbiter, nodeAdvocate)
	b.AddEdge(nodeArbiter, nodeArbiterJdg)
	b.AddEdge(nodeAdversarial, nodeSynthesize)
	b.AddEdge(nodeAdvocate, nodeSynthesize)
	b.AddEdge(nodeArbiterJdg, nodeSynthesize)
	b.AddEdge(nodeSynthesize, graph.End)

	return b.Compile()
}

// triage decides which evidence categories the inputs make runnable and
// records the decision so arbitration can tell skipped from missing.
func triage(_ context.Context, snap state.RunState) (state.Delta, error) {
	return state.Delta{Scheduled: scheduledCategories(snap)}, nil
}

func scheduledCategories(snap state.RunState) []string {
	hasArtifact := map[string]bool{}
	for _, d := range snap.Dimensions {
		hasArtifact[d.Artifact] = true
	}

	var cats []string
	if snap.RepoRef != "" && hasArtifact["repo"] {
		cats = append(cats, schema.CategoryRepo)
	}
	if snap.DocPath != "" && hasArtifact["doc"] {
		cats = append(cats, schema.CategoryDoc)
	}
	if snap.DocPath != "" && hasArtifact["diagram"] {
		cats = append(cats, schema.CategoryVision)
	}
	return cats
}

// routeDetectives converts the triage decision into detective activations.
// Nothing scheduled routes to the failure terminal.
func routeDetectives(snap state.RunState) graph.Route {
	var names []string
	for _, cat := range snap.Scheduled {
		switch cat {
		case schema.CategoryRepo:
			names = append(names, nodeRepo)
		case schema.CategoryDoc:
			names = append(names, nodeDoc)
		case schema.CategoryVision:
			names = append(names, nodeVision)
		}
	}
	if len(names) == 0 {
		return graph.Fail()
	}
	return graph.To(names...)
}

// judgeNode adapts a persona to the node signature.
func judgeNode(role schema.JudgeRole, opts llm.Options) graph.NodeFunc[state.RunState, state.Delta] {
	return judge.New(role, opts).Deliberate
}
