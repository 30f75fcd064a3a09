package detective

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/tribunal/internal/forensics"
	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
)

// RepoInvestigator clones the submission into a throwaway sandbox directory
// and runs the structural probes bound to each repo-artifact dimension.
type RepoInvestigator struct {
	cfg Config
	log *slog.Logger
}

// NewRepoInvestigator creates a repo detective with the given config.
func NewRepoInvestigator(cfg Config) *RepoInvestigator {
	return &RepoInvestigator{cfg: cfg, log: logging.New("detective.repo")}
}

// Investigate is the node function. The clone lives in a temp directory
// removed before return; a clone failure degrades every repo dimension to
// negative evidence rather than aborting the run.
func (r *RepoInvestigator) Investigate(ctx context.Context, snap state.RunState) (state.Delta, error) {
	dims := repoDimensions(snap.Dimensions)
	if len(dims) == 0 {
		return state.Delta{}, nil
	}

	dir, err := os.MkdirTemp("", "tribunal-clone-*")
	if err != nil {
		return evidenceDelta(schema.CategoryRepo, failAll(dims, "sandbox", "could not create sandbox directory: "+err.Error())), nil
	}
	defer os.RemoveAll(dir)

	cloneCtx, cancel := context.WithTimeout(ctx, r.cfg.CloneTimeout)
	defer cancel()
	if err := forensics.Clone(cloneCtx, snap.RepoRef, dir); err != nil {
		r.log.Warn("clone failed", "repo", snap.RepoRef, "error", err)
		return evidenceDelta(schema.CategoryRepo, failAll(dims, snap.RepoRef, "repository could not be cloned: "+err.Error())), nil
	}
	r.log.Info("repository cloned", "repo", snap.RepoRef)

	items := make([]schema.EvidenceItem, 0, len(dims))
	for _, dim := range dims {
		items = append(items, r.probe(ctx, dir, dim))
	}
	return evidenceDelta(schema.CategoryRepo, items), nil
}

// probe dispatches one dimension to its structural check.
func (r *RepoInvestigator) probe(ctx context.Context, dir string, dim schema.DimensionSpec) schema.EvidenceItem {
	switch dim.Probe {
	case schema.ProbeGraphStructure:
		return r.probeGraph(ctx, dir, dim)
	case schema.ProbeReducers:
		return r.probeReducers(ctx, dir, dim)
	case schema.ProbeSafety:
		return r.probeSafety(ctx, dir, dim)
	case schema.ProbeGitHistory:
		return r.probeGit(ctx, dir, dim)
	}
	return schema.EvidenceItem{
		Goal:       dim.ID,
		Found:      false,
		Location:   dir,
		Rationale:  "dimension has no structural probe bound",
		Confidence: repoConfidence,
	}
}

func (r *RepoInvestigator) probeGraph(ctx context.Context, dir string, dim schema.DimensionSpec) schema.EvidenceItem {
	path, ok := discover(dir, r.cfg.GraphGlobs)
	if !ok {
		return notFound(dim.ID, dir, "no graph definition file located")
	}
	f := forensics.AnalyzeGraph(ctx, path, r.cfg.Prof)
	found := f.InstanceFound && f.Compiled && f.CompiledOnBuilder && f.FanOutCount >= 2
	rationale := "graph builder instantiated, compiled on the bound instance, with parallel fan-out"
	if !found {
		rationale = "graph structure did not satisfy the parallel fan-out and compile checks"
	}
	return schema.EvidenceItem{
		Goal:       dim.ID,
		Found:      found,
		Content:    mustJSON(f),
		Location:   relTo(dir, path),
		Rationale:  rationale,
		Confidence: repoConfidence,
		Metadata: map[string]any{
			"fan_out":             f.FanOutCount,
			"fan_in":              f.FanInCount,
			"conditional_edges":   f.ConditionalEdges,
			"compiled_on_builder": f.CompiledOnBuilder,
		},
	}
}

func (r *RepoInvestigator) probeReducers(ctx context.Context, dir string, dim schema.DimensionSpec) schema.EvidenceItem {
	path, ok := discover(dir, r.cfg.StateGlobs)
	if !ok {
		return notFound(dim.ID, dir, "no state declaration file located")
	}
	f := forensics.VerifyReducers(ctx, path, r.cfg.Prof)
	rationale := "state declarations register at least two distinct reducer kinds"
	if !f.Robust {
		rationale = "state declarations lack robust per-field reducers"
	}
	return schema.EvidenceItem{
		Goal:       dim.ID,
		Found:      f.Robust,
		Content:    mustJSON(f),
		Location:   relTo(dir, path),
		Rationale:  rationale,
		Confidence: repoConfidence,
		Metadata:   map[string]any{"reducers": f.Reducers},
	}
}

func (r *RepoInvestigator) probeSafety(ctx context.Context, dir string, dim schema.DimensionSpec) schema.EvidenceItem {
	var unsafe []string
	for _, glob := range r.cfg.SafetyGlobs {
		matches, err := doublestar.Glob(os.DirFS(dir), glob)
		if err != nil {
			continue
		}
		for _, m := range matches {
			f := forensics.ScanSafety(ctx, filepath.Join(dir, m), r.cfg.Prof)
			unsafe = append(unsafe, f.UnsafeCalls...)
		}
	}
	safe := len(unsafe) == 0
	rationale := "no blacklisted calls in scanned sources"
	if !safe {
		rationale = "blacklisted calls present in scanned sources"
	}
	return schema.EvidenceItem{
		Goal:       dim.ID,
		Found:      safe,
		Location:   dir,
		Rationale:  rationale,
		Confidence: repoConfidence,
		Metadata:   map[string]any{"unsafe_calls": unsafe},
	}
}

func (r *RepoInvestigator) probeGit(ctx context.Context, dir string, dim schema.DimensionSpec) schema.EvidenceItem {
	f := forensics.History(ctx, dir)
	found := f.Pattern == forensics.PatternIterative
	// History is narrative rather than structural extraction, so it sits just
	// below full ground-truth confidence.
	return schema.EvidenceItem{
		Goal:       dim.ID,
		Found:      found,
		Content:    mustJSON(f),
		Location:   dir,
		Rationale:  "development pattern classified as " + f.Pattern,
		Confidence: gitConfidence,
		Metadata: map[string]any{
			"commit_count":       f.CommitCount,
			"time_delta_seconds": f.TimeDelta,
			"pattern":            f.Pattern,
		},
	}
}

// discover returns the first file matching any glob, in glob order.
func discover(dir string, globs []string) (string, bool) {
	fsys := os.DirFS(dir)
	for _, glob := range globs {
		matches, err := doublestar.Glob(fsys, glob, doublestar.WithFilesOnly())
		if err != nil || len(matches) == 0 {
			continue
		}
		return filepath.Join(dir, matches[0]), true
	}
	return "", false
}

func repoDimensions(dims []schema.DimensionSpec) []schema.DimensionSpec {
	var out []schema.DimensionSpec
	for _, d := range dims {
		if d.Artifact == "repo" {
			out = append(out, d)
		}
	}
	return out
}

func failAll(dims []schema.DimensionSpec, location, rationale string) []schema.EvidenceItem {
	out := make([]schema.EvidenceItem, 0, len(dims))
	for _, d := range dims {
		out = append(out, schema.EvidenceItem{
			Goal:       d.ID,
			Found:      false,
			Location:   location,
			Rationale:  rationale,
			Confidence: repoConfidence,
		})
	}
	return out
}

func notFound(goal, location, rationale string) schema.EvidenceItem {
	return schema.EvidenceItem{
		Goal:       goal,
		Found:      false,
		Location:   location,
		Rationale:  rationale,
		Confidence: repoConfidence,
	}
}

var evidenceLog = logging.New("detective")

// evidenceDelta wraps validated items into a delta. An item violating the
// evidence invariants is dropped rather than written into run state.
func evidenceDelta(category string, items []schema.EvidenceItem) state.Delta {
	kept := make([]schema.EvidenceItem, 0, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			evidenceLog.Warn("dropping invalid evidence", "category", category, "goal", it.Goal, "error", err)
			continue
		}
		kept = append(kept, it)
	}
	return state.Delta{Evidence: map[string][]schema.EvidenceItem{category: kept}}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func relTo(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return rel
}
