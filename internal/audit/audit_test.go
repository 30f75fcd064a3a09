package audit

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tribunal/internal/detective"
	"github.com/dshills/tribunal/internal/docingest"
	"github.com/dshills/tribunal/internal/llm"
	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
)

// panelProvider answers every opinion request with a fixed score, echoing
// the criterion id it finds in the prompt.
type panelProvider struct{ score int }

func (p panelProvider) Complete(_ context.Context, _, userPrompt string, _ int, _ float64) (string, error) {
	start := strings.Index(userPrompt, "(")
	end := strings.Index(userPrompt, ")")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no criterion in prompt")
	}
	id := userPrompt[start+1 : end]
	return fmt.Sprintf(
		`{"judge":"ARBITER","criterion_id":%q,"score":%d,"argument":"fixture judgment"}`,
		id, p.score), nil
}

func installPanel(t *testing.T, score int) {
	t.Helper()
	orig := llm.NewProvider
	t.Cleanup(func() { llm.NewProvider = orig })
	llm.NewProvider = func(_, _ string) (llm.Provider, error) {
		return panelProvider{score: score}, nil
	}
}

type fixtureExtractor struct{}

func (fixtureExtractor) Extract(context.Context, string) ([]docingest.Chunk, [][]byte, error) {
	return []docingest.Chunk{
		{ChunkID: "p1", Page: 1, Content: "The graph fans out in parallel with a fan-in barrier.", Confidence: 0.85},
	}, nil, nil
}

func fixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	graphSrc := `
builder = StateGraph(AuditState)
builder.add_edge(START, "a")
builder.add_edge(START, "b")
app = builder.compile()
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graph.py"), []byte(graphSrc), 0o644))
	for _, args := range [][]string{
		{"init", "--quiet"},
		{"config", "user.email", "audit@example.com"},
		{"config", "user.name", "audit"},
		{"add", "."},
		{"commit", "--quiet", "-m", "initial"},
	} {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	return dir
}

func testDims() []schema.DimensionSpec {
	return []schema.DimensionSpec{
		{ID: "graph_architecture", Name: "Graph", Artifact: "repo", Probe: schema.ProbeGraphStructure, SuccessPattern: "parallel fan-out"},
		{ID: "doc_fidelity", Name: "Fidelity", Artifact: "doc", SuccessPattern: "parallel fan-in barrier"},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	installPanel(t, 4)

	cfg := detective.DefaultConfig()
	cfg.Extractor = fixtureExtractor{}

	res, err := Run(context.Background(), Options{
		RepoRef:    fixtureRepo(t),
		DocPath:    "report.pdf",
		Dimensions: testDims(),
		Detective:  cfg,
		LLM:        llm.Options{MaxTokens: 512},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Report.RunID)
	require.Len(t, res.Report.Criteria, 2)
	assert.Contains(t, res.Ran, nodeRepo)
	assert.Contains(t, res.Ran, nodeDoc)
	assert.Contains(t, res.Skipped, nodeVision, "no diagram dimension scheduled")
	assert.Contains(t, res.Ran, nodeSynthesize)

	// All three voices scored 4, so each blend is the full 4.0.
	assert.InDelta(t, 4.0, res.Report.OverallScore, 1e-9)
	for _, c := range res.Report.Criteria {
		assert.Equal(t, 4, c.FinalScore)
		assert.Len(t, c.Opinions, 3, "every persona voiced an opinion")
	}
}

func TestRun_NoInputsReachesFailureTerminal(t *testing.T) {
	installPanel(t, 3)

	res, err := Run(context.Background(), Options{
		Dimensions: testDims(),
		Detective:  detective.DefaultConfig(),
	})
	require.ErrorIs(t, err, ErrNoRunnableLane)
	assert.Empty(t, res.Report.RunID)
}

func TestScheduledCategories(t *testing.T) {
	dims := []schema.DimensionSpec{
		{ID: "a", Artifact: "repo"},
		{ID: "b", Artifact: "doc"},
		{ID: "c", Artifact: "diagram"},
	}

	cases := []struct {
		name    string
		repoRef string
		docPath string
		want    []string
	}{
		{"all inputs", "repo.git", "report.pdf", []string{schema.CategoryRepo, schema.CategoryDoc, schema.CategoryVision}},
		{"repo only", "repo.git", "", []string{schema.CategoryRepo}},
		{"doc only", "", "report.pdf", []string{schema.CategoryDoc, schema.CategoryVision}},
		{"nothing", "", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scheduledCategories(state.RunState{
				RepoRef:    tc.repoRef,
				DocPath:    tc.docPath,
				Dimensions: dims,
			})
			assert.Equal(t, tc.want, got)
		})
	}
}
