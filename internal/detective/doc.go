package detective

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dshills/tribunal/internal/docingest"
	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
)

// DocAnalyst ingests the report document and retrieves the passages backing
// each claim-bearing dimension: the doc-artifact dimensions it owns, plus the
// repo-artifact dimensions whose claims the report also asserts. Grading the
// repo claims here gives the arbiter a second voice on the same goals.
// Document claims are interpretive, so their confidence never exceeds
// maxDocConfidence.
type DocAnalyst struct {
	cfg Config
	log *slog.Logger
}

// NewDocAnalyst creates a document detective with the given config.
func NewDocAnalyst(cfg Config) *DocAnalyst {
	return &DocAnalyst{cfg: cfg, log: logging.New("detective.doc")}
}

// Analyze is the node function. Extraction failure degrades every doc
// dimension to negative evidence.
func (a *DocAnalyst) Analyze(ctx context.Context, snap state.RunState) (state.Delta, error) {
	dims := claimDimensions(snap.Dimensions)
	if len(dims) == 0 {
		return state.Delta{}, nil
	}

	chunks, _, err := a.cfg.Extractor.Extract(ctx, snap.DocPath)
	if err != nil {
		a.log.Warn("document extraction failed", "doc", snap.DocPath, "error", err)
		items := make([]schema.EvidenceItem, 0, len(dims))
		for _, d := range dims {
			items = append(items, schema.EvidenceItem{
				Goal:       d.ID,
				Found:      false,
				Location:   snap.DocPath,
				Rationale:  "report document could not be extracted: " + err.Error(),
				Confidence: maxDocConfidence,
			})
		}
		return evidenceDelta(schema.CategoryDoc, items), nil
	}
	a.log.Info("document ingested", "doc", snap.DocPath, "chunks", len(chunks))

	items := make([]schema.EvidenceItem, 0, len(dims))
	for _, dim := range dims {
		items = append(items, retrieve(dim, snap.DocPath, chunks))
	}
	return evidenceDelta(schema.CategoryDoc, items), nil
}

// retrieve runs keyword retrieval for one dimension and shapes the best
// match into evidence.
func retrieve(dim schema.DimensionSpec, docPath string, chunks []docingest.Chunk) schema.EvidenceItem {
	results := docingest.Query(dim.SuccessPattern, chunks)
	if len(results) == 0 {
		return schema.EvidenceItem{
			Goal:       dim.ID,
			Found:      false,
			Location:   docPath,
			Rationale:  "no passage in the report matches the expected claim",
			Confidence: maxDocConfidence,
		}
	}

	best := results[0]
	conf := best.Confidence
	if conf > maxDocConfidence {
		conf = maxDocConfidence
	}
	pages := make([]int, 0, len(results))
	for _, r := range results {
		pages = append(pages, r.Page)
	}
	return schema.EvidenceItem{
		Goal:       dim.ID,
		Found:      true,
		Content:    best.Content,
		Location:   fmt.Sprintf("%s#page=%d", docPath, best.Page),
		Rationale:  fmt.Sprintf("report passage on page %d matches the expected claim", best.Page),
		Confidence: conf,
		Metadata:   map[string]any{"pages": pages},
	}
}

// claimDimensions selects the dimensions the report is expected to speak to:
// its own doc-artifact dimensions and the structurally probed repo ones.
func claimDimensions(dims []schema.DimensionSpec) []schema.DimensionSpec {
	var out []schema.DimensionSpec
	for _, d := range dims {
		if d.Artifact == "doc" || d.Artifact == "repo" {
			out = append(out, d)
		}
	}
	return out
}
