package detective

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	googleoption "google.golang.org/api/option"

	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/schema"
	"github.com/dshills/tribunal/internal/state"
)

var (
	errNoGoogleKey         = errors.New("detective: GOOGLE_API_KEY environment variable not set")
	errEmptyVisionResponse = errors.New("detective: vision response contained no text")
)

// DiagramAnalyzer produces a textual description of a diagram image.
type DiagramAnalyzer interface {
	Describe(ctx context.Context, image []byte) (string, error)
}

// VisionInspector checks embedded architecture diagrams against each
// diagram-artifact dimension, and against repo dimensions backed by the graph
// probe since a structural diagram asserts the same topology. The lane is
// interpretive and degrades to negative evidence whenever images or an
// analyzer are unavailable.
type VisionInspector struct {
	cfg Config
	log *slog.Logger
}

// NewVisionInspector creates a diagram detective with the given config.
func NewVisionInspector(cfg Config) *VisionInspector {
	return &VisionInspector{cfg: cfg, log: logging.New("detective.vision")}
}

// Inspect is the node function.
func (v *VisionInspector) Inspect(ctx context.Context, snap state.RunState) (state.Delta, error) {
	dims := diagramDimensions(snap.Dimensions)
	if len(dims) == 0 {
		return state.Delta{}, nil
	}

	_, images, err := v.cfg.Extractor.Extract(ctx, snap.DocPath)
	switch {
	case err != nil:
		return evidenceDelta(schema.CategoryVision, degradeAll(dims, snap.DocPath, "report document could not be extracted: "+err.Error())), nil
	case len(images) == 0:
		return evidenceDelta(schema.CategoryVision, degradeAll(dims, snap.DocPath, "no embedded diagrams recovered from the report")), nil
	case v.cfg.Analyzer == nil:
		return evidenceDelta(schema.CategoryVision, degradeAll(dims, snap.DocPath, "no diagram analyzer configured")), nil
	}

	desc, err := v.cfg.Analyzer.Describe(ctx, images[0])
	if err != nil {
		v.log.Warn("diagram analysis failed", "error", err)
		return evidenceDelta(schema.CategoryVision, degradeAll(dims, snap.DocPath, "diagram analysis failed: "+err.Error())), nil
	}

	items := make([]schema.EvidenceItem, 0, len(dims))
	for _, dim := range dims {
		items = append(items, gradeDiagram(dim, snap.DocPath, desc, v.cfg.Prof.StartName))
	}
	return evidenceDelta(schema.CategoryVision, items), nil
}

// gradeDiagram applies the structural logic gate: the described diagram must
// depict both the designated start node and an end node to count as a
// faithful architecture figure.
func gradeDiagram(dim schema.DimensionSpec, docPath, desc, startName string) schema.EvidenceItem {
	upper := strings.ToUpper(desc)
	found := strings.Contains(upper, strings.ToUpper(startName)) && strings.Contains(upper, "END")
	rationale := "diagram depicts the declared entry and terminal nodes"
	if !found {
		rationale = "diagram does not depict the declared entry and terminal nodes"
	}
	return schema.EvidenceItem{
		Goal:       dim.ID,
		Found:      found,
		Content:    desc,
		Location:   docPath,
		Rationale:  rationale,
		Confidence: maxVisionConfidence,
	}
}

func degradeAll(dims []schema.DimensionSpec, location, rationale string) []schema.EvidenceItem {
	out := make([]schema.EvidenceItem, 0, len(dims))
	for _, d := range dims {
		out = append(out, schema.EvidenceItem{
			Goal:       d.ID,
			Found:      false,
			Location:   location,
			Rationale:  rationale,
			Confidence: maxVisionConfidence,
		})
	}
	return out
}

func diagramDimensions(dims []schema.DimensionSpec) []schema.DimensionSpec {
	var out []schema.DimensionSpec
	for _, d := range dims {
		if d.Artifact == "diagram" || (d.Artifact == "repo" && d.Probe == schema.ProbeGraphStructure) {
			out = append(out, d)
		}
	}
	return out
}

// GeminiDiagramAnalyzer describes diagram images with a multimodal Google
// model. It satisfies DiagramAnalyzer.
type GeminiDiagramAnalyzer struct {
	Model string
}

const diagramPrompt = "Describe this architecture diagram. Name every node " +
	"label you can read, including entry and terminal markers, and describe " +
	"how the arrows connect them."

// Describe sends the image to the model and returns its description.
func (g GeminiDiagramAnalyzer) Describe(ctx context.Context, image []byte) (string, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return "", errNoGoogleKey
	}
	client, err := genai.NewClient(ctx, googleoption.WithAPIKey(apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	m := client.GenerativeModel(g.Model)
	resp, err := m.GenerateContent(ctx, genai.ImageData("png", image), genai.Text(diagramPrompt))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	if sb.Len() == 0 {
		return "", errEmptyVisionResponse
	}
	return sb.String(), nil
}
