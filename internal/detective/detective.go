// Package detective implements the evidence-gathering lane of the audit
// pipeline. Each detective examines one artifact class (cloned repository,
// report document, embedded diagrams) and emits structured evidence keyed by
// rubric dimension. Detectives never fail the run: every internal failure is
// encoded as negative evidence in the returned delta.
package detective

import (
	"time"

	"github.com/dshills/tribunal/internal/docingest"
	"github.com/dshills/tribunal/internal/forensics"
)

// Source-authority confidence levels. Structural extraction from the cloned
// repo is ground truth; interpretive lanes are capped below it so arbitration
// precedence is decidable from confidence alone.
const (
	repoConfidence      = 1.0
	gitConfidence       = 0.95
	maxDocConfidence    = 0.8
	maxVisionConfidence = 0.8
)

// Config carries the shared detective settings.
type Config struct {
	// Prof selects the syntactic dialect the structural probes extract.
	Prof forensics.Profile
	// GraphGlobs, StateGlobs, and SafetyGlobs locate the files each probe
	// examines inside the cloned tree. The first glob with a match wins for
	// graph and state; safety scans every match.
	GraphGlobs  []string
	StateGlobs  []string
	SafetyGlobs []string
	// CloneTimeout is the hard wall-clock budget for the sandboxed clone.
	CloneTimeout time.Duration
	// Extractor converts the report document into chunks and raw images.
	Extractor docingest.Extractor
	// Analyzer describes embedded diagrams. Nil disables the vision lane;
	// its detective then emits low-stakes negative evidence.
	Analyzer DiagramAnalyzer
}

// DefaultConfig returns the settings used when the caller supplies none.
func DefaultConfig() Config {
	return Config{
		Prof:         forensics.LangGraphProfile(),
		GraphGlobs:   []string{"**/graph.py", "**/workflow.py", "**/pipeline.py"},
		StateGlobs:   []string{"**/state.py", "**/schemas.py"},
		SafetyGlobs:  []string{"**/*.py"},
		CloneTimeout: 2 * time.Minute,
		Extractor:    docingest.PDFExtractor{},
	}
}
