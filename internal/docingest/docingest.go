// Package docingest converts a report document into page-addressed text
// chunks and provides keyword retrieval over them. Extraction internals stay
// behind the Extractor interface; the pipeline consumes only the chunk
// records.
package docingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Chunk is one page-addressed extract of the report document.
type Chunk struct {
	ChunkID    string  `json:"chunk_id"`
	Page       int     `json:"page_number"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// Extractor converts a document into chunks and raw embedded images.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Chunk, [][]byte, error)
}

// ingestConfidence is the base confidence of a raw extracted chunk.
const ingestConfidence = 0.85

// PDFExtractor extracts text from PDF documents page by page. Embedded
// images are not recovered by this extractor; the vision lane sees an empty
// image set and degrades accordingly.
type PDFExtractor struct{}

// Extract opens the PDF at path and returns one chunk per page carrying
// text. Pages that fail to parse are skipped, matching the "found but empty"
// degradation class.
func (PDFExtractor) Extract(ctx context.Context, path string) ([]Chunk, [][]byte, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("docingest: open pdf: %w", err)
	}
	defer f.Close()

	var chunks []Chunk
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			ChunkID:    fmt.Sprintf("p%d", i),
			Page:       i,
			Content:    content,
			Confidence: ingestConfidence,
		})
	}
	return chunks, nil, nil
}

// maxQueryResults caps Query output at the top chunks by confidence.
const maxQueryResults = 3

// Query performs keyword retrieval over chunks. Matching chunks are returned
// with confidence adjusted by match density (0.6 + 0.25 * ratio, capped at
// the ingestion confidence), sorted by confidence descending, at most
// maxQueryResults.
func Query(query string, chunks []Chunk) []Chunk {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	var results []Chunk
	for _, c := range chunks {
		content := strings.ToLower(c.Content)
		matches := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		ratio := float64(matches) / float64(len(terms))
		adjusted := 0.6 + 0.25*ratio
		if adjusted > ingestConfidence {
			adjusted = ingestConfidence
		}
		scored := c
		scored.Confidence = adjusted
		results = append(results, scored)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	if len(results) > maxQueryResults {
		results = results[:maxQueryResults]
	}
	return results
}
