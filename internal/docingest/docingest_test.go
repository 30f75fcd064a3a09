package docingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_ConfidenceRange(t *testing.T) {
	chunks := []Chunk{
		{ChunkID: "p1", Page: 1, Content: "This is about metacognition and deep agents.", Confidence: 0.85},
		{ChunkID: "p2", Page: 2, Content: "This is about vision and images.", Confidence: 0.85},
	}

	results := Query("metacognition", chunks)

	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ChunkID)
	assert.GreaterOrEqual(t, results[0].Confidence, 0.6)
	assert.LessOrEqual(t, results[0].Confidence, 0.85)
}

func TestQuery_RanksByMatchDensity(t *testing.T) {
	chunks := []Chunk{
		{ChunkID: "p1", Page: 1, Content: "parallel execution", Confidence: 0.85},
		{ChunkID: "p2", Page: 2, Content: "parallel fan-out execution barrier", Confidence: 0.85},
	}

	results := Query("parallel fan-out barrier", chunks)

	require.Len(t, results, 2)
	assert.Equal(t, "p2", results[0].ChunkID, "denser match ranks first")
	assert.Greater(t, results[0].Confidence, results[1].Confidence)
}

func TestQuery_CapsAtThreeResults(t *testing.T) {
	var chunks []Chunk
	for i := 1; i <= 5; i++ {
		chunks = append(chunks, Chunk{ChunkID: "p", Page: i, Content: "graph graph graph", Confidence: 0.85})
	}

	results := Query("graph", chunks)
	assert.Len(t, results, 3)
}

func TestQuery_NoMatches(t *testing.T) {
	chunks := []Chunk{{ChunkID: "p1", Page: 1, Content: "nothing relevant here", Confidence: 0.85}}
	assert.Empty(t, Query("metacognition", chunks))
}

func TestQuery_EmptyQuery(t *testing.T) {
	chunks := []Chunk{{ChunkID: "p1", Page: 1, Content: "content", Confidence: 0.85}}
	assert.Empty(t, Query("   ", chunks))
}

func TestPDFExtractor_MissingFile(t *testing.T) {
	_, _, err := PDFExtractor{}.Extract(context.Background(), "non_existent.pdf")
	require.Error(t, err)
}
