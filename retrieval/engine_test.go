package retrieval

import (
	"context"
	"fmt"
	"testing"

	"rulehelper/store"
	"rulehelper/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	fail  bool
	calls []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Name() string { return "ollama/nomic-embed-text" }

func (f *fakeEmbedder) Dimensions() int { return 3 }

type fakeStore struct {
	store.DBStorer

	chunks    []types.Chunk
	docs      map[uuid.UUID]*types.Document
	stamp     string
	searchErr error
}

func (f *fakeStore) Search(ctx context.Context, vec []float32, filters store.SearchFilters, limit int) ([]types.Chunk, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]types.Chunk, 0, len(f.chunks))
	for _, c := range f.chunks {
		if filters.DocType != "" && c.DocType != filters.DocType {
			continue
		}
		if filters.Complexity != "" && c.Complexity != filters.Complexity {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) GetDocumentByID(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	if doc, ok := f.docs[id]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("not found")
}

func (f *fakeStore) EmbeddingStamp(ctx context.Context) (string, error) {
	return f.stamp, nil
}

func chunk(docID uuid.UUID, pos int, content string, sim float64) types.Chunk {
	return types.Chunk{
		ID:         uuid.New(),
		DocID:      docID,
		Position:   pos,
		Content:    content,
		DocType:    types.DocGeneral,
		Complexity: types.ComplexityMedium,
		Similarity: sim,
	}
}

func TestRetrieveOrdersByRelevance(t *testing.T) {
	docA, docB := uuid.New(), uuid.New()

	examples := chunk(docA, 0, "example content", 0.6)
	examples.DocType = types.DocAutomationExamples

	reference := chunk(docB, 0, "reference content", 0.62)

	fs := &fakeStore{
		chunks: []types.Chunk{reference, examples},
		docs: map[uuid.UUID]*types.Document{
			docA: {ID: docA, Title: "Examples", SourcePath: "a.md"},
			docB: {ID: docB, Title: "Reference", SourcePath: "b.md"},
		},
	}

	engine := NewEngine(fs, &fakeEmbedder{})
	result, err := engine.Retrieve(context.Background(), "how to set state", Options{MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	// 0.6*1.3 beats 0.62*1.0 after doc-type weighting.
	assert.Equal(t, "Examples", result.Items[0].Title)
	assert.Greater(t, result.Items[0].Relevance, result.Items[1].Relevance)
}

func TestRetrieveThresholdAndTruncation(t *testing.T) {
	doc := uuid.New()
	fs := &fakeStore{
		chunks: []types.Chunk{
			chunk(doc, 0, "strong", 0.9),
			chunk(doc, 5, "ok", 0.7),
			chunk(doc, 10, "weak", 0.2),
		},
		docs: map[uuid.UUID]*types.Document{doc: {ID: doc, Title: "Doc"}},
	}

	engine := NewEngine(fs, &fakeEmbedder{})
	result, err := engine.Retrieve(context.Background(), "query", Options{
		MaxResults:          1,
		SimilarityThreshold: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "strong", result.Items[0].Content)
}

func TestRetrieveEmbeddingFailureIsNotAnError(t *testing.T) {
	fs := &fakeStore{chunks: []types.Chunk{chunk(uuid.New(), 0, "x", 0.9)}}
	engine := NewEngine(fs, &fakeEmbedder{fail: true})

	result, err := engine.Retrieve(context.Background(), "query", Options{MaxResults: 3})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}

func TestRetrieveSearchFailureIsNotAnError(t *testing.T) {
	fs := &fakeStore{searchErr: fmt.Errorf("connection refused")}
	engine := NewEngine(fs, &fakeEmbedder{})

	result, err := engine.Retrieve(context.Background(), "query", Options{MaxResults: 3})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}

func TestRetrieveRefusesMismatchedEmbeddingStamp(t *testing.T) {
	fs := &fakeStore{
		chunks: []types.Chunk{chunk(uuid.New(), 0, "x", 0.9)},
		stamp:  "gemini/text-embedding-004",
	}
	embedder := &fakeEmbedder{}
	engine := NewEngine(fs, embedder)

	result, err := engine.Retrieve(context.Background(), "query", Options{MaxResults: 3})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Empty(t, embedder.calls)
}

func TestRetrieveResumesAfterStampRefresh(t *testing.T) {
	fs := &fakeStore{
		chunks: []types.Chunk{chunk(uuid.New(), 0, "x", 0.9)},
		stamp:  "gemini/text-embedding-004",
	}
	embedder := &fakeEmbedder{}
	engine := NewEngine(fs, embedder)

	result, err := engine.Retrieve(context.Background(), "query", Options{MaxResults: 3})
	require.NoError(t, err)
	require.Empty(t, result.Items)

	// A reindex rewrites the stamp with the configured model. The same
	// engine instance must start searching again.
	fs.stamp = embedder.Name()

	result, err = engine.Retrieve(context.Background(), "query", Options{MaxResults: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Items)
	assert.NotEmpty(t, embedder.calls)
}

func TestRetrieveDetectsEntity(t *testing.T) {
	fs := &fakeStore{}
	engine := NewEngine(fs, &fakeEmbedder{})

	result, err := engine.Retrieve(context.Background(), "close the bug when fixed", Options{MaxResults: 3})
	require.NoError(t, err)
	assert.Equal(t, "Bug", result.Entity)
}

func TestRetrievePrioritySearchUsesVariations(t *testing.T) {
	embedder := &fakeEmbedder{}
	fs := &fakeStore{}
	engine := NewEngine(fs, embedder)

	_, err := engine.Retrieve(context.Background(), "assign team", Options{
		RuleType:   types.RuleCreateAutomation,
		MaxResults: 3,
	})
	require.NoError(t, err)
	require.Len(t, embedder.calls, 3)
	assert.Equal(t, "assign team", embedder.calls[0])
	assert.Equal(t, "assign team automation rule", embedder.calls[1])
	assert.Equal(t, "javascript assign team", embedder.calls[2])
}

func TestMergeAdjacentChunks(t *testing.T) {
	doc := uuid.New()
	items := []ContextItem{
		{DocID: doc, Position: 1, Content: "state changes to done archive it", Similarity: 0.9},
		{DocID: doc, Position: 2, Content: "archive it and notify the owner", Similarity: 0.8},
	}

	merged := mergeAdjacent(items)
	require.Len(t, merged, 1)
	assert.Equal(t, 1, merged[0].Position)
	assert.Equal(t, "state changes to done archive it and notify the owner", merged[0].Content)
	assert.Equal(t, 0.9, merged[0].Similarity)
}

func TestMergeAdjacentChainsLongRuns(t *testing.T) {
	doc := uuid.New()
	items := []ContextItem{
		{DocID: doc, Position: 4, Content: "first part", Similarity: 0.9},
		{DocID: doc, Position: 5, Content: "second part", Similarity: 0.7},
		{DocID: doc, Position: 6, Content: "third part", Similarity: 0.8},
		{DocID: doc, Position: 7, Content: "fourth part", Similarity: 0.6},
	}

	merged := mergeAdjacent(items)
	require.Len(t, merged, 1)
	assert.Equal(t, 4, merged[0].Position)
	assert.Equal(t, "first part second part third part fourth part", merged[0].Content)
	assert.Equal(t, 0.9, merged[0].Similarity)
}

func TestMergeAdjacentChainsAcrossRankOrder(t *testing.T) {
	doc := uuid.New()
	items := []ContextItem{
		{DocID: doc, Position: 3, Content: "middle piece", Similarity: 0.9},
		{DocID: doc, Position: 5, Content: "tail piece", Similarity: 0.8},
		{DocID: doc, Position: 4, Content: "bridge piece", Similarity: 0.7},
		{DocID: doc, Position: 2, Content: "head piece", Similarity: 0.6},
	}

	merged := mergeAdjacent(items)
	require.Len(t, merged, 1)
	assert.Equal(t, 2, merged[0].Position)
	assert.Equal(t, "head piece middle piece bridge piece tail piece", merged[0].Content)
}

func TestMergeAdjacentKeepsDistinctDocs(t *testing.T) {
	items := []ContextItem{
		{DocID: uuid.New(), Position: 0, Content: "a"},
		{DocID: uuid.New(), Position: 1, Content: "b"},
	}
	assert.Len(t, mergeAdjacent(items), 2)
}

func TestJoinOverlappingNoOverlap(t *testing.T) {
	assert.Equal(t, "one two three four", joinOverlapping("one two", "three four"))
}

func TestContentBoostMarkers(t *testing.T) {
	assert.Equal(t, 0.0, contentBoost("plain prose"))
	assert.Greater(t, contentBoost("script: return { id: 1 }"), 0.09)
}
