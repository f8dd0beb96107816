package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rulehelper/store"
	"rulehelper/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) Name() string { return "ollama/nomic-embed-text" }

func (f *fakeEmbedder) Dimensions() int { return 2 }

type fakeStore struct {
	store.DBStorer

	docs      map[string]*types.Document
	chunks    map[uuid.UUID][]types.Chunk
	stamp     string
	rebuilds  int
	commits   int
	aborts    int
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   make(map[string]*types.Document),
		chunks: make(map[uuid.UUID][]types.Chunk),
	}
}

func (f *fakeStore) SaveDocument(ctx context.Context, doc types.Document) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	d := doc
	f.docs[doc.SourcePath] = &d
	return nil
}

func (f *fakeStore) GetDocumentByPath(ctx context.Context, path string) (*types.Document, error) {
	if doc, ok := f.docs[path]; ok {
		return doc, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []types.Chunk) error {
	f.chunks[docID] = chunks
	return nil
}

func (f *fakeStore) BeginRebuild(ctx context.Context) error  { f.rebuilds++; return nil }
func (f *fakeStore) CommitRebuild(ctx context.Context) error { f.commits++; return nil }
func (f *fakeStore) AbortRebuild(ctx context.Context) error  { f.aborts++; return nil }

func (f *fakeStore) SetEmbeddingStamp(ctx context.Context, stamp string) error {
	f.stamp = stamp
	return nil
}

func newTestService(t *testing.T, storer store.DBStorer, embedder *fakeEmbedder, sourceDir string) *Service {
	t.Helper()
	svc, err := New(storer, embedder, types.IndexerConfig{
		MonitoringTime: time.Second,
		SourceDir:      sourceDir,
		ArchiveDir:     t.TempDir(),
		BadDir:         t.TempDir(),
		ChunkSize:      200,
		ChunkOverlap:   40,
	})
	require.NoError(t, err)
	return svc
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIndexFileCreatesChunks(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "automation_rules.md", "# Assign Rules\n\nWhen a story is created, assign the team.")

	fs := newFakeStore()
	svc := newTestService(t, fs, &fakeEmbedder{}, dir)

	indexed, count, err := svc.IndexFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, indexed)
	assert.Equal(t, 1, count)

	doc := fs.docs[path]
	require.NotNil(t, doc)
	assert.Equal(t, "Assign Rules", doc.Title)

	chunks := fs.chunks[doc.ID]
	require.Len(t, chunks, 1)
	assert.Equal(t, types.DocAutomationRules, chunks[0].DocType)
	assert.Equal(t, "UserStory", chunks[0].EntityHint)
	assert.NotEmpty(t, chunks[0].Embedding)
}

func TestIndexFileSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "guide.md", "# Guide\n\nSome content.")

	fs := newFakeStore()
	svc := newTestService(t, fs, &fakeEmbedder{}, dir)

	indexed, _, err := svc.IndexFile(context.Background(), path)
	require.NoError(t, err)
	require.True(t, indexed)

	indexed, _, err = svc.IndexFile(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, indexed)
}

func TestIndexFileStableDocumentID(t *testing.T) {
	assert.Equal(t, documentID("a/b.md"), documentID("a/b.md"))
	assert.NotEqual(t, documentID("a/b.md"), documentID("a/c.md"))
}

func TestIndexDocumentsIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "good.md", "# Good\n\ncontent here")
	writeDoc(t, dir, "bad.pdf", "not actually a pdf")

	fs := newFakeStore()
	svc := newTestService(t, fs, &fakeEmbedder{}, dir)

	summary, err := svc.IndexDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentCount)
	assert.Equal(t, 1, summary.Failed)
}

func TestRebuildStampsAndCommits(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "doc.md", "# Doc\n\nbody")

	fs := newFakeStore()
	svc := newTestService(t, fs, &fakeEmbedder{}, dir)

	summary, err := svc.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentCount)
	assert.Equal(t, 1, fs.rebuilds)
	assert.Equal(t, 1, fs.commits)
	assert.Equal(t, "ollama/nomic-embed-text", fs.stamp)
	assert.Zero(t, fs.aborts)
}

func TestMoveToArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "done.md", "content")

	fs := newFakeStore()
	svc := newTestService(t, fs, &fakeEmbedder{}, dir)

	svc.MoveToArchive(path, false)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	dated := filepath.Join(svc.cfg.ArchiveDir, time.Now().Format("2006-01-02"), "done.md")
	_, err = os.Stat(dated)
	assert.NoError(t, err)
}
