package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"rulehelper/model"
	"rulehelper/store"
	"rulehelper/types"

	"github.com/google/uuid"
)

// candidateFactor widens the vector search so re-ranking has room to reorder
// before truncation.
const candidateFactor = 3

// Options narrow a retrieval pass. Zero-valued filters are ignored.
type Options struct {
	RuleType            types.RuleType
	DocType             types.DocType
	Complexity          types.Complexity
	MaxResults          int
	SimilarityThreshold float64
}

// ContextItem is one ordered piece of retrieved context. Adjacent chunks from
// the same document arrive merged into a single item.
type ContextItem struct {
	DocID      uuid.UUID
	Title      string
	SourcePath string
	DocType    types.DocType
	Complexity types.Complexity
	Position   int
	Content    string
	Similarity float64
	Relevance  float64
}

// Result of a retrieval pass. Empty Items is a valid outcome.
type Result struct {
	Items  []ContextItem
	Entity string
}

// Engine embeds queries and turns vector search hits into weighted, ordered
// context. Retrieval failures degrade to an empty result instead of erroring,
// generation still runs without context.
type Engine struct {
	store    store.DBStorer
	embedder model.Embedder
	logger   *slog.Logger

	stampMu      sync.Mutex
	stampChecked bool
	stampOK      bool
}

func NewEngine(storer store.DBStorer, embedder model.Embedder) *Engine {
	return &Engine{
		store:    storer,
		embedder: embedder,
		logger:   slog.Default(),
	}
}

// checkStamp refuses to search a collection embedded with a different model.
// Distances across embedding spaces are meaningless, not just inaccurate.
// A matching verdict is cached; a mismatch is re-read on every call so a
// reindex that refreshes the stamp re-enables search without a restart.
func (e *Engine) checkStamp(ctx context.Context) bool {
	e.stampMu.Lock()
	defer e.stampMu.Unlock()

	if e.stampChecked && e.stampOK {
		return true
	}

	stamp, err := e.store.EmbeddingStamp(ctx)
	if err != nil {
		e.logger.Warn("could not read embedding model stamp", "error", err)
		e.stampChecked = true
		e.stampOK = true
		return true
	}

	e.stampChecked = true
	e.stampOK = stamp == "" || stamp == e.embedder.Name()
	if !e.stampOK {
		e.logger.Error("embedding model mismatch, search disabled until reindex",
			"collection", stamp,
			"configured", e.embedder.Name(),
		)
	}
	return e.stampOK
}

func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) (*Result, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}

	result := &Result{Entity: DetectEntity(query)}

	if !e.checkStamp(ctx) {
		return result, nil
	}

	filters := store.SearchFilters{DocType: opts.DocType, Complexity: opts.Complexity}
	limit := opts.MaxResults * candidateFactor

	var candidates []types.Chunk
	if opts.RuleType == types.RuleCreateAutomation && opts.DocType == "" {
		candidates = e.searchWithPriority(ctx, query, filters, limit)
	} else {
		candidates = e.search(ctx, query, filters, limit)
	}
	if len(candidates) == 0 {
		return result, nil
	}

	scored := e.rank(candidates, result.Entity, opts)
	merged := mergeAdjacent(scored)
	result.Items = e.resolveTitles(ctx, merged)
	return result, nil
}

func (e *Engine) search(ctx context.Context, query string, filters store.SearchFilters, limit int) []types.Chunk {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, returning no context", "error", err)
		return nil
	}

	chunks, err := e.store.Search(ctx, vec, filters, limit)
	if err != nil {
		e.logger.Warn("vector search failed, returning no context", "error", err)
		return nil
	}
	return chunks
}

// searchWithPriority widens automation-rule queries with phrasing variations
// and union-dedupes the hits. A chunk found by several variations keeps its
// best similarity.
func (e *Engine) searchWithPriority(ctx context.Context, query string, filters store.SearchFilters, limit int) []types.Chunk {
	variations := []string{
		query,
		query + " automation rule",
		"javascript " + query,
	}

	seen := make(map[uuid.UUID]int)
	var out []types.Chunk

	for _, v := range variations {
		for _, chunk := range e.search(ctx, v, filters, limit) {
			if idx, ok := seen[chunk.ID]; ok {
				if chunk.Similarity > out[idx].Similarity {
					out[idx].Similarity = chunk.Similarity
				}
				continue
			}
			seen[chunk.ID] = len(out)
			out = append(out, chunk)
		}
	}
	return out
}

// rank applies the metadata weights, threshold and truncation. The sort is
// stable over descending relevance, ties keep their similarity order.
func (e *Engine) rank(candidates []types.Chunk, entity string, opts Options) []ContextItem {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	items := make([]ContextItem, 0, len(candidates))
	for _, chunk := range candidates {
		if chunk.Similarity < opts.SimilarityThreshold {
			continue
		}

		rel := relevance(chunk, entity)
		if opts.RuleType == types.RuleCreateAutomation {
			rel = clamp01(rel + contentBoost(chunk.Content))
		}

		items = append(items, ContextItem{
			DocID:      chunk.DocID,
			DocType:    chunk.DocType,
			Complexity: chunk.Complexity,
			Position:   chunk.Position,
			Content:    chunk.Content,
			Similarity: chunk.Similarity,
			Relevance:  rel,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Relevance > items[j].Relevance
	})

	if len(items) > opts.MaxResults {
		items = items[:opts.MaxResults]
	}
	return items
}

// contentBoost rewards chunks that carry working rule code over prose that
// merely talks about it.
func contentBoost(content string) float64 {
	var boost float64
	for _, marker := range []string{"command:", "```", "script:", "return {"} {
		if strings.Contains(content, marker) {
			boost += 0.05
		}
	}
	if strings.Contains(strings.ToLower(content), "automation rule") {
		boost += 0.03
	}
	if len(content) > 800 && strings.Contains(content, "```") {
		boost += 0.02
	}
	return boost
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// mergeAdjacent folds results that are neighboring chunks of one document
// into a single context item, so the caller never sees the same passage
// twice through window overlap. The merged item keeps the best scores and
// the earliest position.
func mergeAdjacent(items []ContextItem) []ContextItem {
	if len(items) < 2 {
		return items
	}

	merged := make([]ContextItem, 0, len(items))
	consumed := make([]bool, len(items))

	for i := range items {
		if consumed[i] {
			continue
		}
		current := items[i]
		head, tail := current.Position, current.Position

		// Re-scan until the run stops growing, so three or more
		// consecutive chunks collapse into one item regardless of the
		// order ranking left them in.
		for grew := true; grew; {
			grew = false
			for j := i + 1; j < len(items); j++ {
				if consumed[j] || items[j].DocID != current.DocID {
					continue
				}
				switch items[j].Position {
				case tail + 1:
					current.Content = joinOverlapping(current.Content, items[j].Content)
					tail++
				case head - 1:
					current.Content = joinOverlapping(items[j].Content, current.Content)
					head--
					current.Position = head
				default:
					continue
				}
				consumed[j] = true
				grew = true
				if items[j].Similarity > current.Similarity {
					current.Similarity = items[j].Similarity
				}
			}
		}

		merged = append(merged, current)
	}
	return merged
}

// joinOverlapping concatenates two adjacent chunks, dropping the word overlap
// the chunker introduced between them.
func joinOverlapping(first, second string) string {
	a := strings.Fields(first)
	b := strings.Fields(second)

	max := len(a)
	if len(b) < max {
		max = len(b)
	}

	overlap := 0
	for k := max; k > 0; k-- {
		if equalWords(a[len(a)-k:], b[:k]) {
			overlap = k
			break
		}
	}

	return strings.Join(append(a, b[overlap:]...), " ")
}

func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// resolveTitles attaches document titles and paths to the final items. Title
// lookups are per document, cached across items.
func (e *Engine) resolveTitles(ctx context.Context, items []ContextItem) []ContextItem {
	docs := make(map[uuid.UUID]*types.Document)

	for i := range items {
		doc, ok := docs[items[i].DocID]
		if !ok {
			var err error
			doc, err = e.store.GetDocumentByID(ctx, items[i].DocID)
			if err != nil {
				doc = nil
			}
			docs[items[i].DocID] = doc
		}
		if doc != nil {
			items[i].Title = doc.Title
			items[i].SourcePath = doc.SourcePath
		}
	}
	return items
}
