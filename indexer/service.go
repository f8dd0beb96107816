package indexer

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rulehelper/model"
	"rulehelper/store"
	"rulehelper/types"

	"github.com/google/uuid"
)

// Service walks a source directory, converts documents into embedded chunks
// and writes them through the chunk store. It can run once (IndexDocuments,
// Rebuild) or keep watching the directory for drop-ins (Run).
type Service struct {
	logger   *slog.Logger
	store    store.DBStorer
	embedder model.Embedder
	chunker  *Chunker
	cfg      types.IndexerConfig

	fileMu          sync.Mutex
	fileFirstSeen   map[string]time.Time
	filesProcessing map[string]bool
}

func New(storer store.DBStorer, embedder model.Embedder, cfg types.IndexerConfig) (*Service, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	return &Service{
		logger:          slog.Default(),
		store:           storer,
		embedder:        embedder,
		chunker:         chunker,
		cfg:             cfg,
		fileFirstSeen:   make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}, nil
}

func supportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", ".pdf":
		return true
	}
	return false
}

// IndexDocuments processes every supported file under the source directory.
// A failing document is counted and skipped, it never aborts the pass.
func (s *Service) IndexDocuments(ctx context.Context) (*types.IndexSummary, error) {
	summary := &types.IndexSummary{RebuiltAt: time.Now()}

	err := filepath.WalkDir(s.cfg.SourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !supportedFile(path) {
			return nil
		}

		indexed, chunkCount, err := s.IndexFile(ctx, path)
		switch {
		case err != nil:
			summary.Failed++
			s.logger.Error("failed to index document", "path", path, "error", err)
		case !indexed:
			summary.Skipped++
		default:
			summary.DocumentCount++
			summary.ChunkCount += chunkCount
		}
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("walk source directory: %w", err)
	}

	s.logger.Info("indexing pass complete",
		"documents", summary.DocumentCount,
		"chunks", summary.ChunkCount,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

// IndexFile indexes a single document. Returns false when the stored content
// hash matches and the file was skipped.
func (s *Service) IndexFile(ctx context.Context, path string) (bool, int, error) {
	content, err := s.loadContent(path)
	if err != nil {
		return false, 0, err
	}

	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))

	existing, err := s.store.GetDocumentByPath(ctx, path)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, 0, err
	}
	if existing != nil && existing.ContentHash == hash {
		return false, 0, nil
	}

	doc := types.Document{
		ID:          documentID(path),
		Title:       ExtractTitle(content, path),
		Source:      filepath.Base(path),
		SourcePath:  path,
		ContentHash: hash,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Version:     1,
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
		doc.Version = existing.Version
	}

	chunks, err := s.buildChunks(ctx, doc, content)
	if err != nil {
		return false, 0, err
	}

	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return false, 0, fmt.Errorf("save document: %w", err)
	}
	if err := s.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return false, 0, fmt.Errorf("replace chunks: %w", err)
	}

	s.logger.Info("indexed document", "title", doc.Title, "chunks", len(chunks))
	return true, len(chunks), nil
}

func (s *Service) loadContent(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ExtractPDFText(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// buildChunks splits a document section by section so chunk boundaries follow
// the document structure, then embeds each piece.
func (s *Service) buildChunks(ctx context.Context, doc types.Document, content string) ([]types.Chunk, error) {
	docType := ClassifyDocType(doc.SourcePath)
	clean := StripInlineMarkup(content)

	var chunks []types.Chunk
	position := 0

	for _, section := range SplitSections(clean) {
		text := section.Body
		if section.Heading != "" {
			text = section.Heading + "\n\n" + section.Body
		}

		for _, piece := range s.chunker.Split(text) {
			embedding, err := s.embedder.Embed(ctx, piece)
			if err != nil {
				return nil, fmt.Errorf("embed chunk %d: %w", position, err)
			}

			chunks = append(chunks, types.Chunk{
				ID:         uuid.New(),
				DocID:      doc.ID,
				Position:   position,
				Content:    piece,
				DocType:    docType,
				Complexity: ClassifyComplexity(piece),
				EntityHint: DetectEntityHint(piece),
				Embedding:  embedding,
			})
			position++
		}
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("document produced no chunks")
	}
	return chunks, nil
}

// Rebuild re-indexes the whole corpus into staging tables and swaps them in
// atomically. Searches against the old collection keep working until the
// commit. The embedding model stamp is refreshed as part of the rebuild.
func (s *Service) Rebuild(ctx context.Context) (*types.IndexSummary, error) {
	if err := s.store.BeginRebuild(ctx); err != nil {
		return nil, fmt.Errorf("begin rebuild: %w", err)
	}

	summary, err := s.IndexDocuments(ctx)
	if err != nil {
		if abortErr := s.store.AbortRebuild(ctx); abortErr != nil {
			s.logger.Error("failed to abort rebuild", "error", abortErr)
		}
		return nil, err
	}

	if err := s.store.CommitRebuild(ctx); err != nil {
		return nil, fmt.Errorf("commit rebuild: %w", err)
	}
	if err := s.store.SetEmbeddingStamp(ctx, s.embedder.Name()); err != nil {
		return nil, fmt.Errorf("set embedding stamp: %w", err)
	}

	return summary, nil
}

// documentID derives a stable ID from the source path so re-indexing a file
// updates its document instead of creating a new one.
func documentID(path string) uuid.UUID {
	hash := md5.Sum([]byte(path))
	id, _ := uuid.FromBytes(hash[:])
	return id
}

// Run watches the source directory and indexes files once they have been
// stable for the configured monitoring time. Blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watchFiles(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processFiles(ctx, fileChan)
	}()

	wg.Wait()
	s.logger.Info("indexer service stopped")
}

func (s *Service) watchFiles(ctx context.Context, fileChan chan<- string) {
	s.logger.Info("watching source directory", "dir", s.cfg.SourceDir)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx, fileChan)
		}
	}
}

// scanOnce picks up files that have sat unmodified past the monitoring
// window, skipping ones already in flight.
func (s *Service) scanOnce(ctx context.Context, fileChan chan<- string) {
	entries, err := os.ReadDir(s.cfg.SourceDir)
	if err != nil {
		s.logger.Error("failed to read source directory", "error", err)
		return
	}

	current := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !supportedFile(entry.Name()) {
			continue
		}

		path := filepath.Join(s.cfg.SourceDir, entry.Name())
		current[path] = true

		s.fileMu.Lock()
		if s.filesProcessing[path] {
			s.fileMu.Unlock()
			continue
		}
		firstSeen, seen := s.fileFirstSeen[path]
		if !seen {
			s.fileFirstSeen[path] = time.Now()
			s.logger.Info("new file detected", "path", path)
			s.fileMu.Unlock()
			continue
		}
		s.fileMu.Unlock()

		if time.Since(firstSeen) <= s.cfg.MonitoringTime {
			continue
		}

		s.fileMu.Lock()
		s.filesProcessing[path] = true
		s.fileMu.Unlock()

		select {
		case fileChan <- path:
		case <-ctx.Done():
			return
		}
	}

	s.fileMu.Lock()
	for path := range s.fileFirstSeen {
		if !current[path] {
			delete(s.fileFirstSeen, path)
			delete(s.filesProcessing, path)
		}
	}
	s.fileMu.Unlock()
}

func (s *Service) processFiles(ctx context.Context, fileChan <-chan string) {
	for path := range fileChan {
		if ctx.Err() != nil {
			return
		}

		_, _, err := s.IndexFile(ctx, path)
		if err != nil {
			s.logger.Error("failed to process file", "path", path, "error", err)
			s.MoveToArchive(path, true)
		} else {
			s.MoveToArchive(path, false)
		}

		s.fileMu.Lock()
		delete(s.filesProcessing, path)
		delete(s.fileFirstSeen, path)
		s.fileMu.Unlock()
	}
}

// MoveToArchive relocates a processed file into a dated archive folder, or
// into the bad directory when failed is set. Name conflicts get a numeric
// suffix.
func (s *Service) MoveToArchive(path string, failed bool) {
	base := s.cfg.ArchiveDir
	if failed {
		base = s.cfg.BadDir
	}

	destDir := filepath.Join(base, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		s.logger.Error("failed to create archive directory", "error", err)
		return
	}

	destPath := filepath.Join(destDir, filepath.Base(path))
	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(path)
		name := strings.TrimSuffix(filepath.Base(path), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", name, counter, ext))
		counter++
	}

	if err := copyFile(path, destPath); err != nil {
		s.logger.Error("failed to archive file", "path", path, "error", err)
		return
	}
	os.Remove(path)
	s.logger.Info("file archived", "dest", destPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// CreateDirectories makes sure the watch, archive and bad directories exist.
func CreateDirectories(cfg types.IndexerConfig) error {
	for _, dir := range []string{cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
