package api

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rulehelper/indexer"
	"rulehelper/store"

	"rulehelper/types"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler exposes the collection maintenance surface: document upload,
// full reindex and collection stats.
type AdminHandler struct {
	store   store.DBStorer
	indexer *indexer.Service
	logger  *slog.Logger
}

func NewAdminHandler(storer store.DBStorer, idx *indexer.Service) *AdminHandler {
	return &AdminHandler{
		store:   storer,
		indexer: idx,
		logger:  slog.Default(),
	}
}

// HandleUpload drops a posted document into the watched source directory. The
// indexer picks it up once it has been stable for the monitoring window.
func (h *AdminHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	sourceDir := os.Getenv("SOURCE_DIR")
	if sourceDir == "" {
		sourceDir = "./docs"
	}

	path := filepath.Join(sourceDir, filepath.Base(file.Filename))
	if err := c.SaveFile(file, path); err != nil {
		return fmt.Errorf("save uploaded file: %w", err)
	}
	h.logger.Info("document uploaded", "path", path)

	return c.JSON(types.UploadResponse{
		Saved:     path,
		Timestamp: time.Now(),
	})
}

// HandleReindex rebuilds the whole collection. Queries keep hitting the old
// collection until the staged one is swapped in.
func (h *AdminHandler) HandleReindex(c *fiber.Ctx) error {
	summary, err := h.indexer.Rebuild(c.Context())
	if err != nil {
		return fmt.Errorf("rebuild collection: %w", err)
	}
	return c.JSON(summary)
}

func (h *AdminHandler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.Context())
	if err != nil {
		return fmt.Errorf("read collection stats: %w", err)
	}
	return c.JSON(stats)
}
