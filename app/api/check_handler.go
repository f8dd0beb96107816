package api

import (
	"rulehelper/metadata"
	"rulehelper/store"

	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	store *store.PostgresStore
	cache *metadata.Cache
}

func NewCheckHandler(storer *store.PostgresStore, cache *metadata.Cache) *CheckHandler {
	return &CheckHandler{store: storer, cache: cache}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleConnections validates the setup: database reachability, collection
// contents and platform API credentials.
func (h *CheckHandler) HandleConnections(c *fiber.Ctx) error {
	ctx := c.Context()

	dbOK := h.store.Ping(ctx) == nil

	var chunkCount int
	var embeddingModel string
	if dbOK {
		if stats, err := h.store.Stats(ctx); err == nil {
			chunkCount = stats.ChunkCount
			embeddingModel = stats.EmbeddingModel
		}
	}

	return c.JSON(fiber.Map{
		"database":        dbOK,
		"chunks_indexed":  chunkCount,
		"embedding_model": embeddingModel,
		"targetprocess":   h.cache.TestConnection(ctx),
	})
}
