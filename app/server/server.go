package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"rulehelper/app/api"
	"rulehelper/indexer"
	"rulehelper/llm"
	"rulehelper/metadata"
	"rulehelper/model"
	"rulehelper/rag"
	"rulehelper/retrieval"
	"rulehelper/store"
	"rulehelper/types"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	pool, err := store.NewPostgresStore(ctx, postgresConnStr())
	if err != nil {
		log.Fatal("error connecting to Postgres database: ", err)
	}

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error creating tables: ", err)
	}

	embedder, err := model.NewEmbedderFromEnv()
	if err != nil {
		log.Fatal("error creating embedder: ", err)
	}

	idx, err := indexer.New(pool, embedder, indexerConfigFromEnv())
	if err != nil {
		log.Fatal("error creating indexer: ", err)
	}

	cache := metadata.NewCache(
		metadata.NewFetcher(os.Getenv("TP_DOMAIN"), os.Getenv("TP_ACCESS_TOKEN")),
		metadataTTL(),
	)

	var (
		app          = fiber.New(config)
		engine       = retrieval.NewEngine(pool, embedder)
		orchestrator = rag.NewOrchestrator(buildChain())
		queryHandler = api.NewQueryHandler(engine, cache, orchestrator)
		adminHandler = api.NewAdminHandler(pool, idx)
		checkHandler = api.NewCheckHandler(pool, cache)
		check        = app.Group("/check")
		apiv1        = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/connections", checkHandler.HandleConnections)

	apiv1.Post("/query", queryHandler.HandleQuery)
	apiv1.Post("/documents", adminHandler.HandleUpload)
	apiv1.Post("/reindex", adminHandler.HandleReindex)
	apiv1.Get("/stats", adminHandler.HandleStats)

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error starting server", "error", err.Error())
	}
}

// buildChain assembles the generation fallback chain, most capable model
// first. Providers without configuration are left out.
func buildChain() *llm.Chain {
	var entries []llm.Entry

	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		gemini := llm.NewGeminiProvider(apiKey)
		models := []string{
			envOr("GEMINI_MODEL", "gemini-2.0-flash"),
			envOr("GEMINI_FALLBACK_MODEL", "gemini-1.5-flash"),
		}
		for _, m := range models {
			entries = append(entries, llm.Entry{Provider: gemini, Model: m})
		}
	}

	if ollamaModel := os.Getenv("OLLAMA_GENERATION_MODEL"); ollamaModel != "" {
		ollama := llm.NewOllamaProvider(os.Getenv("OLLAMA_GENERATION_URL"))
		entries = append(entries, llm.Entry{Provider: ollama, Model: ollamaModel})
	}

	if len(entries) == 0 {
		log.Fatal("no generation providers configured: set GEMINI_API_KEY or OLLAMA_GENERATION_MODEL")
	}

	return llm.NewChain(entries, slog.Default())
}

func postgresConnStr() string {
	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"),
	)
}

func indexerConfigFromEnv() types.IndexerConfig {
	monitoring, err := time.ParseDuration(os.Getenv("MONITORING_TIME"))
	if err != nil {
		monitoring = 5 * time.Second
	}
	chunkSize, _ := strconv.Atoi(os.Getenv("CHUNK_SIZE"))
	chunkOverlap, _ := strconv.Atoi(os.Getenv("CHUNK_OVERLAP"))

	return types.IndexerConfig{
		MonitoringTime: monitoring,
		SourceDir:      envOr("SOURCE_DIR", "./docs"),
		ArchiveDir:     envOr("ARCHIVE_DIR", "./archive"),
		BadDir:         envOr("BAD_DIR", "./bad"),
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
	}
}

func metadataTTL() time.Duration {
	if raw := os.Getenv("METADATA_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return metadata.DefaultTTL
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
