package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"rulehelper/indexer"
	"rulehelper/model"
	"rulehelper/store"
	"rulehelper/types"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	rebuild := flag.Bool("rebuild", false, "re-index the whole corpus into a fresh collection and swap it in")
	once := flag.Bool("once", false, "run a single indexing pass instead of watching the source directory")
	flag.Parse()

	ctx := context.Background()

	pool, err := store.NewPostgresStore(ctx, postgresConnStr())
	if err != nil {
		log.Fatal("error connecting to Postgres database: ", err)
	}
	defer pool.Close()

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error creating tables: ", err)
	}

	embedder, err := model.NewEmbedderFromEnv()
	if err != nil {
		log.Fatal("error creating embedder: ", err)
	}

	cfg := indexerConfigFromEnv()
	if err := indexer.CreateDirectories(cfg); err != nil {
		log.Fatal("error creating directories: ", err)
	}

	svc, err := indexer.New(pool, embedder, cfg)
	if err != nil {
		log.Fatal("error creating indexer service: ", err)
	}

	switch {
	case *rebuild:
		summary, err := svc.Rebuild(ctx)
		if err != nil {
			log.Fatal("rebuild failed: ", err)
		}
		log.Printf("rebuild complete: %d documents, %d chunks, %d failed", summary.DocumentCount, summary.ChunkCount, summary.Failed)
	case *once:
		summary, err := svc.IndexDocuments(ctx)
		if err != nil {
			log.Fatal("indexing failed: ", err)
		}
		log.Printf("indexing complete: %d documents, %d chunks, %d skipped, %d failed", summary.DocumentCount, summary.ChunkCount, summary.Skipped, summary.Failed)
	default:
		runCtx, cancel := context.WithCancel(ctx)

		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigch
			log.Println("received shutdown signal, shutting down gracefully...")
			cancel()
		}()

		svc.Run(runCtx)
	}
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

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
}
