package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/encoder"
	"github.com/clinisights/dx-core/internal/ingest"
	"github.com/clinisights/dx-core/internal/vecstore"
	"github.com/clinisights/dx-core/pkg/logger"
)

func main() {
	hpoPath := flag.String("hpo", "", "override HPO annotation file path")
	icdPath := flag.String("icd10", "", "override ICD-10-CM code file path")
	curatedPath := flag.String("curated", "", "override curated seed file path")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *hpoPath != "" {
		cfg.Ingest.HPOPath = *hpoPath
	}
	if *icdPath != "" {
		cfg.Ingest.ICD10Path = *icdPath
	}
	if *curatedPath != "" {
		cfg.Ingest.CuratedPath = *curatedPath
	}

	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting dx-core ingest",
		"hpo", cfg.Ingest.HPOPath,
		"icd10", cfg.Ingest.ICD10Path,
		"curated", cfg.Ingest.CuratedPath)

	var embedder encoder.Embedder
	switch cfg.Encoder.Mode {
	case "deterministic":
		embedder = encoder.NewDeterministicEmbedder(cfg.Encoder.EmbeddingDim)
		logger.Warn("Encoding with deterministic degraded embedder")
	default:
		embedder = encoder.NewHTTPEmbedder(cfg.Encoder,
			time.Duration(cfg.Timeouts.EncoderMS)*time.Millisecond, logger)
	}

	store, err := vecstore.NewWeaviateStore(cfg.Weaviate, logger)
	if err != nil {
		logger.Fatal("Failed to initialize vector store", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Interrupt received, stopping after current batch")
		cancel()
	}()

	pipeline := ingest.NewPipeline(cfg.Ingest, embedder, store, logger)
	stats, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("Ingest failed", "error", err)
		os.Exit(1)
	}

	count, err := store.Count(ctx)
	if err != nil {
		logger.Warn("Could not read final index count", "error", err)
	}
	logger.Info("Ingest finished",
		"upserted", stats.Upserted,
		"skipped", stats.Skipped,
		"resumed", stats.Resumed,
		"index_count", count)
}
