package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/diagnosis"
	"github.com/clinisights/dx-core/internal/encoder"
	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/internal/redflag"
	"github.com/clinisights/dx-core/internal/vecstore"
	"github.com/clinisights/dx-core/pkg/cache"
	"github.com/clinisights/dx-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting dx-core", "environment", cfg.Environment, "port", cfg.Port)

	// Embedding cache: Redis when reachable, in-process LRU otherwise.
	ttl := time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour
	embCache, err := cache.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, ttl, logger)
	if err != nil {
		logger.Warn("Redis unreachable, using in-memory embedding cache", "error", err)
		embCache = cache.NewMemoryCache(cfg.Cache.MemoryEntries, ttl, logger)
	}

	var embedder encoder.Embedder
	switch cfg.Encoder.Mode {
	case "deterministic":
		embedder = encoder.NewDeterministicEmbedder(cfg.Encoder.EmbeddingDim)
		logger.Warn("Encoder running in deterministic degraded mode")
	default:
		embedder = encoder.NewHTTPEmbedder(cfg.Encoder,
			time.Duration(cfg.Timeouts.EncoderMS)*time.Millisecond, logger)
	}

	store, err := vecstore.NewWeaviateStore(cfg.Weaviate, logger)
	if err != nil {
		logger.Fatal("Failed to initialize vector store", "error", err)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.EnsureCollection(initCtx, embedder.Dimension()); err != nil {
		initCancel()
		logger.Fatal("Vector collection unavailable", "error", err)
	}
	initCancel()

	detector, err := redflag.NewDetectorFromFile(cfg.RedFlags.LexiconPath, logger)
	if err != nil {
		logger.Fatal("Failed to load red-flag lexicon", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RedFlags.WatchLexicon {
		if err := redflag.Watch(ctx, cfg.RedFlags.LexiconPath, detector, logger); err != nil {
			logger.Warn("Lexicon watcher could not start", "error", err)
		}
	}

	retriever := diagnosis.NewRetriever(store, embedder, embCache,
		cfg.Retrieve, cfg.Timeouts, cfg.Weaviate.Concurrency, logger)
	scorer := diagnosis.NewScorer(cfg.Scoring)
	triage := diagnosis.NewTriage(cfg.Triage)
	service := diagnosis.NewService(detector, retriever, scorer, triage, cfg.Retrieve.FinalResults, logger)

	// Run one synthetic case through the whole pipeline so a broken
	// deployment fails at startup instead of on the first real case.
	if err := warmup(ctx, service); err != nil {
		logger.Warn("Warmup analysis failed, serving degraded", "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthzHandler(store, embCache, embedder))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Serving metrics and health endpoints", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", "error", err)
	}

	logger.Info("dx-core shutdown complete")
}

func warmup(ctx context.Context, service *diagnosis.Service) error {
	warmupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := service.Analyze(warmupCtx, &models.PatientCase{
		CaseID:         "warmup",
		Age:            45,
		Sex:            models.SexOther,
		ChiefComplaint: "fatigue and weight gain",
		Symptoms: []models.Symptom{
			{Description: "persistent fatigue", Severity: models.SeverityMild, DurationDays: 30, Frequency: models.FrequencyConstant},
		},
	}, diagnosis.DefaultAnalyzeOptions())
	return err
}

// healthzHandler reports readiness of the vector index, the embedding
// cache, and the encoder. An unreachable index fails the probe; a
// degraded cache or encoder is reported but still serves (cached
// vectors keep retrieval alive while the encoder is down).
func healthzHandler(store *vecstore.WeaviateStore, embCache cache.EmbeddingCache, embedder encoder.Embedder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		detail := map[string]string{"index": "ok", "cache": "ok", "encoder": "ok"}

		if err := store.Ready(ctx); err != nil {
			status = http.StatusServiceUnavailable
			detail["index"] = err.Error()
		}
		if err := embCache.HealthCheck(ctx); err != nil {
			detail["cache"] = "degraded: " + err.Error()
		}
		if _, err := embedder.Encode(ctx, "health probe"); err != nil {
			detail["encoder"] = "degraded: " + err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(detail)
	}
}
