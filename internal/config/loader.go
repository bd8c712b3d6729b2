package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration with priority: environment variables >
// config.yaml > defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/dx-core/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("DXCORE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: env vars and defaults only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("encoder.mode", "http")
	v.SetDefault("encoder.endpoint", "http://localhost:8081/v1/embeddings")
	v.SetDefault("encoder.model", "pubmedbert-base-embeddings")
	v.SetDefault("encoder.embedding_dim", 768)
	v.SetDefault("encoder.max_input_chars", 4096)

	v.SetDefault("weaviate.scheme", "http")
	v.SetDefault("weaviate.host", "localhost:8080")
	v.SetDefault("weaviate.collection", "medical_conditions")
	v.SetDefault("weaviate.concurrency", 8)
	v.SetDefault("weaviate.retry_attempts", 3)
	v.SetDefault("weaviate.retry_backoff_ms", 100)

	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl_days", 30)
	v.SetDefault("cache.memory_entries", 4096)

	v.SetDefault("scoring.weight_vector_similarity", 0.5)
	v.SetDefault("scoring.weight_symptom_overlap", 0.3)
	v.SetDefault("scoring.weight_temporal_fit", 0.1)
	v.SetDefault("scoring.weight_demographic_fit", 0.1)

	v.SetDefault("triage.tier1_threshold", 0.85)
	v.SetDefault("triage.tier2_threshold", 0.60)
	v.SetDefault("triage.tier3_threshold", 0.40)

	v.SetDefault("retrieve.broad_top_k", 50)
	v.SetDefault("retrieve.focused_top_k", 20)
	v.SetDefault("retrieve.rare_top_k", 10)
	v.SetDefault("retrieve.top_k_candidates", 50)
	v.SetDefault("retrieve.final_results_limit", 10)
	v.SetDefault("retrieve.rrf_k", 60)
	v.SetDefault("retrieve.broad_weight", 1.0)
	v.SetDefault("retrieve.focused_weight", 0.8)
	v.SetDefault("retrieve.rare_weight", 1.2)
	v.SetDefault("retrieve.age_tolerance_years", 10)
	v.SetDefault("retrieve.max_fused_candidates", 60)

	v.SetDefault("timeouts.overall_ms", 5000)
	v.SetDefault("timeouts.encoder_ms", 1500)
	v.SetDefault("timeouts.search_ms", 1000)
	v.SetDefault("timeouts.cache_ms", 100)

	v.SetDefault("ingest.min_phenotypes", 3)
	v.SetDefault("ingest.encode_batch_size", 64)
	v.SetDefault("ingest.upsert_batch_size", 128)
	v.SetDefault("ingest.keywords_path", "./configs/observable_keywords.yaml")
	v.SetDefault("ingest.curated_path", "./configs/curated_seeds.yaml")
	v.SetDefault("ingest.checkpoint_path", "./data/ingest-checkpoint.json")

	v.SetDefault("red_flags.lexicon_path", "./configs/red_flags.yaml")
	v.SetDefault("red_flags.watch_lexicon", false)
}

func validateConfig(cfg *Config) error {
	if cfg.Encoder.EmbeddingDim <= 0 {
		return fmt.Errorf("encoder.embedding_dim must be positive, got %d", cfg.Encoder.EmbeddingDim)
	}
	switch cfg.Encoder.Mode {
	case "http", "deterministic":
	default:
		return fmt.Errorf("encoder.mode must be http or deterministic, got %q", cfg.Encoder.Mode)
	}

	sum := cfg.Scoring.WeightVectorSimilarity + cfg.Scoring.WeightSymptomOverlap +
		cfg.Scoring.WeightTemporalFit + cfg.Scoring.WeightDemographicFit
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.6f", sum)
	}

	t := cfg.Triage
	if !(t.Tier1Threshold > t.Tier2Threshold && t.Tier2Threshold > t.Tier3Threshold) {
		return fmt.Errorf("triage thresholds must be strictly descending: %.2f/%.2f/%.2f",
			t.Tier1Threshold, t.Tier2Threshold, t.Tier3Threshold)
	}
	if t.Tier3Threshold <= 0 || t.Tier1Threshold >= 1 {
		return fmt.Errorf("triage thresholds must lie in (0, 1)")
	}

	r := cfg.Retrieve
	if r.BroadTopK <= 0 || r.FocusedTopK <= 0 || r.RareTopK <= 0 {
		return fmt.Errorf("retrieve sub-query top_k values must be positive")
	}
	if r.FinalResults <= 0 || r.TopKCandidates <= 0 {
		return fmt.Errorf("retrieve result limits must be positive")
	}
	if r.RRFK <= 0 {
		return fmt.Errorf("retrieve.rrf_k must be positive, got %d", r.RRFK)
	}

	if cfg.Weaviate.Concurrency <= 0 {
		return fmt.Errorf("weaviate.concurrency must be positive, got %d", cfg.Weaviate.Concurrency)
	}
	if cfg.Weaviate.RetryAttempts <= 0 {
		return fmt.Errorf("weaviate.retry_attempts must be positive, got %d", cfg.Weaviate.RetryAttempts)
	}

	if cfg.Timeouts.OverallMS <= 0 || cfg.Timeouts.EncoderMS <= 0 ||
		cfg.Timeouts.SearchMS <= 0 || cfg.Timeouts.CacheMS <= 0 {
		return fmt.Errorf("all timeouts must be positive")
	}

	return nil
}
