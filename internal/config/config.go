package config

// Config is the immutable process configuration. Loaded once at start;
// never mutated afterwards.
type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Encoder  EncoderConfig  `mapstructure:"encoder" yaml:"encoder"`
	Weaviate WeaviateConfig `mapstructure:"weaviate" yaml:"weaviate"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Scoring  ScoringConfig  `mapstructure:"scoring" yaml:"scoring"`
	Triage   TriageConfig   `mapstructure:"triage" yaml:"triage"`
	Retrieve RetrieveConfig `mapstructure:"retrieve" yaml:"retrieve"`
	Timeouts TimeoutConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	Ingest   IngestConfig   `mapstructure:"ingest" yaml:"ingest"`
	RedFlags RedFlagConfig  `mapstructure:"red_flags" yaml:"red_flags"`
}

// EncoderConfig configures the embedding backend.
type EncoderConfig struct {
	// Mode is "http" for a remote OpenAI-compatible embeddings endpoint or
	// "deterministic" for the hash-based degraded-mode encoder.
	Mode         string `mapstructure:"mode" yaml:"mode"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	Model        string `mapstructure:"model" yaml:"model"`
	EmbeddingDim int    `mapstructure:"embedding_dim" yaml:"embedding_dim"`
	// MaxInputChars guards against oversized inputs; token truncation to
	// the model window happens server-side.
	MaxInputChars int `mapstructure:"max_input_chars" yaml:"max_input_chars"`
}

// WeaviateConfig configures the vector index client.
type WeaviateConfig struct {
	Scheme     string `mapstructure:"scheme" yaml:"scheme"`
	Host       string `mapstructure:"host" yaml:"host"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	// Concurrency bounds parallel sub-query searches process-wide.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// RetryAttempts and RetryBackoffMS control transient-error retries.
	RetryAttempts  int `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoffMS int `mapstructure:"retry_backoff_ms" yaml:"retry_backoff_ms"`
}

// CacheConfig configures the embedding cache backend.
type CacheConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	// TTLDays is the embedding retention period (default 30 days).
	TTLDays int `mapstructure:"ttl_days" yaml:"ttl_days"`
	// MemoryEntries bounds the in-memory LRU fallback.
	MemoryEntries int `mapstructure:"memory_entries" yaml:"memory_entries"`
}

// ScoringConfig holds the confidence blend weights. Weights must sum to 1.
type ScoringConfig struct {
	WeightVectorSimilarity float64 `mapstructure:"weight_vector_similarity" yaml:"weight_vector_similarity"`
	WeightSymptomOverlap   float64 `mapstructure:"weight_symptom_overlap" yaml:"weight_symptom_overlap"`
	WeightTemporalFit      float64 `mapstructure:"weight_temporal_fit" yaml:"weight_temporal_fit"`
	WeightDemographicFit   float64 `mapstructure:"weight_demographic_fit" yaml:"weight_demographic_fit"`
}

// TriageConfig holds the confidence thresholds for tier routing.
type TriageConfig struct {
	Tier1Threshold float64 `mapstructure:"tier1_threshold" yaml:"tier1_threshold"`
	Tier2Threshold float64 `mapstructure:"tier2_threshold" yaml:"tier2_threshold"`
	Tier3Threshold float64 `mapstructure:"tier3_threshold" yaml:"tier3_threshold"`
}

// RetrieveConfig controls the three retrieval sub-queries and fusion.
type RetrieveConfig struct {
	BroadTopK          int     `mapstructure:"broad_top_k" yaml:"broad_top_k"`
	FocusedTopK        int     `mapstructure:"focused_top_k" yaml:"focused_top_k"`
	RareTopK           int     `mapstructure:"rare_top_k" yaml:"rare_top_k"`
	TopKCandidates     int     `mapstructure:"top_k_candidates" yaml:"top_k_candidates"`
	FinalResults       int     `mapstructure:"final_results_limit" yaml:"final_results_limit"`
	RRFK               int     `mapstructure:"rrf_k" yaml:"rrf_k"`
	BroadWeight        float64 `mapstructure:"broad_weight" yaml:"broad_weight"`
	FocusedWeight      float64 `mapstructure:"focused_weight" yaml:"focused_weight"`
	RareWeight         float64 `mapstructure:"rare_weight" yaml:"rare_weight"`
	AgeToleranceYrs    int     `mapstructure:"age_tolerance_years" yaml:"age_tolerance_years"`
	MaxFusedCandidates int     `mapstructure:"max_fused_candidates" yaml:"max_fused_candidates"`
}

// TimeoutConfig holds per-call and overall deadlines in milliseconds.
type TimeoutConfig struct {
	OverallMS int `mapstructure:"overall_ms" yaml:"overall_ms"`
	EncoderMS int `mapstructure:"encoder_ms" yaml:"encoder_ms"`
	SearchMS  int `mapstructure:"search_ms" yaml:"search_ms"`
	CacheMS   int `mapstructure:"cache_ms" yaml:"cache_ms"`
}

// IngestConfig configures the ontology ingest pipeline.
type IngestConfig struct {
	HPOPath         string `mapstructure:"hpo_path" yaml:"hpo_path"`
	ICD10Path       string `mapstructure:"icd10_path" yaml:"icd10_path"`
	CuratedPath     string `mapstructure:"curated_path" yaml:"curated_path"`
	KeywordsPath    string `mapstructure:"keywords_path" yaml:"keywords_path"`
	CheckpointPath  string `mapstructure:"checkpoint_path" yaml:"checkpoint_path"`
	MinPhenotypes   int    `mapstructure:"min_phenotypes" yaml:"min_phenotypes"`
	EncodeBatchSize int    `mapstructure:"encode_batch_size" yaml:"encode_batch_size"`
	UpsertBatchSize int    `mapstructure:"upsert_batch_size" yaml:"upsert_batch_size"`
}

// RedFlagConfig locates the red-flag lexicon asset.
type RedFlagConfig struct {
	LexiconPath string `mapstructure:"lexicon_path" yaml:"lexicon_path"`
	// WatchLexicon enables fsnotify-based hot reload of the lexicon file.
	WatchLexicon bool `mapstructure:"watch_lexicon" yaml:"watch_lexicon"`
}
