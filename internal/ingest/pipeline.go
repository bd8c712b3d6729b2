package ingest

import (
	"context"
	"fmt"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/encoder"
	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/internal/monitoring"
	"github.com/clinisights/dx-core/internal/vecstore"
	"github.com/clinisights/dx-core/pkg/logger"
)

// Pipeline loads ontology sources, merges them into canonical condition
// records and pushes freshly encoded vectors into the index.
type Pipeline struct {
	cfg      config.IngestConfig
	embedder encoder.Embedder
	store    vecstore.VectorStore
	logger   logger.Logger
}

func NewPipeline(cfg config.IngestConfig, embedder encoder.Embedder, store vecstore.VectorStore, log logger.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, embedder: embedder, store: store, logger: log}
}

// Stats summarises one ingest run.
type Stats struct {
	Parsed   int
	Merged   int
	Skipped  int
	Upserted int
	Resumed  int
}

// Run executes the full ingest. A failing source aborts only that
// source's stage; a vector-index failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	keywords, err := LoadKeywords(p.cfg.KeywordsPath)
	if err != nil {
		return nil, err
	}
	checkpoint, err := LoadCheckpoint(p.cfg.CheckpointPath)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}

	// Curated first so its rows win first-seen ordering in the merge.
	var lists [][]*Record
	if p.cfg.CuratedPath != "" {
		curated, err := ParseCurated(p.cfg.CuratedPath, p.logger)
		if err != nil {
			p.logger.Error("Curated source stage failed", "error", err)
		} else {
			lists = append(lists, curated)
			stats.Parsed += len(curated)
		}
	}
	if p.cfg.HPOPath != "" {
		hpo, err := ParseHPO(p.cfg.HPOPath, keywords, p.cfg.MinPhenotypes, p.logger)
		if err != nil {
			p.logger.Error("HPO source stage failed", "error", err)
		} else {
			lists = append(lists, hpo)
			stats.Parsed += len(hpo)
		}
	}
	if p.cfg.ICD10Path != "" {
		icd, err := ParseICD10(p.cfg.ICD10Path, keywords, p.logger)
		if err != nil {
			p.logger.Error("ICD-10 source stage failed", "error", err)
		} else {
			lists = append(lists, icd)
			stats.Parsed += len(icd)
		}
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("%w: no ingest source could be read", models.ErrInvalidInput)
	}

	merged := Merge(lists...)
	stats.Merged = len(merged)

	if err := p.store.EnsureCollection(ctx, p.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("prepare collection: %w", err)
	}

	pending := make([]*Record, 0, len(merged))
	for _, rec := range merged {
		if checkpoint.Seen(rec.Provenance) {
			stats.Resumed++
			continue
		}
		if err := rec.Condition.Validate(); err != nil {
			p.logger.Warn("Merged condition failed validation, skipped",
				"condition_id", rec.Condition.ConditionID, "error", err)
			monitoring.RecordIngestRow(string(rec.Condition.Source), "invalid")
			stats.Skipped++
			continue
		}
		pending = append(pending, rec)
	}

	if err := p.load(ctx, pending, checkpoint, stats); err != nil {
		return stats, err
	}

	p.logger.Info("Ingest completed",
		"parsed", stats.Parsed,
		"merged", stats.Merged,
		"skipped", stats.Skipped,
		"resumed", stats.Resumed,
		"upserted", stats.Upserted)
	return stats, nil
}

// load encodes and upserts records in batches, checkpointing after each
// successful upsert batch.
func (p *Pipeline) load(ctx context.Context, records []*Record, checkpoint *Checkpoint, stats *Stats) error {
	encodeBatch := p.cfg.EncodeBatchSize
	if encodeBatch <= 0 {
		encodeBatch = 64
	}
	upsertBatch := p.cfg.UpsertBatchSize
	if upsertBatch <= 0 {
		upsertBatch = 128
	}

	var points []vecstore.Point
	var keys []string
	flush := func() error {
		if len(points) == 0 {
			return nil
		}
		if err := p.store.Upsert(ctx, points); err != nil {
			return fmt.Errorf("upsert batch of %d: %w", len(points), err)
		}
		stats.Upserted += len(points)
		if err := checkpoint.MarkBatch(keys); err != nil {
			p.logger.Warn("Checkpoint flush failed", "error", err)
		}
		points = points[:0]
		keys = keys[:0]
		return nil
	}

	for start := 0; start < len(records); start += encodeBatch {
		end := start + encodeBatch
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Condition.EmbeddingText()
		}
		vectors, err := p.embedder.EncodeBatch(ctx, texts)
		if err != nil {
			// Encoding failures are per-batch: fall back to one-by-one so
			// a single bad input does not sink the batch.
			p.logger.Warn("Batch encode failed, retrying row by row", "error", err)
			vectors = p.encodeIndividually(ctx, batch, stats)
		}
		for i, rec := range batch {
			if vectors[i] == nil {
				continue
			}
			points = append(points, vecstore.Point{Condition: rec.Condition, Vector: vectors[i]})
			keys = append(keys, rec.Provenance)
			if len(points) >= upsertBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func (p *Pipeline) encodeIndividually(ctx context.Context, batch []*Record, stats *Stats) [][]float32 {
	vectors := make([][]float32, len(batch))
	for i, rec := range batch {
		vec, err := p.embedder.Encode(ctx, rec.Condition.EmbeddingText())
		if err != nil {
			p.logger.Warn("Condition could not be encoded, skipped",
				"condition_id", rec.Condition.ConditionID, "error", err)
			monitoring.RecordIngestRow(string(rec.Condition.Source), "encode_failed")
			stats.Skipped++
			continue
		}
		vectors[i] = vec
	}
	return vectors
}
