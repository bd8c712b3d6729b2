package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/encoder"
	"github.com/clinisights/dx-core/internal/vecstore"
	"github.com/clinisights/dx-core/pkg/logger"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.False(t, cp.Seen("hpo:1"))

	require.NoError(t, cp.MarkBatch([]string{"hpo:1", "icd10:4"}))

	reloaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Seen("hpo:1"))
	assert.True(t, reloaded.Seen("icd10:4"))
	assert.False(t, reloaded.Seen("hpo:2"))
}

func TestCheckpointEmptyPathIsNoop(t *testing.T) {
	cp, err := LoadCheckpoint("")
	require.NoError(t, err)
	require.NoError(t, cp.MarkBatch([]string{"curated:1"}))
	assert.True(t, cp.Seen("curated:1"))
}

func pipelineFixture(t *testing.T) (config.IngestConfig, *vecstore.MemoryStore) {
	t.Helper()
	dir := t.TempDir()

	keywords := "observable_keywords: [pain, fever, fatigue, weight]\nsymptom_keywords: [pain, disease]\n"
	curated := `conditions:
  - condition_id: curated-hypothyroidism
    name: Hypothyroidism
    typical_symptoms: [fatigue, weight gain]
    urgency_level: routine
    prevalence_bucket: common
    sex_predilection: female
`
	hpo := "OMIM:1\tZebra disease\tLimb pain\n" +
		"OMIM:1\tZebra disease\tRecurrent fever\n" +
		"OMIM:1\tZebra disease\tChronic fatigue\n"
	icd := "I219\tAcute myocardial infarction with chest pain\n"

	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	cfg := config.IngestConfig{
		HPOPath:         write("hpo.tsv", hpo),
		ICD10Path:       write("icd10.tsv", icd),
		CuratedPath:     write("curated.yaml", curated),
		KeywordsPath:    write("keywords.yaml", keywords),
		CheckpointPath:  filepath.Join(dir, "checkpoint.json"),
		MinPhenotypes:   3,
		EncodeBatchSize: 2,
		UpsertBatchSize: 2,
	}
	return cfg, vecstore.NewMemoryStore()
}

func TestPipelineRun(t *testing.T) {
	cfg, store := pipelineFixture(t)
	emb := encoder.NewDeterministicEmbedder(32)

	p := NewPipeline(cfg, emb, store, logger.NewNop())
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Merged)
	assert.Equal(t, 3, stats.Upserted)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPipelineResumeSkipsCheckpointedRows(t *testing.T) {
	cfg, store := pipelineFixture(t)
	emb := encoder.NewDeterministicEmbedder(32)

	p := NewPipeline(cfg, emb, store, logger.NewNop())
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// Second run resumes from the checkpoint and re-encodes nothing.
	stats, err := NewPipeline(cfg, emb, store, logger.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Upserted)
	assert.Equal(t, 3, stats.Resumed)
}

func TestPipelineContinuesWhenOneSourceFails(t *testing.T) {
	cfg, store := pipelineFixture(t)
	cfg.HPOPath = filepath.Join(t.TempDir(), "absent.tsv")
	emb := encoder.NewDeterministicEmbedder(32)

	stats, err := NewPipeline(cfg, emb, store, logger.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Upserted)
}

func TestPipelineAbortsOnIndexOutage(t *testing.T) {
	cfg, _ := pipelineFixture(t)
	emb := encoder.NewDeterministicEmbedder(32)

	store := brokenUpsertStore{}
	_, err := NewPipeline(cfg, emb, store, logger.NewNop()).Run(context.Background())
	require.Error(t, err)
}

type brokenUpsertStore struct{}

func (brokenUpsertStore) EnsureCollection(context.Context, int) error { return nil }
func (brokenUpsertStore) Upsert(context.Context, []vecstore.Point) error {
	return assert.AnError
}
func (brokenUpsertStore) Search(context.Context, []float32, int, *vecstore.Filter) ([]vecstore.SearchResult, error) {
	return nil, nil
}
func (brokenUpsertStore) Count(context.Context) (int, error) { return 0, nil }
