package diagnosis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinisights/dx-core/internal/encoder"
	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/internal/redflag"
	"github.com/clinisights/dx-core/internal/vecstore"
	"github.com/clinisights/dx-core/pkg/cache"
	"github.com/clinisights/dx-core/pkg/logger"
)

// scriptedStore returns preset hits so confidence arithmetic in the
// scenarios below is exact. failFocused makes the focused sub-query
// (recognised by its topK) fail, for partial-outage scenarios.
type scriptedStore struct {
	hits        []vecstore.SearchResult
	failFocused bool
}

func (s *scriptedStore) EnsureCollection(context.Context, int) error { return nil }
func (s *scriptedStore) Upsert(context.Context, []vecstore.Point) error {
	return nil
}
func (s *scriptedStore) Count(context.Context) (int, error) { return len(s.hits), nil }

func (s *scriptedStore) Search(_ context.Context, _ []float32, topK int, filter *vecstore.Filter) ([]vecstore.SearchResult, error) {
	if s.failFocused && filter == nil && topK == defaultRetrieveConfig().FocusedTopK {
		return nil, models.ErrIndexUnavailable
	}
	out := make([]vecstore.SearchResult, 0, len(s.hits))
	for _, h := range s.hits {
		if filter.Matches(h.Condition) {
			out = append(out, h)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func emergencyLexicon(t *testing.T) *redflag.Detector {
	t.Helper()
	d, err := redflag.NewDetector([]redflag.LexiconEntry{
		{Phrase: "crushing chest pain", Severity: redflag.SeverityEmergency},
		{Phrase: "loss of consciousness", Severity: redflag.SeverityEmergency},
		{Phrase: "night sweats", Severity: redflag.SeverityWarning},
	}, logger.NewNop())
	require.NoError(t, err)
	return d
}

func newTestService(t *testing.T, store vecstore.VectorStore) *Service {
	t.Helper()
	emb := encoder.NewDeterministicEmbedder(64)
	retriever := NewRetriever(store, emb,
		cache.NewMemoryCache(64, time.Minute, logger.NewNop()),
		defaultRetrieveConfig(), defaultTimeouts(), 4, logger.NewNop())
	return NewService(emergencyLexicon(t), retriever,
		NewScorer(defaultScoringWeights()), NewTriage(defaultTriageConfig()), 10, logger.NewNop())
}

func acuteMI() *models.Condition {
	return &models.Condition{
		ConditionID: "curated-acute-myocardial-infarction",
		Name:        "Acute myocardial infarction",
		TypicalSymptoms: []string{
			"crushing chest pain", "chest pain radiating to left arm", "shortness of breath", "sweating", "nausea",
		},
		RedFlagSymptoms:       []string{"crushing chest pain"},
		RecommendedTests:      []string{"ECG", "Troponin"},
		RecommendedSpecialist: "cardiologist",
		UrgencyLevel:          models.UrgencyCritical,
		PrevalenceBucket:      models.PrevalenceCommon,
		SexPredilection:       models.PredilectionAny,
		TemporalPattern:       models.TemporalAcute,
		Source:                models.SourceCurated,
	}
}

func myotonicDystrophy() *models.Condition {
	return &models.Condition{
		ConditionID: "curated-myotonic-dystrophy",
		Name:        "Myotonic dystrophy type 1",
		TypicalSymptoms: []string{
			"progressive muscle weakness", "difficulty releasing grip", "muscle stiffness", "drooping eyelids", "fatigue",
		},
		RareSymptoms:          []string{"early cataracts", "cardiac conduction abnormality"},
		RecommendedSpecialist: "neurologist",
		UrgencyLevel:          models.UrgencyUrgent,
		PrevalenceBucket:      models.PrevalenceRare,
		IsRareDisease:         true,
		TypicalAgeRange:       &models.AgeRange{Min: 10, Max: 50},
		SexPredilection:       models.PredilectionAny,
		TemporalPattern:       models.TemporalChronic,
		Source:                models.SourceCurated,
	}
}

func fillerCondition(id string) *models.Condition {
	c := namedCondition(id, false, "completely unrelated complaint")
	return c
}

func TestAnalyzeClassicHypothyroidism(t *testing.T) {
	store := &scriptedStore{hits: []vecstore.SearchResult{
		{Condition: hypothyroidism(), Score: 0.9},
		{Condition: fillerCondition("filler-1"), Score: 0.6},
		{Condition: fillerCondition("filler-2"), Score: 0.55},
	}}
	svc := newTestService(t, store)

	result, err := svc.Analyze(context.Background(), hypothyroidCase(), DefaultAnalyzeOptions())
	require.NoError(t, err)

	require.NotNil(t, result.PrimaryDiagnosis)
	assert.Equal(t, "curated-hypothyroidism", result.PrimaryDiagnosis.Condition.ConditionID)
	assert.GreaterOrEqual(t, result.OverallConfidence, 0.60)
	assert.Contains(t, []models.ReviewTier{models.TierAutomated, models.TierPrimaryCare}, result.ReviewTier)
	assert.False(t, result.RequiresEmergencyCare)
	assert.Empty(t, result.RedFlagsDetected)
	assert.Contains(t, result.RecommendedTests, "TSH")
	assert.Contains(t, result.RecommendedSpecialists, "endocrinologist")
	assert.Contains(t, result.ReasoningSummary, "Hypothyroidism")
	assert.GreaterOrEqual(t, result.ProcessingTimeMS, int64(0))
}

func TestAnalyzeAcuteCoronaryRedFlag(t *testing.T) {
	store := &scriptedStore{hits: []vecstore.SearchResult{
		{Condition: acuteMI(), Score: 0.85},
		{Condition: fillerCondition("filler-1"), Score: 0.6},
		{Condition: fillerCondition("filler-2"), Score: 0.5},
	}}
	svc := newTestService(t, store)

	c := &models.PatientCase{
		CaseID:         "case-mi",
		Age:            62,
		Sex:            models.SexMale,
		ChiefComplaint: "crushing chest pain radiating to left arm",
		Symptoms: []models.Symptom{
			{Description: "chest pain", Severity: models.SeveritySevere, DurationDays: 0, Frequency: models.FrequencyConstant},
			{Description: "shortness of breath", Severity: models.SeveritySevere, DurationDays: 0, Frequency: models.FrequencyConstant},
			{Description: "sweating", Severity: models.SeverityModerate, DurationDays: 0, Frequency: models.FrequencyConstant},
		},
	}
	result, err := svc.Analyze(context.Background(), c, DefaultAnalyzeOptions())
	require.NoError(t, err)

	assert.Contains(t, result.RedFlagsDetected, "crushing chest pain")
	assert.True(t, result.RequiresEmergencyCare)
	assert.NotEqual(t, models.TierAutomated, result.ReviewTier)
	require.NotNil(t, result.PrimaryDiagnosis)
	assert.Equal(t, "curated-acute-myocardial-infarction", result.PrimaryDiagnosis.Condition.ConditionID)
	assert.NotEmpty(t, result.PrimaryDiagnosis.RedFlagsHit)
}

func TestAnalyzeRareDiseaseZebra(t *testing.T) {
	store := &scriptedStore{hits: []vecstore.SearchResult{
		{Condition: fillerCondition("common-1"), Score: 0.7},
		{Condition: fillerCondition("common-2"), Score: 0.65},
		{Condition: myotonicDystrophy(), Score: 0.6},
	}}
	svc := newTestService(t, store)

	c := &models.PatientCase{
		CaseID:         "case-zebra",
		Age:            28,
		Sex:            models.SexMale,
		ChiefComplaint: "weakness in hands and visual problems",
		Symptoms: []models.Symptom{
			{Description: "progressive muscle weakness in hands", Severity: models.SeverityModerate, DurationDays: 365, Frequency: models.FrequencyProgressive},
			{Description: "early cataracts", Severity: models.SeverityMild, DurationDays: 180, Frequency: models.FrequencyConstant},
		},
	}
	result, err := svc.Analyze(context.Background(), c, DefaultAnalyzeOptions())
	require.NoError(t, err)

	ids := make([]string, 0, len(result.DifferentialDiagnoses))
	for _, d := range result.DifferentialDiagnoses {
		ids = append(ids, d.Condition.ConditionID)
	}
	assert.Contains(t, ids, "curated-myotonic-dystrophy")
}

func TestAnalyzeInsufficientEvidence(t *testing.T) {
	store := &scriptedStore{hits: []vecstore.SearchResult{
		{Condition: fillerCondition("filler-1"), Score: 0.45},
		{Condition: fillerCondition("filler-2"), Score: 0.44},
		{Condition: fillerCondition("filler-3"), Score: 0.43},
	}}
	svc := newTestService(t, store)

	c := &models.PatientCase{
		CaseID:         "case-vague",
		Age:            40,
		Sex:            models.SexOther,
		ChiefComplaint: "feeling unwell",
		Symptoms: []models.Symptom{
			{Description: "feeling unwell", Severity: models.SeverityMild, DurationDays: 1, Frequency: models.FrequencyIntermittent},
		},
	}
	result, err := svc.Analyze(context.Background(), c, DefaultAnalyzeOptions())
	require.NoError(t, err)

	assert.Equal(t, models.TierMultidisciplinary, result.ReviewTier)
	assert.Less(t, result.OverallConfidence, 0.40)
	assert.LessOrEqual(t, len(result.DifferentialDiagnoses), 10)
}

func TestAnalyzeSexFilter(t *testing.T) {
	femaleOnly := hypothyroidism() // sex_predilection female
	store := &scriptedStore{hits: []vecstore.SearchResult{
		{Condition: femaleOnly, Score: 0.9},
		{Condition: fillerCondition("any-1"), Score: 0.6},
	}}
	svc := newTestService(t, store)

	c := hypothyroidCase()
	c.Sex = models.SexMale
	result, err := svc.Analyze(context.Background(), c, DefaultAnalyzeOptions())
	require.NoError(t, err)

	for _, d := range result.DifferentialDiagnoses {
		assert.NotEqual(t, "curated-hypothyroidism", d.Condition.ConditionID)
	}
}

func TestAnalyzePartialOutage(t *testing.T) {
	store := &scriptedStore{
		hits: []vecstore.SearchResult{
			{Condition: hypothyroidism(), Score: 0.9},
			{Condition: fillerCondition("filler-1"), Score: 0.6},
		},
		failFocused: true,
	}
	svc := newTestService(t, store)

	result, err := svc.Analyze(context.Background(), hypothyroidCase(), DefaultAnalyzeOptions())
	require.NoError(t, err)

	assert.NotEmpty(t, result.DifferentialDiagnoses)
	assert.Contains(t, result.ReasoningSummary, "partial=true")
	assert.Contains(t, result.ReasoningSummary, "focused")
}

func TestAnalyzeInvalidCase(t *testing.T) {
	svc := newTestService(t, &scriptedStore{})

	_, err := svc.Analyze(context.Background(), &models.PatientCase{CaseID: "bad"}, DefaultAnalyzeOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestAnalyzeTotalIndexOutage(t *testing.T) {
	svc := newTestService(t, failingStore{})

	_, err := svc.Analyze(context.Background(), hypothyroidCase(), DefaultAnalyzeOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrServiceUnavailable))
}

func TestAnalyzeResultInvariants(t *testing.T) {
	store := &scriptedStore{hits: []vecstore.SearchResult{
		{Condition: hypothyroidism(), Score: 0.9},
		{Condition: acuteMI(), Score: 0.5},
		{Condition: fillerCondition("filler-1"), Score: 0.6},
	}}
	svc := newTestService(t, store)

	result, err := svc.Analyze(context.Background(), hypothyroidCase(), DefaultAnalyzeOptions())
	require.NoError(t, err)
	require.NotEmpty(t, result.DifferentialDiagnoses)

	// Sorted by confidence descending; primary is the head of the list.
	for i := 1; i < len(result.DifferentialDiagnoses); i++ {
		assert.GreaterOrEqual(t,
			result.DifferentialDiagnoses[i-1].Confidence,
			result.DifferentialDiagnoses[i].Confidence)
	}
	assert.Same(t, result.DifferentialDiagnoses[0], result.PrimaryDiagnosis)
	assert.Equal(t, result.DifferentialDiagnoses[0].Confidence, result.OverallConfidence)
	assert.GreaterOrEqual(t, result.OverallConfidence, 0.0)
	assert.LessOrEqual(t, result.OverallConfidence, 1.0)

	// No duplicate recommendations.
	seen := map[string]bool{}
	for _, test := range result.RecommendedTests {
		assert.False(t, seen[test], "duplicate recommended test %s", test)
		seen[test] = true
	}
	assert.False(t, strings.Contains(result.ReasoningSummary, "partial=true"))
}
