package vecstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinisights/dx-core/internal/models"
)

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func testCondition(id string, rare bool) *models.Condition {
	bucket := models.PrevalenceCommon
	if rare {
		bucket = models.PrevalenceRare
	}
	return &models.Condition{
		ConditionID:      id,
		Name:             id,
		TypicalSymptoms:  []string{"fatigue"},
		PrevalenceBucket: bucket,
		IsRareDisease:    rare,
		SexPredilection:  models.PredilectionAny,
		Source:           models.SourceCurated,
	}
}

func TestMemoryStoreSearchOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, 4))

	require.NoError(t, s.Upsert(ctx, []Point{
		{Condition: testCondition("a", false), Vector: unitVec(4, 0)},
		{Condition: testCondition("b", false), Vector: unitVec(4, 1)},
		{Condition: testCondition("c", false), Vector: []float32{0.7071, 0.7071, 0, 0}},
	}))

	results, err := s.Search(ctx, unitVec(4, 0), 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Identical vector scores 1.0; orthogonal scores 0.5 after mapping.
	assert.Equal(t, "a", results[0].Condition.ConditionID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "c", results[1].Condition.ConditionID)
	assert.InDelta(t, 0.5, results[2].Score, 1e-6)
}

func TestMemoryStoreUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, 4))

	require.NoError(t, s.Upsert(ctx, []Point{{Condition: testCondition("a", false), Vector: unitVec(4, 0)}}))
	require.NoError(t, s.Upsert(ctx, []Point{{Condition: testCondition("a", false), Vector: unitVec(4, 1)}}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := s.Search(ctx, unitVec(4, 1), 1, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestMemoryStoreSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, 4))

	err := s.EnsureCollection(ctx, 8)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSchemaMismatch))

	err = s.Upsert(ctx, []Point{{Condition: testCondition("a", false), Vector: unitVec(8, 0)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSchemaMismatch))
}

func TestMemoryStoreRareFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, 4))
	require.NoError(t, s.Upsert(ctx, []Point{
		{Condition: testCondition("common", false), Vector: unitVec(4, 0)},
		{Condition: testCondition("zebra", true), Vector: unitVec(4, 1)},
	}))

	results, err := s.Search(ctx, unitVec(4, 0), 10, RareOnly())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "zebra", results[0].Condition.ConditionID)
}

func TestFilterMatches(t *testing.T) {
	age := 30
	femaleCondition := testCondition("x", false)
	femaleCondition.SexPredilection = models.PredilectionFemale
	femaleCondition.TypicalAgeRange = &models.AgeRange{Min: 20, Max: 40}

	tests := []struct {
		name     string
		filter   *Filter
		expected bool
	}{
		{"nil filter", nil, true},
		{"sex compatible", &Filter{Sex: models.SexFemale}, true},
		{"sex incompatible", &Filter{Sex: models.SexMale}, false},
		{"age in range", &Filter{PatientAge: &age}, true},
		{"rare mismatch", RareOnly(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.filter.Matches(femaleCondition))
		})
	}

	outOfRange := 60
	assert.False(t, (&Filter{PatientAge: &outOfRange}).Matches(femaleCondition))
}
