// Package vecstore provides cosine nearest-neighbour retrieval over
// condition embeddings with typed payload filters.
package vecstore

import (
	"context"

	"github.com/clinisights/dx-core/internal/models"
)

// Point is one (condition, vector) pair for upsert. The same condition
// ID replaces any prior entry.
type Point struct {
	Condition *models.Condition
	Vector    []float32
}

// SearchResult is one ranked hit. Score is the cosine similarity mapped
// to [0, 1] via (s+1)/2.
type SearchResult struct {
	Condition *models.Condition
	Score     float64
}

// Filter is a typed conjunction compiled by each adapter to its
// backend's native filter form.
type Filter struct {
	// RareOnly, when non-nil, restricts results by is_rare_disease.
	RareOnly *bool
	// Sex, when set, keeps conditions whose predilection is compatible
	// with the patient's sex (predilection "any" always passes).
	Sex models.Sex
	// PatientAge, when non-nil, keeps conditions whose typical age range
	// contains the age (or that declare no range).
	PatientAge *int
}

// Matches evaluates the filter against a condition. Backends that push
// filters server-side still use this for result verification in tests.
func (f *Filter) Matches(c *models.Condition) bool {
	if f == nil {
		return true
	}
	if f.RareOnly != nil && c.IsRareDisease != *f.RareOnly {
		return false
	}
	if f.Sex != "" && !c.SexPredilection.Compatible(f.Sex) {
		return false
	}
	if f.PatientAge != nil && c.TypicalAgeRange != nil && !c.TypicalAgeRange.Contains(*f.PatientAge) {
		return false
	}
	return true
}

// RareOnly builds the rare-disease filter used by the zebra sub-query.
func RareOnly() *Filter {
	t := true
	return &Filter{RareOnly: &t}
}

// VectorStore is the narrow contract the engine holds over the index
// backend. Implementations are safe for concurrent use and own their
// connection pooling.
type VectorStore interface {
	// EnsureCollection creates or validates the collection. An existing
	// collection with a different dimension or distance fails with
	// models.ErrSchemaMismatch.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert is idempotent per condition ID.
	Upsert(ctx context.Context, points []Point) error
	// Search returns up to topK hits ordered by descending score.
	Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error)
	// Count returns the number of stored conditions.
	Count(ctx context.Context) (int, error)
}
