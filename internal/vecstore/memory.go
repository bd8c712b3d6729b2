package vecstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/clinisights/dx-core/internal/models"
)

// MemoryStore is a brute-force cosine store for tests and local
// development. Vectors are assumed unit length so similarity is a dot
// product.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	points map[string]Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]Point)}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim != 0 && s.dim != dim {
		return fmt.Errorf("%w: existing dimension %d, requested %d", models.ErrSchemaMismatch, s.dim, dim)
	}
	s.dim = dim
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if p.Condition == nil || p.Condition.ConditionID == "" {
			return fmt.Errorf("%w: point without condition id", models.ErrInvalidInput)
		}
		if s.dim != 0 && len(p.Vector) != s.dim {
			return fmt.Errorf("%w: vector dimension %d, collection %d",
				models.ErrSchemaMismatch, len(p.Vector), s.dim)
		}
		s.points[p.Condition.ConditionID] = p
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(s.points))
	for _, p := range s.points {
		if !filter.Matches(p.Condition) {
			continue
		}
		var dot float64
		n := len(vector)
		if len(p.Vector) < n {
			n = len(p.Vector)
		}
		for i := 0; i < n; i++ {
			dot += float64(vector[i]) * float64(p.Vector[i])
		}
		results = append(results, SearchResult{
			Condition: p.Condition,
			Score:     (dot + 1) / 2,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Condition.ConditionID < results[j].Condition.ConditionID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points), nil
}
