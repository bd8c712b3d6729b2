package cache

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clinisights/dx-core/pkg/logger"
)

// memoryCache is the process-local fallback when the external cache is
// unreachable. LRU-bounded with per-entry TTL; data is not shared across
// replicas and is lost on restart.
type memoryCache struct {
	lru    *expirable.LRU[string, []byte]
	logger logger.Logger
}

// NewMemoryCache builds an in-memory LRU embedding cache.
func NewMemoryCache(maxEntries int, ttl time.Duration, log logger.Logger) EmbeddingCache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	log.Warn("External embedding cache unavailable; using in-memory LRU fallback", "entries", maxEntries)
	return &memoryCache{
		lru:    expirable.NewLRU[string, []byte](maxEntries, nil, ttl),
		logger: log,
	}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	b, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	return decodeVector(b)
}

func (m *memoryCache) Set(_ context.Context, key string, vec []float32) {
	m.lru.Add(key, encodeVector(vec))
}

func (m *memoryCache) Clear(_ context.Context, pattern string) error {
	if pattern == "" || pattern == keyPrefix+"*" {
		m.lru.Purge()
		return nil
	}
	for _, k := range m.lru.Keys() {
		if ok, _ := path.Match(pattern, k); ok {
			m.lru.Remove(k)
		}
	}
	return nil
}

// HealthCheck reports the degraded state so operators can see the
// external cache is not connected.
func (m *memoryCache) HealthCheck(context.Context) error {
	return fmt.Errorf("in-memory embedding cache in use (external cache not connected)")
}
