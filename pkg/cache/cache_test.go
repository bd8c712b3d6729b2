package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinisights/dx-core/pkg/logger"
)

func TestKey(t *testing.T) {
	k1 := Key("pubmedbert-base-embeddings", "chest pain")
	k2 := Key("pubmedbert-base-embeddings", "chest pain")
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "emb:"))

	// Different model or text must give a different key, and the NUL
	// separator prevents boundary aliasing.
	assert.NotEqual(t, k1, Key("other-model", "chest pain"))
	assert.NotEqual(t, k1, Key("pubmedbert-base-embeddings", "chest pain "))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 0, 3.14159}
	decoded, ok := decodeVector(encodeVector(vec))
	require.True(t, ok)
	assert.Equal(t, vec, decoded)

	_, ok = decodeVector([]byte{1, 2, 3})
	assert.False(t, ok)
	_, ok = decodeVector(nil)
	assert.False(t, ok)
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(16, time.Minute, logger.NewNop())
	ctx := context.Background()

	key := Key("m", "fatigue")
	_, hit := c.Get(ctx, key)
	assert.False(t, hit)

	vec := []float32{0.1, 0.2, 0.3}
	c.Set(ctx, key, vec)

	got, hit := c.Get(ctx, key)
	require.True(t, hit)
	assert.Equal(t, vec, got)
}

func TestMemoryCacheClear(t *testing.T) {
	c := NewMemoryCache(16, time.Minute, logger.NewNop())
	ctx := context.Background()

	c.Set(ctx, Key("m", "fatigue"), []float32{1})
	c.Set(ctx, Key("m", "headache"), []float32{2})

	require.NoError(t, c.Clear(ctx, "emb:*"))
	_, hit := c.Get(ctx, Key("m", "fatigue"))
	assert.False(t, hit)
}

func TestMemoryCacheEviction(t *testing.T) {
	c := NewMemoryCache(2, time.Minute, logger.NewNop())
	ctx := context.Background()

	c.Set(ctx, "emb:a", []float32{1})
	c.Set(ctx, "emb:b", []float32{2})
	c.Set(ctx, "emb:c", []float32{3})

	_, hitA := c.Get(ctx, "emb:a")
	_, hitC := c.Get(ctx, "emb:c")
	assert.False(t, hitA, "oldest entry should be evicted")
	assert.True(t, hitC)
}

func TestMemoryCacheHealthCheckReportsDegraded(t *testing.T) {
	c := NewMemoryCache(2, time.Minute, logger.NewNop())
	assert.Error(t, c.HealthCheck(context.Background()))
}
