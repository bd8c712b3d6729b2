package encoder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinisights/dx-core/internal/models"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"  Chest   Pain ", "chest pain"},
		{"FATIGUE\tand\nweight gain", "fatigue and weight gain"},
		{"already canonical", "already canonical"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Canonicalize(tt.in))
	}
}

func TestDeterministicEmbedderStable(t *testing.T) {
	e := NewDeterministicEmbedder(768)
	ctx := context.Background()

	v1, err := e.Encode(ctx, "crushing chest pain")
	require.NoError(t, err)
	v2, err := e.Encode(ctx, "Crushing  CHEST pain")
	require.NoError(t, err)

	require.Len(t, v1, 768)
	// Same canonical text must reproduce the same vector exactly.
	assert.Equal(t, v1, v2)

	v3, err := e.Encode(ctx, "throbbing headache")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
}

func TestDeterministicEmbedderUnitNorm(t *testing.T) {
	e := NewDeterministicEmbedder(64)
	vec, err := e.Encode(context.Background(), "fatigue and weight gain")
	require.NoError(t, err)

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestDeterministicEmbedderRejectsEmpty(t *testing.T) {
	e := NewDeterministicEmbedder(64)
	_, err := e.Encode(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestDeterministicEmbedderBatch(t *testing.T) {
	e := NewDeterministicEmbedder(32)
	ctx := context.Background()

	vecs, err := e.EncodeBatch(ctx, []string{"fatigue", "headache"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, err := e.Encode(ctx, "fatigue")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])
}
