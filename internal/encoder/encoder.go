// Package encoder produces L2-normalised embedding vectors for medical
// text via a frozen biomedical language model behind an embeddings API.
package encoder

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/clinisights/dx-core/internal/models"
)

// Embedder maps text to unit-length vectors of a fixed dimension.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelID() string
}

// Canonicalize applies the encoder's text normalisation: trim, lowercase,
// collapse internal whitespace. Model-specific token truncation happens
// at the serving layer.
func Canonicalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// validateInput rejects empty inputs after canonicalisation.
func validateInput(text string) (string, error) {
	canonical := Canonicalize(text)
	if canonical == "" {
		return "", fmt.Errorf("%w: empty text for encoding", models.ErrInvalidInput)
	}
	return canonical, nil
}

// l2Normalize scales v to unit length in place so cosine similarity
// reduces to a dot product. Zero vectors are returned unchanged.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
