package encoder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// DeterministicEmbedder derives unit vectors from a SHA-256 stream over
// the canonical text. It carries no semantic signal and exists for the
// explicit degraded mode and for tests; identical text always yields an
// identical vector.
type DeterministicEmbedder struct {
	dim int
}

func NewDeterministicEmbedder(dim int) *DeterministicEmbedder {
	return &DeterministicEmbedder{dim: dim}
}

func (e *DeterministicEmbedder) Dimension() int  { return e.dim }
func (e *DeterministicEmbedder) ModelID() string { return "deterministic-hash" }

func (e *DeterministicEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	canonical, err := validateInput(text)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, e.dim)
	seed := sha256.Sum256([]byte(canonical))
	block := seed[:]
	for i := 0; i < e.dim; i++ {
		if i%8 == 0 && i > 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		bits := binary.LittleEndian.Uint32(block[(i%8)*4 : (i%8)*4+4])
		// Map uniformly into [-1, 1).
		vec[i] = float32(float64(bits)/float64(math.MaxUint32)*2.0 - 1.0)
	}
	return l2Normalize(vec), nil
}

func (e *DeterministicEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
