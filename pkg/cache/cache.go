// Package cache memoises text-to-vector encoding results so identical
// symptom strings are never embedded twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

const keyPrefix = "emb:"

// EmbeddingCache stores vectors keyed by (model, canonical text). All
// implementations are safe for concurrent use. A miss never blocks and a
// backend failure degrades to uncached operation.
type EmbeddingCache interface {
	// Get returns the cached vector and true on a hit.
	Get(ctx context.Context, key string) ([]float32, bool)
	// Set stores a vector with the configured TTL. Best-effort.
	Set(ctx context.Context, key string, vec []float32)
	// Clear removes entries matching the glob pattern.
	Clear(ctx context.Context, pattern string) error
	// HealthCheck probes the backend.
	HealthCheck(ctx context.Context) error
}

// Key derives the cache key: SHA-256 over the model identifier and the
// encoder's canonical text, NUL-separated so neither can alias the other.
func Key(modelID, canonicalText string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(canonicalText))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// encodeVector packs a vector as little-endian float32 bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks little-endian float32 bytes; returns false when
// the payload length is not a multiple of four.
func decodeVector(buf []byte) ([]float32, bool) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, true
}
