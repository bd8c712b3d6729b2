package encoder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/pkg/logger"
)

func embeddingsServer(t *testing.T, dim int, reorder bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		items := make([]item, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[i%dim] = 1 // distinct unit vector per position
			items[i] = item{Index: i, Embedding: vec}
		}
		if reorder && len(items) > 1 {
			items[0], items[1] = items[1], items[0]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": items})
	}))
}

func testEncoderConfig(endpoint string, dim int) config.EncoderConfig {
	return config.EncoderConfig{
		Mode:          "http",
		Endpoint:      endpoint,
		Model:         "pubmedbert-base-embeddings",
		EmbeddingDim:  dim,
		MaxInputChars: 4096,
	}
}

func TestHTTPEmbedderBatch(t *testing.T) {
	srv := embeddingsServer(t, 8, false)
	defer srv.Close()

	e := NewHTTPEmbedder(testEncoderConfig(srv.URL, 8), time.Second, logger.NewNop())
	vecs, err := e.EncodeBatch(context.Background(), []string{"fatigue", "headache"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 8)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestHTTPEmbedderReassemblesByIndex(t *testing.T) {
	srv := embeddingsServer(t, 8, true)
	defer srv.Close()

	e := NewHTTPEmbedder(testEncoderConfig(srv.URL, 8), time.Second, logger.NewNop())
	vecs, err := e.EncodeBatch(context.Background(), []string{"fatigue", "headache"})
	require.NoError(t, err)

	// Position 0 carries the hot component at index 0 regardless of the
	// order the API returned items in.
	assert.InDelta(t, 1.0, float64(vecs[0][0]), 1e-6)
	assert.InDelta(t, 1.0, float64(vecs[1][1]), 1e-6)
}

func TestHTTPEmbedderDimensionMismatch(t *testing.T) {
	srv := embeddingsServer(t, 8, false)
	defer srv.Close()

	e := NewHTTPEmbedder(testEncoderConfig(srv.URL, 16), time.Second, logger.NewNop())
	_, err := e.Encode(context.Background(), "fatigue")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrEncoderUnavailable))
}

func TestHTTPEmbedderBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(testEncoderConfig(srv.URL, 8), time.Second, logger.NewNop())
	_, err := e.Encode(context.Background(), "fatigue")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrEncoderUnavailable))
}

func TestHTTPEmbedderRejectsEmptyInput(t *testing.T) {
	e := NewHTTPEmbedder(testEncoderConfig("http://localhost:0", 8), time.Second, logger.NewNop())

	_, err := e.EncodeBatch(context.Background(), nil)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	_, err = e.EncodeBatch(context.Background(), []string{"  "})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}
