package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/internal/monitoring"
	"github.com/clinisights/dx-core/pkg/logger"
)

// HTTPEmbedder calls an OpenAI-compatible /v1/embeddings endpoint that
// serves the frozen biomedical model (TEI, vLLM, or similar). A circuit
// breaker short-circuits calls while the backend is down.
type HTTPEmbedder struct {
	endpoint      string
	model         string
	dim           int
	maxInputChars int
	client        *http.Client
	breaker       *gobreaker.CircuitBreaker
	logger        logger.Logger
}

// NewHTTPEmbedder builds the remote embedder from configuration.
func NewHTTPEmbedder(cfg config.EncoderConfig, timeout time.Duration, log logger.Logger) *HTTPEmbedder {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embedding-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Embedding backend breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return &HTTPEmbedder{
		endpoint:      cfg.Endpoint,
		model:         cfg.Model,
		dim:           cfg.EmbeddingDim,
		maxInputChars: cfg.MaxInputChars,
		client:        &http.Client{Timeout: timeout},
		breaker:       breaker,
		logger:        log,
	}
}

func (e *HTTPEmbedder) Dimension() int  { return e.dim }
func (e *HTTPEmbedder) ModelID() string { return e.model }

// Encode embeds a single text.
func (e *HTTPEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts in one backend call, preserving input order.
func (e *HTTPEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty batch", models.ErrInvalidInput)
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		canonical, err := validateInput(t)
		if err != nil {
			return nil, err
		}
		if e.maxInputChars > 0 && len(canonical) > e.maxInputChars {
			canonical = canonical[:e.maxInputChars]
		}
		inputs[i] = canonical
	}

	start := time.Now()
	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.callBackend(ctx, inputs)
	})
	monitoring.RecordEncoderCall("encode_batch", time.Since(start), err == nil)
	if err != nil {
		e.logger.Error("Embedding backend call failed", "error", err, "batch", len(inputs))
		return nil, fmt.Errorf("%w: %v", models.ErrEncoderUnavailable, err)
	}

	vecs := out.([][]float32)
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: backend returned %d vectors for %d inputs",
			models.ErrEncoderUnavailable, len(vecs), len(texts))
	}
	for i := range vecs {
		if len(vecs[i]) != e.dim {
			return nil, fmt.Errorf("%w: backend returned dimension %d, expected %d",
				models.ErrEncoderUnavailable, len(vecs[i]), e.dim)
		}
		vecs[i] = l2Normalize(vecs[i])
	}
	return vecs, nil
}

func (e *HTTPEmbedder) callBackend(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": e.model,
		"input": inputs,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings API returned %d items for %d inputs", len(result.Data), len(inputs))
	}

	// The API may return items out of order; reassemble by index.
	vecs := make([][]float32, len(inputs))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(vecs) {
			return nil, fmt.Errorf("embeddings API returned out-of-range index %d", item.Index)
		}
		vecs[item.Index] = item.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("embeddings API response missing index %d", i)
		}
	}
	return vecs, nil
}
