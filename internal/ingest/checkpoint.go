package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Checkpoint records which source rows have already been encoded and
// upserted, so an interrupted ingest can resume without re-encoding.
// Upserts are idempotent, so a stale checkpoint is safe, just slower.
type Checkpoint struct {
	mu   sync.Mutex
	path string
	Done map[string]bool `json:"done"`
}

// LoadCheckpoint reads a checkpoint file, returning an empty checkpoint
// when the file does not exist yet.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	cp := &Checkpoint{path: path, Done: make(map[string]bool)}
	if path == "" {
		return cp, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	if cp.Done == nil {
		cp.Done = make(map[string]bool)
	}
	return cp, nil
}

// Seen reports whether a provenance key was already processed.
func (c *Checkpoint) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Done[key]
}

// MarkBatch records a finished batch and flushes the file. Flushing per
// batch keeps the window of repeated work to one batch.
func (c *Checkpoint) MarkBatch(keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.Done[k] = true
	}
	return c.flushLocked()
}

func (c *Checkpoint) flushLocked() error {
	if c.path == "" {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("checkpoint dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, c.path)
}
