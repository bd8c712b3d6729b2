package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/internal/monitoring"
	"github.com/clinisights/dx-core/pkg/logger"
)

type curatedFile struct {
	Conditions []*models.Condition `yaml:"conditions"`
}

// ParseCurated loads the hand-authored seed set. Curated rows are
// authoritative: when they collide with an ontology row during the
// merge, the curated values win.
func ParseCurated(path string, log logger.Logger) ([]*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open curated source: %w", err)
	}
	var cf curatedFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse curated source %s: %w", path, err)
	}

	records := make([]*Record, 0, len(cf.Conditions))
	for i, c := range cf.Conditions {
		if c.Source == "" {
			c.Source = models.SourceCurated
		}
		if c.SexPredilection == "" {
			c.SexPredilection = models.PredilectionAny
		}
		if err := c.Validate(); err != nil {
			log.Warn("Invalid curated condition skipped", "index", i, "error", err)
			monitoring.RecordIngestRow("curated", "malformed")
			continue
		}
		records = append(records, &Record{
			Condition:  c,
			Provenance: provenanceKey("curated", i+1),
		})
		monitoring.RecordIngestRow("curated", "kept")
	}
	log.Info("Curated source parsed", "kept", len(records))
	return records, nil
}
