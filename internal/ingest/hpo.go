package ingest

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/internal/monitoring"
	"github.com/clinisights/dx-core/pkg/logger"
)

// hpoDisease accumulates phenotype rows for one disease ID while the
// annotation file is streamed.
type hpoDisease struct {
	id         string
	name       string
	phenotypes []string
	firstRow   int
}

// ParseHPO streams an HPO phenotype annotation file (tab-separated
// disease_id, disease_name, phenotype_label) and emits one condition
// per disease that has enough observable phenotypes. Everything coming
// out of HPO is treated as a rare disease unless a later source says
// otherwise.
func ParseHPO(path string, keywords *KeywordSet, minPhenotypes int, log logger.Logger) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hpo source: %w", err)
	}
	defer f.Close()

	diseases := make(map[string]*hpoDisease)
	var order []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	row := 0
	for scanner.Scan() {
		row++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			log.Warn("Malformed HPO row skipped", "row", row, "fields", len(fields))
			monitoring.RecordIngestRow("hpo", "malformed")
			continue
		}
		id := strings.TrimSpace(fields[0])
		name := strings.TrimSpace(fields[1])
		label := strings.TrimSpace(fields[2])
		if id == "" || name == "" || label == "" {
			log.Warn("Empty HPO fields, row skipped", "row", row)
			monitoring.RecordIngestRow("hpo", "malformed")
			continue
		}
		d, ok := diseases[id]
		if !ok {
			d = &hpoDisease{id: id, name: name, firstRow: row}
			diseases[id] = d
			order = append(order, id)
		}
		if containsAnyKeyword(label, keywords.Observable) {
			d.phenotypes = append(d.phenotypes, strings.ToLower(label))
		}
		monitoring.RecordIngestRow("hpo", "read")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read hpo source: %w", err)
	}

	var records []*Record
	for _, id := range order {
		d := diseases[id]
		if len(d.phenotypes) < minPhenotypes {
			monitoring.RecordIngestRow("hpo", "filtered")
			continue
		}
		records = append(records, &Record{
			Condition: &models.Condition{
				ConditionID:      conditionIDFromSourceID(d.id),
				Name:             d.name,
				TypicalSymptoms:  unionStrings(nil, d.phenotypes),
				UrgencyLevel:     models.UrgencyRoutine,
				PrevalenceBucket: models.PrevalenceRare,
				IsRareDisease:    true,
				SexPredilection:  models.PredilectionAny,
				Source:           models.SourceHPO,
			},
			Provenance: provenanceKey("hpo", d.firstRow),
		})
		monitoring.RecordIngestRow("hpo", "kept")
	}
	log.Info("HPO source parsed", "diseases", len(order), "kept", len(records))
	return records, nil
}

// conditionIDFromSourceID turns an ontology identifier such as
// "OMIM:256030" into a stable lowercase condition ID.
func conditionIDFromSourceID(id string) string {
	s := strings.ToLower(id)
	s = strings.ReplaceAll(s, ":", "-")
	return strings.ReplaceAll(s, " ", "-")
}
