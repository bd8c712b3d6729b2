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

// categoryPrevalence overrides the default prevalence for well known
// 3-character ICD-10 categories. Anything absent defaults to common.
var categoryPrevalence = map[string]models.PrevalenceBucket{
	"A15": models.PrevalenceUncommon,   // tuberculosis
	"A80": models.PrevalenceVeryRare,   // acute poliomyelitis
	"B20": models.PrevalenceUncommon,   // HIV disease
	"C34": models.PrevalenceUncommon,   // lung malignancy
	"C91": models.PrevalenceRare,       // lymphoid leukaemia
	"D66": models.PrevalenceRare,       // hereditary factor VIII deficiency
	"E03": models.PrevalenceCommon,     // hypothyroidism
	"E10": models.PrevalenceCommon,     // type 1 diabetes
	"E84": models.PrevalenceRare,       // cystic fibrosis
	"G10": models.PrevalenceVeryRare,   // Huntington disease
	"G35": models.PrevalenceUncommon,   // multiple sclerosis
	"G71": models.PrevalenceRare,       // primary muscle disorders
	"I10": models.PrevalenceVeryCommon, // essential hypertension
	"I21": models.PrevalenceCommon,     // acute myocardial infarction
	"J06": models.PrevalenceVeryCommon, // acute upper respiratory infection
	"J45": models.PrevalenceVeryCommon, // asthma
	"K21": models.PrevalenceVeryCommon, // gastro-oesophageal reflux
	"M05": models.PrevalenceUncommon,   // rheumatoid arthritis
	"N18": models.PrevalenceCommon,     // chronic kidney disease
}

// ParseICD10 streams an ICD-10-CM code file (tab-separated code,
// description). Only the clinical chapters A through N are kept, and a
// description must mention at least one symptom-like keyword to make it
// into the index.
func ParseICD10(path string, keywords *KeywordSet, log logger.Logger) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open icd10 source: %w", err)
	}
	defer f.Close()

	var records []*Record
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
		if len(fields) < 2 {
			log.Warn("Malformed ICD-10 row skipped", "row", row, "fields", len(fields))
			monitoring.RecordIngestRow("icd10", "malformed")
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(fields[0]))
		desc := strings.TrimSpace(fields[1])
		if code == "" || desc == "" {
			log.Warn("Empty ICD-10 fields, row skipped", "row", row)
			monitoring.RecordIngestRow("icd10", "malformed")
			continue
		}
		if !clinicalChapter(code) || !containsAnyKeyword(desc, keywords.Symptom) {
			monitoring.RecordIngestRow("icd10", "filtered")
			continue
		}

		bucket, ok := categoryPrevalence[category(code)]
		if !ok {
			bucket = models.PrevalenceCommon
		}
		records = append(records, &Record{
			Condition: &models.Condition{
				ConditionID:      "icd10-" + strings.ToLower(code),
				Name:             desc,
				ICDCodes:         []string{code},
				TypicalSymptoms:  []string{strings.ToLower(desc)},
				UrgencyLevel:     models.UrgencyRoutine,
				PrevalenceBucket: bucket,
				IsRareDisease:    bucket.IsRare(),
				SexPredilection:  models.PredilectionAny,
				Source:           models.SourceICD10,
			},
			Provenance: provenanceKey("icd10", row),
		})
		monitoring.RecordIngestRow("icd10", "kept")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read icd10 source: %w", err)
	}
	log.Info("ICD-10 source parsed", "kept", len(records))
	return records, nil
}

// clinicalChapter keeps chapters A through N: infectious disease up to
// genitourinary. Pregnancy, injury, external-cause and administrative
// chapters (O onward) are dropped.
func clinicalChapter(code string) bool {
	if code == "" {
		return false
	}
	c := code[0]
	return c >= 'A' && c <= 'N'
}

func category(code string) string {
	if len(code) < 3 {
		return code
	}
	return code[:3]
}
