package ingest

import (
	"strconv"

	"github.com/clinisights/dx-core/internal/models"
)

// Record is one condition on its way into the index, together with the
// source row that first produced it (used for checkpointing).
type Record struct {
	Condition  *models.Condition
	Provenance string
}

func provenanceKey(source string, row int) string {
	return source + ":" + strconv.Itoa(row)
}

func sourceRank(s models.ConditionSource) int {
	switch s {
	case models.SourceCurated:
		return 3
	case models.SourceHPO:
		return 2
	case models.SourceICD10:
		return 1
	}
	return 0
}

// Merge deduplicates records across sources on the normalised condition
// name. Symptom and code lists are unioned in first-seen order; scalar
// fields follow source precedence, curated over HPO over ICD-10.
func Merge(lists ...[]*Record) []*Record {
	byName := make(map[string]*Record)
	var order []string

	for _, list := range lists {
		for _, rec := range list {
			key := normalizeName(rec.Condition.Name)
			existing, ok := byName[key]
			if !ok {
				byName[key] = rec
				order = append(order, key)
				continue
			}
			mergeInto(existing.Condition, rec.Condition)
		}
	}

	out := make([]*Record, 0, len(order))
	for _, key := range order {
		out = append(out, byName[key])
	}
	return out
}

// mergeInto folds src into dst. List fields always union; scalars move
// only when src outranks dst.
func mergeInto(dst, src *models.Condition) {
	dst.TypicalSymptoms = unionStrings(dst.TypicalSymptoms, src.TypicalSymptoms)
	dst.RareSymptoms = unionStrings(dst.RareSymptoms, src.RareSymptoms)
	dst.RedFlagSymptoms = unionStrings(dst.RedFlagSymptoms, src.RedFlagSymptoms)
	dst.RecommendedTests = unionStrings(dst.RecommendedTests, src.RecommendedTests)
	dst.ICDCodes = unionStrings(dst.ICDCodes, src.ICDCodes)

	if sourceRank(src.Source) <= sourceRank(dst.Source) {
		return
	}
	dst.ConditionID = src.ConditionID
	dst.Name = src.Name
	dst.RecommendedSpecialist = src.RecommendedSpecialist
	dst.UrgencyLevel = src.UrgencyLevel
	dst.PrevalenceBucket = src.PrevalenceBucket
	dst.IsRareDisease = src.IsRareDisease
	dst.TypicalAgeRange = src.TypicalAgeRange
	dst.SexPredilection = src.SexPredilection
	dst.TemporalPattern = src.TemporalPattern
	dst.Source = src.Source
}
