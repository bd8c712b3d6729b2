package diagnosis

import (
	"sort"

	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/models"
)

// Temporal interpolation bounds. An acute condition is a full match up
// to 14 days and a strong mismatch beyond 90; chronic is a full match
// from 30 days and a strong mismatch under 3.
const (
	acuteFavouredDays    = 14
	acuteMismatchDays    = 90
	chronicFavouredDays  = 30
	chronicMismatchDays  = 3
	neutralTemporalFit   = 0.5
	strongMismatchFit    = 0.1
	rareSymptomWeight    = 1.5
	ageDecayYears        = 30.0
)

// Scorer turns fused retrieval candidates into ranked diagnoses using
// explicit clinical signals. CPU-only; performs no I/O.
type Scorer struct {
	weights config.ScoringConfig
}

func NewScorer(weights config.ScoringConfig) *Scorer {
	return &Scorer{weights: weights}
}

// Score computes the four signal components and the blended confidence
// for every candidate, then ranks deterministically and truncates to
// limit.
func (s *Scorer) Score(c *models.PatientCase, candidates []*Candidate, limit int) []*models.ScoredCandidate {
	scored := make([]*models.ScoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		scored = append(scored, s.scoreOne(c, cand))
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.SymptomOverlap != b.SymptomOverlap {
			return a.SymptomOverlap > b.SymptomOverlap
		}
		if a.VectorSimilarity != b.VectorSimilarity {
			return a.VectorSimilarity > b.VectorSimilarity
		}
		return a.Condition.ConditionID < b.Condition.ConditionID
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (s *Scorer) scoreOne(c *models.PatientCase, cand *Candidate) *models.ScoredCandidate {
	cond := cand.Condition

	matched, typicalHits, rareHits := matchSymptoms(c, cond)
	overlap := symptomOverlap(typicalHits, rareHits, len(cond.TypicalSymptoms))
	temporal := temporalFit(c, cond, matched)
	demographic := demographicFit(c, cond)

	confidence := s.weights.WeightVectorSimilarity*cand.VectorSimilarity +
		s.weights.WeightSymptomOverlap*overlap +
		s.weights.WeightTemporalFit*temporal +
		s.weights.WeightDemographicFit*demographic
	confidence = clamp01(confidence)

	return &models.ScoredCandidate{
		Condition:        cond,
		VectorSimilarity: cand.VectorSimilarity,
		SymptomOverlap:   overlap,
		TemporalFit:      temporal,
		DemographicFit:   demographic,
		Confidence:       confidence,
		MatchedSymptoms:  matched,
		RedFlagsHit:      redFlagsHit(c, cond),
	}
}

// matchSymptoms finds the condition's canonical symptoms that appear in
// the chief complaint or any symptom description.
func matchSymptoms(c *models.PatientCase, cond *models.Condition) (matched []string, typicalHits, rareHits int) {
	seen := make(map[string]bool)
	appears := func(symptom string) bool {
		if containsPhrase(c.ChiefComplaint, symptom) {
			return true
		}
		for _, s := range c.Symptoms {
			if containsPhrase(s.Description, symptom) {
				return true
			}
		}
		return false
	}
	for _, sym := range cond.TypicalSymptoms {
		if !seen[sym] && appears(sym) {
			seen[sym] = true
			matched = append(matched, sym)
			typicalHits++
		}
	}
	for _, sym := range cond.RareSymptoms {
		if !seen[sym] && appears(sym) {
			seen[sym] = true
			matched = append(matched, sym)
			rareHits++
		}
	}
	return matched, typicalHits, rareHits
}

// symptomOverlap weighs rare-symptom matches 1.5x because rare symptoms
// are more discriminative.
func symptomOverlap(typicalHits, rareHits, expected int) float64 {
	if expected < 1 {
		expected = 1
	}
	overlap := (float64(typicalHits) + rareSymptomWeight*float64(rareHits)) / float64(expected)
	if overlap > 1.0 {
		overlap = 1.0
	}
	return overlap
}

// temporalFit compares the presentation duration against the condition's
// acute/chronic hint. Without a hint, or without matched symptoms, the
// signal is neutral.
func temporalFit(c *models.PatientCase, cond *models.Condition, matched []string) float64 {
	if cond.TemporalPattern == models.TemporalUnknown || len(matched) == 0 {
		return neutralTemporalFit
	}

	// Representative duration: the longest among case symptoms containing
	// any matched canonical symptom.
	duration := -1
	for _, sym := range matched {
		for _, s := range c.Symptoms {
			if containsPhrase(s.Description, sym) && s.DurationDays > duration {
				duration = s.DurationDays
			}
		}
	}
	if duration < 0 {
		return neutralTemporalFit
	}

	switch cond.TemporalPattern {
	case models.TemporalAcute:
		if duration <= acuteFavouredDays {
			return 1.0
		}
		if duration >= acuteMismatchDays {
			return strongMismatchFit
		}
		frac := float64(duration-acuteFavouredDays) / float64(acuteMismatchDays-acuteFavouredDays)
		return 1.0 - frac*(1.0-strongMismatchFit)
	case models.TemporalChronic:
		if duration >= chronicFavouredDays {
			return 1.0
		}
		if duration <= chronicMismatchDays {
			return strongMismatchFit
		}
		frac := float64(duration-chronicMismatchDays) / float64(chronicFavouredDays-chronicMismatchDays)
		return strongMismatchFit + frac*(1.0-strongMismatchFit)
	}
	return neutralTemporalFit
}

// demographicFit is 1.0 for compatible sex and in-range (or absent) age.
// Sex mismatch zeroes the signal outright; pre-filtering should already
// have removed these.
func demographicFit(c *models.PatientCase, cond *models.Condition) float64 {
	if !cond.SexPredilection.Compatible(c.Sex) {
		return 0.0
	}
	if cond.TypicalAgeRange == nil || cond.TypicalAgeRange.Contains(c.Age) {
		return 1.0
	}
	d := float64(cond.TypicalAgeRange.DistanceFrom(c.Age))
	fit := 1.0 - d/ageDecayYears
	if fit < 0 {
		fit = 0
	}
	return fit
}

// redFlagsHit matches case text against the condition's red-flag tags
// with the same word-boundary substring rule.
func redFlagsHit(c *models.PatientCase, cond *models.Condition) []string {
	var hits []string
	for _, flag := range cond.RedFlagSymptoms {
		matchedFlag := containsPhrase(c.ChiefComplaint, flag)
		if !matchedFlag {
			for _, s := range c.Symptoms {
				if containsPhrase(s.Description, flag) {
					matchedFlag = true
					break
				}
			}
		}
		if matchedFlag {
			hits = append(hits, flag)
		}
	}
	return dedupePreserveOrder(hits, 0)
}

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 {
		return 0.0
	}
	return v
}
