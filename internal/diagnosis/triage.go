package diagnosis

import (
	"github.com/clinisights/dx-core/internal/config"
	"github.com/clinisights/dx-core/internal/models"
)

const (
	emergencyConfidenceFloor = 0.40
	maxRecommendedTests       = 10
	maxRecommendedSpecialists = 5
	topCandidatesForAdvice    = 3
	minDifferentialForTier    = 3
)

// Triage maps the top candidate's confidence to a review tier and
// derives next-step recommendations. CPU-only.
type Triage struct {
	cfg config.TriageConfig
}

func NewTriage(cfg config.TriageConfig) *Triage {
	return &Triage{cfg: cfg}
}

// Classification is the triage outcome for one differential.
type Classification struct {
	Tier                   models.ReviewTier
	RequiresEmergencyCare  bool
	RecommendedTests       []string
	RecommendedSpecialists []string
}

// Classify applies the threshold table plus the two overrides: emergency
// presentations escalate to at least primary care, and thin
// differentials (<3 candidates) escalate to at least specialist review.
func (t *Triage) Classify(diagnoses []*models.ScoredCandidate, redFlags []string) Classification {
	top := 0.0
	if len(diagnoses) > 0 {
		top = diagnoses[0].Confidence
	}

	tier := models.TierMultidisciplinary
	switch {
	case top >= t.cfg.Tier1Threshold:
		tier = models.TierAutomated
	case top >= t.cfg.Tier2Threshold:
		tier = models.TierPrimaryCare
	case top >= t.cfg.Tier3Threshold:
		tier = models.TierSpecialist
	}

	emergency := len(redFlags) > 0 || hasCriticalCandidate(diagnoses)
	if emergency {
		tier = tier.AtLeast(models.TierPrimaryCare)
	}
	if len(diagnoses) < minDifferentialForTier {
		tier = tier.AtLeast(models.TierSpecialist)
	}

	tests, specialists := recommendations(diagnoses)
	return Classification{
		Tier:                   tier,
		RequiresEmergencyCare:  emergency,
		RecommendedTests:       tests,
		RecommendedSpecialists: specialists,
	}
}

// hasCriticalCandidate reports a confident critical-urgency candidate in
// the differential.
func hasCriticalCandidate(diagnoses []*models.ScoredCandidate) bool {
	for _, d := range diagnoses {
		if d.Condition.UrgencyLevel == models.UrgencyCritical && d.Confidence >= emergencyConfidenceFloor {
			return true
		}
	}
	return false
}

// recommendations unions tests and specialists over the top-3
// candidates, preserving first-seen order.
func recommendations(diagnoses []*models.ScoredCandidate) (tests, specialists []string) {
	n := len(diagnoses)
	if n > topCandidatesForAdvice {
		n = topCandidatesForAdvice
	}
	var allTests, allSpecialists []string
	for _, d := range diagnoses[:n] {
		allTests = append(allTests, d.Condition.RecommendedTests...)
		if d.Condition.RecommendedSpecialist != "" {
			allSpecialists = append(allSpecialists, d.Condition.RecommendedSpecialist)
		}
	}
	return dedupePreserveOrder(allTests, maxRecommendedTests),
		dedupePreserveOrder(allSpecialists, maxRecommendedSpecialists)
}
