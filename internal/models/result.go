package models

// ScoredCandidate is one ranked entry in a differential diagnosis. All
// component scores live in [0, 1].
type ScoredCandidate struct {
	Condition        *Condition `json:"condition"`
	VectorSimilarity float64    `json:"vector_similarity"`
	SymptomOverlap   float64    `json:"symptom_overlap"`
	TemporalFit      float64    `json:"temporal_fit"`
	DemographicFit   float64    `json:"demographic_fit"`
	Confidence       float64    `json:"confidence"`
	MatchedSymptoms  []string   `json:"matched_symptoms"`
	RedFlagsHit      []string   `json:"red_flags_hit"`
}

// DiagnosticResult is the assembled outcome of one analysis request.
type DiagnosticResult struct {
	CaseID                 string             `json:"case_id"`
	DifferentialDiagnoses  []*ScoredCandidate `json:"differential_diagnoses"`
	PrimaryDiagnosis       *ScoredCandidate   `json:"primary_diagnosis"`
	ReviewTier             ReviewTier         `json:"review_tier"`
	OverallConfidence      float64            `json:"overall_confidence"`
	RedFlagsDetected       []string           `json:"red_flags_detected"`
	RequiresEmergencyCare  bool               `json:"requires_emergency_care"`
	RecommendedSpecialists []string           `json:"recommended_specialists"`
	RecommendedTests       []string           `json:"recommended_tests"`
	ReasoningSummary       string             `json:"reasoning_summary"`
	ProcessingTimeMS       int64              `json:"processing_time_ms"`
}
