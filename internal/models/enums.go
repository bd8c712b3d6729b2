package models

// SymptomSeverity grades a reported symptom.
type SymptomSeverity string

const (
	SeverityMild     SymptomSeverity = "mild"
	SeverityModerate SymptomSeverity = "moderate"
	SeveritySevere   SymptomSeverity = "severe"
)

func (s SymptomSeverity) Valid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// SymptomFrequency describes the temporal pattern of a reported symptom.
type SymptomFrequency string

const (
	FrequencyEpisodic     SymptomFrequency = "episodic"
	FrequencyIntermittent SymptomFrequency = "intermittent"
	FrequencyConstant     SymptomFrequency = "constant"
	FrequencyProgressive  SymptomFrequency = "progressive"
)

func (f SymptomFrequency) Valid() bool {
	switch f {
	case FrequencyEpisodic, FrequencyIntermittent, FrequencyConstant, FrequencyProgressive:
		return true
	}
	return false
}

// Sex is the patient's reported sex.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexOther  Sex = "other"
)

func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale, SexOther:
		return true
	}
	return false
}

// SexPredilection marks conditions that predominantly affect one sex.
type SexPredilection string

const (
	PredilectionAny    SexPredilection = "any"
	PredilectionMale   SexPredilection = "male"
	PredilectionFemale SexPredilection = "female"
)

// Compatible reports whether a patient of the given sex can plausibly
// have a condition with this predilection. SexOther is always compatible.
func (p SexPredilection) Compatible(s Sex) bool {
	if p == PredilectionAny || p == "" || s == SexOther {
		return true
	}
	return string(p) == string(s)
}

// UrgencyLevel is the clinical urgency attached to a condition.
type UrgencyLevel string

const (
	UrgencyRoutine  UrgencyLevel = "routine"
	UrgencyUrgent   UrgencyLevel = "urgent"
	UrgencyCritical UrgencyLevel = "critical"
)

// PrevalenceBucket coarsely estimates how often a condition is seen in
// general populations.
type PrevalenceBucket string

const (
	PrevalenceVeryRare   PrevalenceBucket = "very_rare"
	PrevalenceRare       PrevalenceBucket = "rare"
	PrevalenceUncommon   PrevalenceBucket = "uncommon"
	PrevalenceCommon     PrevalenceBucket = "common"
	PrevalenceVeryCommon PrevalenceBucket = "very_common"
)

// IsRare reports whether the bucket counts as a rare disease.
func (p PrevalenceBucket) IsRare() bool {
	return p == PrevalenceVeryRare || p == PrevalenceRare
}

// ConditionSource identifies the ontology a condition record came from.
type ConditionSource string

const (
	SourceHPO     ConditionSource = "hpo"
	SourceICD10   ConditionSource = "icd10"
	SourceCurated ConditionSource = "curated"
)

// TemporalPattern hints whether a condition typically presents acutely
// or chronically. Unknown means neutral temporal scoring.
type TemporalPattern string

const (
	TemporalUnknown TemporalPattern = ""
	TemporalAcute   TemporalPattern = "acute"
	TemporalChronic TemporalPattern = "chronic"
)

// ReviewTier is the triage routing decision attached to a result.
type ReviewTier string

const (
	TierAutomated         ReviewTier = "tier1_automated"
	TierPrimaryCare       ReviewTier = "tier2_primary_care"
	TierSpecialist        ReviewTier = "tier3_specialist"
	TierMultidisciplinary ReviewTier = "tier4_multidisciplinary"
)

// tierOrder ranks tiers from least (automated) to most escalated.
var tierOrder = map[ReviewTier]int{
	TierAutomated:         1,
	TierPrimaryCare:       2,
	TierSpecialist:        3,
	TierMultidisciplinary: 4,
}

// AtLeast returns the more escalated of the two tiers.
func (t ReviewTier) AtLeast(floor ReviewTier) ReviewTier {
	if tierOrder[t] < tierOrder[floor] {
		return floor
	}
	return t
}
