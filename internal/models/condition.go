package models

import (
	"fmt"
	"strings"
)

// AgeRange is an inclusive [Min, Max] range in years.
type AgeRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether age falls inside the range.
func (r AgeRange) Contains(age int) bool {
	return age >= r.Min && age <= r.Max
}

// DistanceFrom returns how many years age lies outside the range, 0 when
// inside.
func (r AgeRange) DistanceFrom(age int) int {
	switch {
	case age < r.Min:
		return r.Min - age
	case age > r.Max:
		return age - r.Max
	}
	return 0
}

// Condition is a canonical disease record stored in the vector index as
// payload alongside its embedding.
type Condition struct {
	ConditionID           string           `json:"condition_id" yaml:"condition_id"`
	Name                  string           `json:"name" yaml:"name"`
	ICDCodes              []string         `json:"icd_codes" yaml:"icd_codes"`
	TypicalSymptoms       []string         `json:"typical_symptoms" yaml:"typical_symptoms"`
	RareSymptoms          []string         `json:"rare_symptoms" yaml:"rare_symptoms"`
	RedFlagSymptoms       []string         `json:"red_flag_symptoms" yaml:"red_flag_symptoms"`
	RecommendedTests      []string         `json:"recommended_tests" yaml:"recommended_tests"`
	RecommendedSpecialist string           `json:"recommended_specialist" yaml:"recommended_specialist"`
	UrgencyLevel          UrgencyLevel     `json:"urgency_level" yaml:"urgency_level"`
	PrevalenceBucket      PrevalenceBucket `json:"prevalence_bucket" yaml:"prevalence_bucket"`
	IsRareDisease         bool             `json:"is_rare_disease" yaml:"is_rare_disease"`
	TypicalAgeRange       *AgeRange        `json:"typical_age_range,omitempty" yaml:"typical_age_range,omitempty"`
	SexPredilection       SexPredilection  `json:"sex_predilection" yaml:"sex_predilection"`
	TemporalPattern       TemporalPattern  `json:"temporal_pattern,omitempty" yaml:"temporal_pattern,omitempty"`
	Source                ConditionSource  `json:"source" yaml:"source"`
}

// Validate checks the record against the store invariants.
func (c *Condition) Validate() error {
	if c.ConditionID == "" {
		return fmt.Errorf("%w: condition_id is empty", ErrInvalidInput)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: condition %s has no name", ErrInvalidInput, c.ConditionID)
	}
	if len(c.TypicalSymptoms) == 0 {
		return fmt.Errorf("%w: condition %s has no typical symptoms", ErrInvalidInput, c.ConditionID)
	}
	if c.IsRareDisease != c.PrevalenceBucket.IsRare() {
		return fmt.Errorf("%w: condition %s is_rare_disease inconsistent with prevalence bucket %q",
			ErrInvalidInput, c.ConditionID, c.PrevalenceBucket)
	}
	if c.TypicalAgeRange != nil && c.TypicalAgeRange.Min > c.TypicalAgeRange.Max {
		return fmt.Errorf("%w: condition %s has inverted age range", ErrInvalidInput, c.ConditionID)
	}
	return nil
}

// EmbeddingText composes the exact text each condition vector is built
// from. Empty symptom sections are omitted.
func (c *Condition) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(".")
	if len(c.TypicalSymptoms) > 0 {
		b.WriteString(" Typical symptoms: ")
		b.WriteString(strings.Join(c.TypicalSymptoms, ", "))
		b.WriteString(".")
	}
	if len(c.RareSymptoms) > 0 {
		b.WriteString(" Rare symptoms: ")
		b.WriteString(strings.Join(c.RareSymptoms, ", "))
		b.WriteString(".")
	}
	return b.String()
}
