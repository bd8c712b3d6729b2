package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const maxSymptomsPerCase = 50

// Symptom is a single free-text patient complaint with structured
// qualifiers.
type Symptom struct {
	Description  string           `json:"description" validate:"required"`
	Severity     SymptomSeverity  `json:"severity" validate:"required"`
	DurationDays int              `json:"duration_days" validate:"gte=0"`
	Frequency    SymptomFrequency `json:"frequency" validate:"required"`
}

// PatientCase is the structured inbound case for one analysis request.
type PatientCase struct {
	CaseID         string    `json:"case_id" validate:"required"`
	Age            int       `json:"age" validate:"gte=0,lte=120"`
	Sex            Sex       `json:"sex" validate:"required"`
	ChiefComplaint string    `json:"chief_complaint"`
	Symptoms       []Symptom `json:"symptoms" validate:"required,min=1,max=50,dive"`
}

var caseValidator = validator.New()

// Validate checks structural constraints and enum membership. All
// violations surface as ErrInvalidInput.
func (p *PatientCase) Validate() error {
	if err := caseValidator.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !p.Sex.Valid() {
		return fmt.Errorf("%w: unknown sex %q", ErrInvalidInput, p.Sex)
	}
	if len(p.Symptoms) > maxSymptomsPerCase {
		return fmt.Errorf("%w: %d symptoms exceeds limit of %d", ErrInvalidInput, len(p.Symptoms), maxSymptomsPerCase)
	}
	for i, s := range p.Symptoms {
		if !s.Severity.Valid() {
			return fmt.Errorf("%w: symptom %d has unknown severity %q", ErrInvalidInput, i, s.Severity)
		}
		if !s.Frequency.Valid() {
			return fmt.Errorf("%w: symptom %d has unknown frequency %q", ErrInvalidInput, i, s.Frequency)
		}
	}
	return nil
}
