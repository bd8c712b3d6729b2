package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/internal/monitoring"
	"github.com/clinisights/dx-core/internal/redflag"
	"github.com/clinisights/dx-core/pkg/logger"
)

// AnalyzeOptions tunes a single analysis request.
type AnalyzeOptions struct {
	// TopK caps the differential length. Default 10.
	TopK int
	// IncludeRare enables the rare-disease sub-query. Default true.
	IncludeRare bool
	// DeadlineMS is the overall request deadline. Default 5000.
	DeadlineMS int
}

// DefaultAnalyzeOptions returns the documented defaults.
func DefaultAnalyzeOptions() AnalyzeOptions {
	return AnalyzeOptions{TopK: 10, IncludeRare: true, DeadlineMS: 5000}
}

func (o *AnalyzeOptions) normalize(finalLimit int) {
	if o.TopK <= 0 || o.TopK > finalLimit {
		o.TopK = finalLimit
	}
	if o.DeadlineMS <= 0 {
		o.DeadlineMS = 5000
	}
}

// Service orchestrates red-flag screening, retrieval, scoring and triage
// for one case. All referenced resources (index client, encoder, cache)
// are shared, long-lived and read-only from the request's point of view.
type Service struct {
	detector   *redflag.Detector
	retriever  *Retriever
	scorer     *Scorer
	triage     *Triage
	finalLimit int
	logger     logger.Logger
}

func NewService(
	detector *redflag.Detector,
	retriever *Retriever,
	scorer *Scorer,
	triage *Triage,
	finalLimit int,
	log logger.Logger,
) *Service {
	if finalLimit <= 0 {
		finalLimit = 10
	}
	return &Service{
		detector:   detector,
		retriever:  retriever,
		scorer:     scorer,
		triage:     triage,
		finalLimit: finalLimit,
		logger:     log,
	}
}

// Analyze runs one case end to end and assembles the DiagnosticResult.
// Degraded and partial outcomes are preferred over failure whenever a
// candidate with usable confidence exists.
func (s *Service) Analyze(ctx context.Context, c *models.PatientCase, opts AnalyzeOptions) (*models.DiagnosticResult, error) {
	start := time.Now()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts.normalize(s.finalLimit)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(opts.DeadlineMS)*time.Millisecond)
	defer cancel()

	// Red-flag screening runs alongside retrieval; it touches no I/O.
	flagCh := make(chan redflag.Match, 1)
	go func() {
		flagCh <- s.detector.Detect(c)
	}()

	outcome, retrieveErr := s.retriever.Retrieve(ctx, c, opts.IncludeRare)
	flags := <-flagCh
	if len(flags.Phrases) > 0 {
		monitoring.RecordRedFlagCase()
	}

	if retrieveErr != nil {
		return nil, s.classifyFailure(ctx, outcome, retrieveErr)
	}

	diagnoses := s.scorer.Score(c, outcome.Candidates, opts.TopK)

	// A degraded or partial run only stands when it produced at least one
	// candidate of usable confidence; otherwise surface the failure.
	if (outcome.EncoderFailed || len(outcome.FailedQueries) > 0) && !hasUsableCandidate(diagnoses) {
		if outcome.EncoderFailed {
			return nil, fmt.Errorf("%w: no usable differential from cached vectors", models.ErrServiceUnavailable)
		}
		if len(diagnoses) == 0 {
			return nil, fmt.Errorf("%w: retrieval incomplete and no differential assembled", models.ErrServiceUnavailable)
		}
	}

	cls := s.triage.Classify(diagnoses, flags.Phrases)

	result := &models.DiagnosticResult{
		CaseID:                 c.CaseID,
		DifferentialDiagnoses:  diagnoses,
		ReviewTier:             cls.Tier,
		RedFlagsDetected:       flags.Phrases,
		RequiresEmergencyCare:  cls.RequiresEmergencyCare,
		RecommendedTests:       cls.RecommendedTests,
		RecommendedSpecialists: cls.RecommendedSpecialists,
	}
	if len(diagnoses) > 0 {
		result.PrimaryDiagnosis = diagnoses[0]
		result.OverallConfidence = diagnoses[0].Confidence
	}
	result.ReasoningSummary = s.reasoningSummary(result, outcome)
	result.ProcessingTimeMS = time.Since(start).Milliseconds()

	monitoring.RecordAnalysis(time.Since(start), string(result.ReviewTier))
	s.logger.Info("Analysis completed",
		"case_id", c.CaseID,
		"differential", len(diagnoses),
		"tier", result.ReviewTier,
		"confidence", result.OverallConfidence,
		"red_flags", len(flags.Phrases),
		"partial", outcome.Partial(),
		"elapsed_ms", result.ProcessingTimeMS)

	return result, nil
}

// classifyFailure maps a total retrieval failure to the error taxonomy.
func (s *Service) classifyFailure(ctx context.Context, outcome *RetrievalOutcome, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	if outcome != nil && outcome.EncoderFailed {
		return fmt.Errorf("%w: encoder down and no cached vectors", models.ErrServiceUnavailable)
	}
	return fmt.Errorf("%w: %v", models.ErrServiceUnavailable, err)
}

func hasUsableCandidate(diagnoses []*models.ScoredCandidate) bool {
	for _, d := range diagnoses {
		if d.Confidence >= emergencyConfidenceFloor {
			return true
		}
	}
	return false
}

// reasoningSummary renders the short template carried on every result.
func (s *Service) reasoningSummary(r *models.DiagnosticResult, outcome *RetrievalOutcome) string {
	var b strings.Builder
	if r.PrimaryDiagnosis != nil {
		alternatives := len(r.DifferentialDiagnoses) - 1
		fmt.Fprintf(&b, "Primary differential is %s (confidence %.0f%%); %d alternatives considered.",
			r.PrimaryDiagnosis.Condition.Name, r.PrimaryDiagnosis.Confidence*100, alternatives)
	} else {
		b.WriteString("No differential could be assembled.")
	}
	if len(r.RedFlagsDetected) > 0 {
		fmt.Fprintf(&b, " Red flags detected: %s.", strings.Join(r.RedFlagsDetected, ", "))
	} else {
		b.WriteString(" No red flags detected.")
	}
	if outcome.Partial() {
		fmt.Fprintf(&b, " partial=true (failed sub-queries: %s).", strings.Join(outcome.FailedQueries, ", "))
	}
	if outcome.EncoderFailed {
		b.WriteString(" degraded=true (cached vectors only).")
	}
	return b.String()
}
