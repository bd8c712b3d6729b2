// Package redflag screens patient language for phrases associated with
// life-threatening presentations before any retrieval happens. It never
// produces a diagnosis, only a flag.
package redflag

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/clinisights/dx-core/internal/models"
	"github.com/clinisights/dx-core/pkg/logger"
)

// Severity tags a lexicon entry.
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityEmergency Severity = "emergency"
)

// LexiconEntry is one editable red-flag phrase.
type LexiconEntry struct {
	Phrase   string   `yaml:"phrase"`
	Severity Severity `yaml:"severity"`
}

type lexiconFile struct {
	RedFlags []LexiconEntry `yaml:"red_flags"`
}

// Match is the detector outcome for one case.
type Match struct {
	Phrases     []string
	MaxSeverity Severity
}

type compiledEntry struct {
	phrase   string
	severity Severity
	pattern  *regexp.Regexp
}

// Detector matches case text against the lexicon. Safe for concurrent
// use; Reload swaps the compiled lexicon atomically.
type Detector struct {
	mu      sync.RWMutex
	entries []compiledEntry
	logger  logger.Logger
}

// NewDetector compiles the given lexicon entries.
func NewDetector(entries []LexiconEntry, log logger.Logger) (*Detector, error) {
	d := &Detector{logger: log}
	if err := d.compile(entries); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadLexicon reads a lexicon YAML file.
func LoadLexicon(path string) ([]LexiconEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read red-flag lexicon: %w", err)
	}
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse red-flag lexicon: %w", err)
	}
	if len(f.RedFlags) == 0 {
		return nil, fmt.Errorf("red-flag lexicon %s contains no entries", path)
	}
	return f.RedFlags, nil
}

// NewDetectorFromFile loads and compiles the lexicon at path.
func NewDetectorFromFile(path string, log logger.Logger) (*Detector, error) {
	entries, err := LoadLexicon(path)
	if err != nil {
		return nil, err
	}
	return NewDetector(entries, log)
}

func (d *Detector) compile(entries []LexiconEntry) error {
	compiled := make([]compiledEntry, 0, len(entries))
	for _, e := range entries {
		phrase := strings.ToLower(strings.TrimSpace(e.Phrase))
		if phrase == "" {
			continue
		}
		sev := e.Severity
		if sev != SeverityEmergency {
			sev = SeverityWarning
		}
		// Case-insensitive substring bounded on word edges.
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
		if err != nil {
			return fmt.Errorf("failed to compile red-flag phrase %q: %w", e.Phrase, err)
		}
		compiled = append(compiled, compiledEntry{phrase: phrase, severity: sev, pattern: re})
	}
	if len(compiled) == 0 {
		return fmt.Errorf("red-flag lexicon compiled to zero entries")
	}
	d.mu.Lock()
	d.entries = compiled
	d.mu.Unlock()
	return nil
}

// Reload swaps in a fresh lexicon. The previous lexicon stays active if
// the new one fails to compile.
func (d *Detector) Reload(entries []LexiconEntry) error {
	return d.compile(entries)
}

// Detect scans the chief complaint plus every symptom description and
// returns the matched phrase set with the maximum severity seen.
func (d *Detector) Detect(c *models.PatientCase) Match {
	var b strings.Builder
	b.WriteString(c.ChiefComplaint)
	for _, s := range c.Symptoms {
		b.WriteString(" ")
		b.WriteString(s.Description)
	}
	text := strings.ToLower(b.String())

	d.mu.RLock()
	defer d.mu.RUnlock()

	m := Match{}
	seen := make(map[string]bool)
	for _, e := range d.entries {
		if seen[e.phrase] || !e.pattern.MatchString(text) {
			continue
		}
		seen[e.phrase] = true
		m.Phrases = append(m.Phrases, e.phrase)
		if e.severity == SeverityEmergency || m.MaxSeverity == "" {
			m.MaxSeverity = e.severity
		}
	}
	return m
}
