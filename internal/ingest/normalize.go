package ingest

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/clinisights/dx-core/internal/models"
)

// KeywordSet gates which ontology rows are worth indexing. The lists
// are configuration assets, loaded from YAML rather than hard-coded.
type KeywordSet struct {
	// Observable marks phenotype labels a patient can actually report.
	Observable []string `yaml:"observable_keywords"`
	// Symptom marks ICD-10 descriptions that describe a presentation
	// rather than an administrative or procedural entry.
	Symptom []string `yaml:"symptom_keywords"`
}

// LoadKeywords reads the keyword asset from disk.
func LoadKeywords(path string) (*KeywordSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword asset: %w", err)
	}
	var ks KeywordSet
	if err := yaml.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("parse keyword asset %s: %w", path, err)
	}
	if len(ks.Observable) == 0 || len(ks.Symptom) == 0 {
		return nil, fmt.Errorf("%w: keyword asset %s must define observable_keywords and symptom_keywords",
			models.ErrInvalidInput, path)
	}
	return &ks, nil
}

func containsAnyKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// normalizeName is the merge key across sources: lowercase, strip
// non-alphanumerics, collapse runs of spaces.
func normalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// unionStrings appends items from extra that are not already present,
// comparing on the canonicalised form and preserving first-seen order.
func unionStrings(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[canonicalKey(s)] = struct{}{}
	}
	out := base
	for _, s := range extra {
		k := canonicalKey(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func canonicalKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
