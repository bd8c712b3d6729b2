package diagnosis

import (
	"regexp"
	"strings"
	"sync"
)

// phrasePatterns caches compiled word-boundary patterns; symptom strings
// repeat heavily across conditions.
var phrasePatterns sync.Map // string -> *regexp.Regexp

// containsPhrase reports whether phrase occurs in text as a
// case-insensitive substring bounded on word edges. Both sides are
// lowercased before matching.
func containsPhrase(text, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" || text == "" {
		return false
	}
	var re *regexp.Regexp
	if v, ok := phrasePatterns.Load(phrase); ok {
		re = v.(*regexp.Regexp)
	} else {
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
		phrasePatterns.Store(phrase, re)
	}
	return re.MatchString(strings.ToLower(text))
}

// dedupePreserveOrder drops repeated strings keeping first-seen order.
func dedupePreserveOrder(in []string, cap int) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if cap > 0 && len(out) == cap {
			break
		}
	}
	return out
}
