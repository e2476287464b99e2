package retrieval

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

// Gate is a keyword heuristic deciding whether a message should be grounded in
// the case corpus. It is built once and safe for concurrent use.
type Gate struct {
	pattern    *regexp.Regexp
	categories map[string]string
}

// NewGate compiles the vocabulary into a single case-insensitive pattern.
// Terms match on word boundaries, multi-word terms tolerate any whitespace
// between words, and a common inflection ("s", "es", "d", "ed", "ing", "ish")
// is accepted, so "coughing", "vomited" and "feverish" reach their base term.
func NewGate(v *Vocabulary) (*Gate, error) {
	if v == nil {
		return nil, errors.New("vocabulary is required")
	}
	terms := v.Terms()
	if len(terms) == 0 {
		return nil, errors.New("vocabulary has no terms")
	}

	keys := make([]string, 0, len(terms))
	for t := range terms {
		keys = append(keys, t)
	}
	// longest first so "chest pain" wins over "pain"
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	alts := make([]string, len(keys))
	for i, k := range keys {
		words := strings.Fields(k)
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		alts[i] = strings.Join(words, `\s+`)
	}

	pattern, err := regexp.Compile(`(?i)\b(` + strings.Join(alts, "|") + `)(?:e?s|e?d|ing|ish)?\b`)
	if err != nil {
		return nil, err
	}
	return &Gate{pattern: pattern, categories: terms}, nil
}

// ShouldRetrieve reports whether the message mentions any vocabulary term.
// Empty and whitespace-only messages never trigger retrieval.
func (g *Gate) ShouldRetrieve(message string) bool {
	if strings.TrimSpace(message) == "" {
		return false
	}
	return g.pattern.MatchString(message)
}

// Evaluate returns the decision with the matched terms and their categories.
func (g *Gate) Evaluate(message string) entities.GateDecision {
	terms := g.MedicalTerms(message)
	if len(terms) == 0 {
		return entities.GateDecision{}
	}

	seen := make(map[string]bool)
	var cats []string
	for _, t := range terms {
		if c := g.categories[t]; c != "" && !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)
	return entities.GateDecision{Triggered: true, Terms: terms, Categories: cats}
}

// MedicalTerms returns the distinct vocabulary terms in text, in order of first mention.
func (g *Gate) MedicalTerms(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	matches := g.pattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		t := strings.Join(strings.Fields(strings.ToLower(m[1])), " ")
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
