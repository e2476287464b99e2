// Package retrieval decides when to consult the case corpus and turns search
// results into a prompt-ready context block.
package retrieval

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Vocabulary maps medical terms to their category.
type Vocabulary struct {
	Categories map[string][]string `yaml:"categories"`
}

// DefaultVocabulary returns the vocabulary compiled into the binary.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabulary)
}

// LoadVocabulary reads a YAML vocabulary file. An empty path selects the default.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates YAML vocabulary data.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if len(v.Terms()) == 0 {
		return nil, fmt.Errorf("vocabulary has no terms")
	}
	return &v, nil
}

// Terms flattens the vocabulary into term -> category. Terms are lower-cased
// and whitespace-normalised; when a term is listed twice the first category in
// sorted order wins.
func (v *Vocabulary) Terms() map[string]string {
	cats := make([]string, 0, len(v.Categories))
	for c := range v.Categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	out := make(map[string]string)
	for _, c := range cats {
		for _, term := range v.Categories[c] {
			t := strings.Join(strings.Fields(strings.ToLower(term)), " ")
			if t == "" {
				continue
			}
			if _, ok := out[t]; !ok {
				out[t] = c
			}
		}
	}
	return out
}
