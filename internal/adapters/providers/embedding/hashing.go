package embedding

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const (
	// hashProbes is the number of buckets each feature is spread over, so one
	// unlucky collision only carries part of a feature's weight.
	hashProbes   = 2
	bigramWeight = 0.5
)

// HashingEmbedder is a local, stateless embedding model. Unigram and bigram
// features are hashed into a fixed number of buckets with a sign bit, weighted
// by sublinear term frequency and L2-normalised, so the same text always yields
// the same vector and no fitted vocabulary has to be persisted next to the index.
//
// Bigrams never cross punctuation, and tokens are reduced with a light suffix
// stemmer so "coughing", "coughs" and "cough" share a feature.
type HashingEmbedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	segmentSplit *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHashingEmbedder creates a hashing embedder producing vectors of the given dimension.
func NewHashingEmbedder(dimension int) (*HashingEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("hashing embedder dimension must be positive, got %d", dimension)
	}
	return &HashingEmbedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		segmentSplit: regexp.MustCompile(`[.,;:!?\n]+`),
		stopwords:    defaultStopwords(),
	}, nil
}

// Model returns the identifier stored in the index cache.
func (e *HashingEmbedder) Model() string {
	return fmt.Sprintf("hash-%d-v1", e.dimension)
}

// Dimension returns the vector length.
func (e *HashingEmbedder) Dimension() int { return e.dimension }

// Embed vectorises every text. It never calls out and only fails on a cancelled context.
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashingEmbedder) embedOne(text string) []float32 {
	acc := make([]float64, e.dimension)
	scale := 1 / math.Sqrt(hashProbes)
	counts := e.features(text)
	features := make([]string, 0, len(counts))
	for f := range counts {
		features = append(features, f)
	}
	// fixed summation order keeps vectors bit-identical between runs
	slices.Sort(features)

	for _, feature := range features {
		weight := 1 + math.Log(float64(counts[feature]))
		if strings.Contains(feature, " ") {
			weight *= bigramWeight
		}
		for p := 0; p < hashProbes; p++ {
			key := feature
			if p > 0 {
				key = strconv.Itoa(p) + ":" + feature
			}
			h := fnv.New64a()
			_, _ = h.Write([]byte(key))
			sum := h.Sum64()

			w := weight * scale
			if sum>>63 == 1 {
				w = -w
			}
			acc[sum%uint64(e.dimension)] += w
		}
	}

	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// features counts unigrams and in-segment bigrams.
func (e *HashingEmbedder) features(text string) map[string]int {
	counts := make(map[string]int)
	for _, segment := range e.segmentSplit.Split(strings.ToLower(text), -1) {
		tokens := e.tokenize(segment)
		for i, tok := range tokens {
			counts[tok]++
			if i > 0 {
				counts[tokens[i-1]+" "+tok]++
			}
		}
	}
	return counts
}

func (e *HashingEmbedder) tokenize(segment string) []string {
	var out []string
	for _, t := range e.tokenPattern.FindAllString(segment, -1) {
		if e.isStopword(t) {
			continue
		}
		t = stem(t)
		if e.isStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (e *HashingEmbedder) isStopword(t string) bool {
	_, ok := e.stopwords[t]
	return ok
}

// stem strips the commonest English inflections. It only has to be consistent
// between documents and queries, not linguistically correct.
func stem(t string) string {
	switch {
	case len(t) > 6 && strings.HasSuffix(t, "ish"):
		return t[:len(t)-3]
	case len(t) > 5 && strings.HasSuffix(t, "ing"):
		return t[:len(t)-3]
	case len(t) > 4 && strings.HasSuffix(t, "ed"):
		return t[:len(t)-2]
	case len(t) > 3 && strings.HasSuffix(t, "s") &&
		!strings.HasSuffix(t, "ss") && !strings.HasSuffix(t, "us") && !strings.HasSuffix(t, "is"):
		return t[:len(t)-1]
	}
	return t
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with",
		"as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up",
		"down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through",
		"during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will",
		"just", "don", "should", "now", "i", "me", "my", "we", "our", "you", "your", "he", "she", "his", "her",
		"they", "them", "do", "does", "did", "have", "has", "had", "what", "which", "who", "how", "could", "would",
		"there", "some", "any", "all", "no", "not", "i've", "i'm", "i'd", "it's", "ive", "im",
		// question boilerplate that never appears in a case record
		"symptom", "sign", "cause", "treatment", "treat", "feel", "having", "got", "get",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
