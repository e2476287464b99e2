package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashingEmbedder_DeterministicAndNormalised(t *testing.T) {
	e, err := NewHashingEmbedder(384)
	require.NoError(t, err)
	assert.Equal(t, "hash-384-v1", e.Model())

	vecs, err := e.Embed(context.Background(), []string{"Fever and chills after travel", "Fever and chills after travel"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 384)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 1.0, math.Sqrt(dot(vecs[0], vecs[0])), 1e-5)
}

func TestHashingEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e, err := NewHashingEmbedder(384)
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{
		"malaria fever chills",
		"Diagnosis: Malaria. Symptoms: fever, chills",
		"Diagnosis: Asthma. Symptoms: wheeze, cough",
	})
	require.NoError(t, err)

	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestHashingEmbedder_StopwordsOnlyYieldsZeroVector(t *testing.T) {
	e, err := NewHashingEmbedder(16)
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"what could it be"})
	require.NoError(t, err)
	assert.Zero(t, dot(vecs[0], vecs[0]))
}

func TestHashingEmbedder_InflectionsShareFeatures(t *testing.T) {
	e, err := NewHashingEmbedder(384)
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{
		"I've been coughing and vomited twice",
		"cough, vomit",
		"Coughs. Vomits.",
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, dot(vecs[1], vecs[2]), 1e-5, "plural forms reduce to the same stems")
	assert.Greater(t, dot(vecs[0], vecs[1]), 0.6)
}

func TestHashingEmbedder_BigramsStayInsideSegments(t *testing.T) {
	e, err := NewHashingEmbedder(384)
	require.NoError(t, err)

	got := e.features("Night sweats; fever")
	assert.Equal(t, 1, got["night sweat"])
	assert.Equal(t, 1, got["fever"])
	_, crossed := got["sweat fever"]
	assert.False(t, crossed, "punctuation ends a bigram")

	vecs, err := e.Embed(context.Background(), []string{"night sweats", "sweats night"})
	require.NoError(t, err)
	assert.Less(t, dot(vecs[0], vecs[1]), 0.99, "word order matters through bigrams")
}

func TestHashingEmbedder_QuestionBoilerplateIgnored(t *testing.T) {
	e, err := NewHashingEmbedder(384)
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"What are the symptoms of malaria?", "malaria"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dot(vecs[0], vecs[1]), 1e-5)
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"coughing":  "cough",
		"feverish":  "fever",
		"vomited":   "vomit",
		"chills":    "chill",
		"sweats":    "sweat",
		"diagnosis": "diagnosis",
		"illness":   "illness",
		"typhus":    "typhus",
		"rash":      "rash",
		"sing":      "sing",
	}
	for in, want := range tests {
		assert.Equal(t, want, stem(in), in)
	}
}

func TestHashingEmbedder_Errors(t *testing.T) {
	_, err := NewHashingEmbedder(0)
	assert.Error(t, err)

	e, err := NewHashingEmbedder(8)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Embed(ctx, []string{"fever"})
	assert.ErrorIs(t, err, context.Canceled)
}
