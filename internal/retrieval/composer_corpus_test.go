package retrieval

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/adapters/providers/embedding"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/index"
)

const bundledCorpus = "../../data/cases.csv"

// newCorpusComposer builds the bundled corpus with the default local model and
// default thresholds, the way the service starts without any configuration.
func newCorpusComposer(t *testing.T) *Composer {
	t.Helper()
	emb, err := embedding.NewHashingEmbedder(384)
	require.NoError(t, err)

	b := index.NewBuilder(index.BuilderConfig{CorpusPath: bundledCorpus},
		index.NewBoltCache(filepath.Join(t.TempDir(), "index.bolt")), emb)
	snap, err := b.Build(context.Background(), false)
	require.NoError(t, err)

	return NewComposer(staticSource{snap: snap}, emb, nil, nil,
		ComposerConfig{TopK: DefaultTopK, Threshold: DefaultThreshold})
}

func TestCompose_BundledCorpusMalariaQuestion(t *testing.T) {
	c := newCorpusComposer(t)

	rc, err := c.Compose(context.Background(), "What are the symptoms of malaria?")
	require.NoError(t, err)
	require.NotNil(t, rc, "malaria question must surface context at the default threshold")

	assert.Contains(t, rc.FormattedBlock, "Malaria Cases:")
	require.NotEmpty(t, rc.Matches)
	for _, m := range rc.Matches {
		assert.Equal(t, "Malaria", m.Diagnosis)
		assert.GreaterOrEqual(t, m.Score, DefaultThreshold)
	}
	assert.Equal(t, 1, strings.Count(rc.FormattedBlock, " Cases:"))
}

func TestCompose_BundledCorpusTopDiagnosis(t *testing.T) {
	c := newCorpusComposer(t)

	tests := []struct {
		query string
		want  string
	}{
		{query: "I have a fever and chills", want: "Malaria"},
		{query: "I've been coughing", want: "Asthma"},
		{query: "wheezing and shortness of breath", want: "Asthma"},
		{query: "diarrhoea and vomiting", want: "Cholera"},
		{query: "is it tuberculosis? I have night sweats", want: "Tuberculosis"},
		{query: "I feel feverish", want: "Typhoid"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rc, err := c.Compose(context.Background(), tt.query)
			require.NoError(t, err)
			require.NotNil(t, rc)
			assert.Equal(t, tt.want, rc.Matches[0].Diagnosis)
			assert.Contains(t, rc.FormattedBlock, tt.want+" Cases:")
		})
	}
}

func TestCompose_BundledCorpusSmallTalkHasNoContext(t *testing.T) {
	c := newCorpusComposer(t)

	for _, q := range []string{"Hi there", "How is the weather today?"} {
		rc, err := c.Compose(context.Background(), q)
		require.NoError(t, err)
		assert.Nil(t, rc, q)
	}
}
