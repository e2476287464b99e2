package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{Provider: "hashing", Dimension: 384})
	require.NoError(t, err)
	assert.IsType(t, &HashingEmbedder{}, p)

	p, err = NewProvider(config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text", Dimension: 768})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", p.Model())
	assert.Equal(t, 768, p.Dimension())

	_, err = NewProvider(config.EmbeddingConfig{Provider: "bert", Dimension: 384})
	assert.Error(t, err)
}
