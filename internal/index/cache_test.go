package index

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

func TestBoltCache_SaveLoadRoundTrip(t *testing.T) {
	cache := NewBoltCache(filepath.Join(t.TempDir(), "nested", "index.bolt"))
	meta := CacheMeta{Fingerprint: "fp", Model: "hashing-3-v1", Dimension: 3, CreatedAt: time.Now().UTC()}

	require.NoError(t, cache.Save(meta, unitEntries()))

	entries, got, err := cache.Load("fp", "hashing-3-v1", 3)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Entries)
	require.Len(t, entries, 4)
	for i, e := range unitEntries() {
		assert.Equal(t, e.RecordID, entries[i].RecordID)
		assert.Equal(t, e.Vector, entries[i].Vector)
	}

	files, err := os.ReadDir(filepath.Dir(cache.Path()))
	require.NoError(t, err)
	assert.Len(t, files, 1, "temporary file is renamed into place")
}

func TestBoltCache_MissWhenAbsentOrStale(t *testing.T) {
	cache := NewBoltCache(filepath.Join(t.TempDir(), "index.bolt"))

	_, _, err := cache.Load("fp", "m", 3)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Save(CacheMeta{Fingerprint: "fp", Model: "m", Dimension: 3}, unitEntries()))

	_, _, err = cache.Load("other", "m", 3)
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, _, err = cache.Load("fp", "other-model", 3)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestBoltCache_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bolt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not a bolt file ", 1024)), 0o600))

	_, _, err := NewBoltCache(path).Load("fp", "m", 3)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCacheCorrupt))
}

func TestBoltCache_DimensionMismatchIsCorrupt(t *testing.T) {
	cache := NewBoltCache(filepath.Join(t.TempDir(), "index.bolt"))
	require.NoError(t, cache.Save(CacheMeta{Fingerprint: "fp", Model: "m", Dimension: 3}, unitEntries()))

	_, _, err := cache.Load("fp", "m", 4)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCacheCorrupt))
}

func TestBoltCache_SaveRejectsWrongDimension(t *testing.T) {
	cache := NewBoltCache(filepath.Join(t.TempDir(), "index.bolt"))

	err := cache.Save(CacheMeta{Fingerprint: "fp", Model: "m", Dimension: 2}, unitEntries())
	require.Error(t, err)

	_, statErr := os.Stat(cache.Path())
	assert.True(t, os.IsNotExist(statErr))
	files, _ := os.ReadDir(filepath.Dir(cache.Path()))
	assert.Empty(t, files, "temporary file is removed on failure")
}

func TestBoltCache_Meta(t *testing.T) {
	cache := NewBoltCache(filepath.Join(t.TempDir(), "index.bolt"))
	require.NoError(t, cache.Save(CacheMeta{Fingerprint: "fp", Model: "m", Dimension: 3}, unitEntries()))

	meta, err := cache.Meta()
	require.NoError(t, err)
	assert.Equal(t, "fp", meta.Fingerprint)
	assert.Equal(t, 4, meta.Entries)
}
