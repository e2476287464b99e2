package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

var (
	metaBucket    = []byte("index_meta")
	entriesBucket = []byte("index_entries")
	metaKey       = []byte("meta")
)

// ErrCacheMiss means there is no usable cache for the current corpus and model.
var ErrCacheMiss = errors.New("index cache miss")

// CacheMeta describes what an index cache file was built from.
type CacheMeta struct {
	Fingerprint string    `json:"fingerprint"`
	Model       string    `json:"model"`
	Dimension   int       `json:"dimension"`
	Entries     int       `json:"entries"`
	CreatedAt   time.Time `json:"created_at"`
}

// BoltCache persists embedding vectors in a single bbolt file. Writes go to a
// temporary file in the same directory which is then renamed over the old one,
// so readers see either the previous cache or the complete new one.
type BoltCache struct {
	path string
}

// NewBoltCache returns a cache stored at path.
func NewBoltCache(path string) *BoltCache {
	return &BoltCache{path: path}
}

// Path returns the cache file location.
func (c *BoltCache) Path() string { return c.path }

// Meta reads only the metadata record.
func (c *BoltCache) Meta() (*CacheMeta, error) {
	var meta *CacheMeta
	err := c.view(func(tx *bolt.Tx) error {
		var err error
		meta, err = readMeta(tx)
		return err
	})
	return meta, err
}

// Load returns the cached entries in build order. It returns ErrCacheMiss when
// the file is absent or was built from another corpus or model, and a
// CACHE_CORRUPT error when the file cannot be trusted.
func (c *BoltCache) Load(fingerprint, model string, dim int) ([]entities.EmbeddingEntry, *CacheMeta, error) {
	var (
		meta    *CacheMeta
		entries []entities.EmbeddingEntry
	)
	err := c.view(func(tx *bolt.Tx) error {
		var err error
		if meta, err = readMeta(tx); err != nil {
			return err
		}
		if meta.Fingerprint != fingerprint || meta.Model != model {
			return ErrCacheMiss
		}
		if meta.Dimension != dim {
			return fmt.Errorf("cached dimension %d does not match model dimension %d", meta.Dimension, dim)
		}

		b := tx.Bucket(entriesBucket)
		if b == nil {
			return errors.New("entries bucket missing")
		}
		entries = make([]entities.EmbeddingEntry, 0, meta.Entries)
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 || binary.BigEndian.Uint64(k) != uint64(len(entries)) {
				return fmt.Errorf("unexpected entry key %x", k)
			}
			e, err := decodeEntry(v, dim)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	if len(entries) != meta.Entries {
		return nil, nil, apperrors.NewCacheCorruptError(c.path, fmt.Errorf("meta lists %d entries, found %d", meta.Entries, len(entries)))
	}
	return entries, meta, nil
}

// Save atomically replaces the cache with entries.
func (c *BoltCache) Save(meta CacheMeta, entries []entities.EmbeddingEntry) (err error) {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	db, err := bolt.Open(tmpPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open temporary cache: %w", err)
	}

	meta.Entries = len(entries)
	err = db.Update(func(tx *bolt.Tx) error {
		mb, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		enc, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := mb.Put(metaKey, enc); err != nil {
			return err
		}

		eb, err := tx.CreateBucketIfNotExists(entriesBucket)
		if err != nil {
			return err
		}
		eb.FillPercent = 1.0
		key := make([]byte, 8)
		for i, e := range entries {
			if len(e.Vector) != meta.Dimension {
				return fmt.Errorf("entry %s has dimension %d, want %d", e.RecordID, len(e.Vector), meta.Dimension)
			}
			binary.BigEndian.PutUint64(key, uint64(i))
			if err := eb.Put(key, encodeEntry(e)); err != nil {
				return err
			}
		}
		return nil
	})
	if closeErr := db.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write index cache: %w", err)
	}

	if err = os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("failed to move index cache into place: %w", err)
	}
	return nil
}

func (c *BoltCache) view(fn func(tx *bolt.Tx) error) (err error) {
	if _, statErr := os.Stat(c.path); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return ErrCacheMiss
		}
		return apperrors.NewCacheCorruptError(c.path, statErr)
	}

	// bbolt panics on some page-level damage instead of returning an error
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewCacheCorruptError(c.path, fmt.Errorf("panic reading cache: %v", r))
		}
	}()

	db, err := bolt.Open(c.path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return apperrors.NewCacheCorruptError(c.path, err)
	}
	defer func() { _ = db.Close() }()

	err = db.View(fn)
	if err != nil && !errors.Is(err, ErrCacheMiss) && !apperrors.IsType(err, apperrors.ErrorTypeCacheCorrupt) {
		return apperrors.NewCacheCorruptError(c.path, err)
	}
	return err
}

func readMeta(tx *bolt.Tx) (*CacheMeta, error) {
	b := tx.Bucket(metaBucket)
	if b == nil {
		return nil, errors.New("meta bucket missing")
	}
	raw := b.Get(metaKey)
	if raw == nil {
		return nil, errors.New("meta record missing")
	}
	var meta CacheMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("invalid meta record: %w", err)
	}
	return &meta, nil
}

// entry layout: uint16 id length | id bytes | dim little-endian float32
func encodeEntry(e entities.EmbeddingEntry) []byte {
	buf := make([]byte, 2+len(e.RecordID)+4*len(e.Vector))
	binary.LittleEndian.PutUint16(buf, uint16(len(e.RecordID)))
	n := copy(buf[2:], e.RecordID) + 2
	for _, v := range e.Vector {
		binary.LittleEndian.PutUint32(buf[n:], math.Float32bits(v))
		n += 4
	}
	return buf
}

func decodeEntry(raw []byte, dim int) (entities.EmbeddingEntry, error) {
	if len(raw) < 2 {
		return entities.EmbeddingEntry{}, errors.New("truncated entry")
	}
	idLen := int(binary.LittleEndian.Uint16(raw))
	if len(raw) != 2+idLen+4*dim {
		return entities.EmbeddingEntry{}, fmt.Errorf("entry has %d bytes, want %d", len(raw), 2+idLen+4*dim)
	}
	e := entities.EmbeddingEntry{
		RecordID: string(raw[2 : 2+idLen]),
		Vector:   make([]float32, dim),
	}
	off := 2 + idLen
	for i := range e.Vector {
		e.Vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
	}
	return e, nil
}
