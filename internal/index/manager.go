package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

// Status is a point-in-time view of the live index.
type Status struct {
	Ready       bool      `json:"ready"`
	Records     int       `json:"records"`
	Model       string    `json:"model,omitempty"`
	Dimension   int       `json:"dimension,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	BuiltAt     time.Time `json:"built_at,omitempty"`
	FromCache   bool      `json:"from_cache"`
	Rebuilding  bool      `json:"rebuilding"`
	LastError   string    `json:"last_error,omitempty"`
}

// Manager owns the live snapshot. Readers get the current generation without
// locking; a rebuild runs to completion before the pointer is swapped, so a
// search never observes a half-built index.
type Manager struct {
	builder *Builder
	bus     providers.EventBus
	origin  string

	current    atomic.Pointer[Snapshot]
	group      singleflight.Group
	rebuilding atomic.Bool

	mu        sync.Mutex
	lastError string
}

// NewManager creates a manager. bus may be nil when running a single replica.
func NewManager(builder *Builder, bus providers.EventBus) *Manager {
	return &Manager{
		builder: builder,
		bus:     bus,
		origin:  uuid.New().String(),
	}
}

// Start performs the initial build. It fails only when no index can be produced,
// e.g. the corpus is missing.
func (m *Manager) Start(ctx context.Context) error {
	_, err := m.build(ctx, false, false)
	return err
}

// Current returns the live snapshot, or nil before Start succeeded.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// Embedder returns the model the live index was built with.
func (m *Manager) Embedder() providers.EmbeddingProvider {
	return m.builder.Embedder()
}

// Rebuild re-reads the corpus and swaps in a new snapshot. Concurrent calls
// share one build. The build is detached from ctx cancellation.
func (m *Manager) Rebuild(ctx context.Context, force bool) (*Snapshot, error) {
	return m.build(context.WithoutCancel(ctx), force, true)
}

// Reload picks up a cache written by another replica.
func (m *Manager) Reload(ctx context.Context) (*Snapshot, error) {
	return m.build(context.WithoutCancel(ctx), false, false)
}

func (m *Manager) build(ctx context.Context, force, announce bool) (*Snapshot, error) {
	snap, shared, err := m.buildShared(ctx, force, announce)
	// a forced request that joined a cache-backed build still needs its re-embed
	if err == nil && force && shared && snap.FromCache {
		snap, _, err = m.buildShared(ctx, force, announce)
	}
	return snap, err
}

// buildShared runs one build at a time. Every caller shares the same key, so
// two builds never race to store their snapshots out of order.
func (m *Manager) buildShared(ctx context.Context, force, announce bool) (*Snapshot, bool, error) {
	v, err, shared := m.group.Do("build", func() (any, error) {
		m.rebuilding.Store(true)
		defer m.rebuilding.Store(false)

		snap, err := m.builder.Build(ctx, force)
		if err != nil {
			m.setLastError(err)
			if announce {
				m.publish(ctx, &entities.IndexEvent{Type: entities.IndexEventFailed, Error: err.Error()})
			}
			return nil, err
		}

		m.current.Store(snap)
		m.setLastError(nil)
		if announce {
			m.publish(ctx, &entities.IndexEvent{
				Type:        entities.IndexEventRebuilt,
				Fingerprint: snap.Fingerprint,
				Model:       snap.Model,
				Entries:     snap.Index.Len(),
			})
		}
		return snap, nil
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*Snapshot), shared, nil
}

// Listen reloads the index whenever another replica announces a rebuild. It
// blocks until ctx is done.
func (m *Manager) Listen(ctx context.Context) error {
	if m.bus == nil {
		return nil
	}
	events, err := m.bus.Subscribe(ctx, providers.EventChannelIndexUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to index updates: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Origin == m.origin || ev.Type != entities.IndexEventRebuilt {
				continue
			}
			if cur := m.Current(); cur != nil && cur.Fingerprint == ev.Fingerprint && cur.Model == ev.Model {
				continue
			}
			log.Info().Str("origin", ev.Origin).Str("fingerprint", ev.Fingerprint).Msg("Index rebuilt by peer, reloading")
			if _, err := m.Reload(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to reload index after peer rebuild")
			}
		}
	}
}

// Status reports the live index state.
func (m *Manager) Status() Status {
	st := Status{Rebuilding: m.rebuilding.Load()}
	m.mu.Lock()
	st.LastError = m.lastError
	m.mu.Unlock()

	if snap := m.Current(); snap != nil {
		st.Ready = true
		st.Records = snap.Index.Len()
		st.Model = snap.Model
		st.Dimension = snap.Index.Dimension()
		st.Fingerprint = snap.Fingerprint
		st.BuiltAt = snap.BuiltAt
		st.FromCache = snap.FromCache
	}
	return st
}

// Ready returns an UNAVAILABLE error until the first snapshot is live.
func (m *Manager) Ready() error {
	if m.Current() == nil {
		return apperrors.NewUnavailableError("index is not built yet")
	}
	return nil
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.lastError = ""
		return
	}
	m.lastError = err.Error()
}

func (m *Manager) publish(ctx context.Context, ev *entities.IndexEvent) {
	if m.bus == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.Origin = m.origin
	ev.Timestamp = time.Now().UTC()
	if err := m.bus.Publish(ctx, providers.EventChannelIndexUpdates, ev); err != nil {
		log.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to publish index event")
	}
}
