package generation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultHealthTTL = 30 * time.Second

	maxPingTimeout      = 5 * time.Second
	breakerTripFailures = 5
	breakerOpenTimeout  = 30 * time.Second
)

// RouterConfig configures the generation router.
type RouterConfig struct {
	// Default is used when a request names no provider.
	Default   string
	Timeout   time.Duration
	HealthTTL time.Duration
	// Unconfigured lists known provider names that have no credentials; they
	// show up in Health but are never called.
	Unconfigured []string
}

type route struct {
	provider providers.GenerationProvider
	breaker  *gobreaker.CircuitBreaker
}

// Router dispatches generation requests to exactly the provider asked for.
// It never substitutes another provider when the chosen one fails.
type Router struct {
	routes       map[string]*route
	names        []string
	unconfigured []string
	defaultName  string
	timeout      time.Duration
	healthTTL    time.Duration
	metrics      *observability.Metrics

	healthMu  sync.Mutex
	health    []entities.ProviderHealth
	healthAt  time.Time
	healthRun chan struct{}
}

// NewRouter creates a router over the configured providers. metrics may be nil.
func NewRouter(cfg RouterConfig, metrics *observability.Metrics, ps ...providers.GenerationProvider) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = DefaultHealthTTL
	}

	r := &Router{
		routes:      make(map[string]*route, len(ps)),
		defaultName: strings.ToLower(cfg.Default),
		timeout:     cfg.Timeout,
		healthTTL:   cfg.HealthTTL,
		metrics:     metrics,
	}
	for _, p := range ps {
		name := strings.ToLower(p.Name())
		r.routes[name] = &route{provider: p, breaker: newBreaker(name)}
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	for _, name := range cfg.Unconfigured {
		name = strings.ToLower(name)
		if _, ok := r.routes[name]; !ok {
			r.unconfigured = append(r.unconfigured, name)
		}
	}
	sort.Strings(r.unconfigured)
	return r
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("Provider circuit breaker changed state")
		},
	})
}

// Default returns the primary provider name.
func (r *Router) Default() string { return r.defaultName }

// Timeout returns the bound applied to every provider call.
func (r *Router) Timeout() time.Duration { return r.timeout }

// Configured reports whether name can be called.
func (r *Router) Configured(name string) bool {
	_, ok := r.routes[strings.ToLower(name)]
	return ok
}

// Names returns the configured provider names in sorted order.
func (r *Router) Names() []string {
	return append([]string(nil), r.names...)
}

// Generate calls the named provider, or the default one when name is empty.
// Every error is a *ProviderFailure.
func (r *Router) Generate(ctx context.Context, name string, messages []entities.PromptMessage, params entities.GenerationParams) (*entities.Generation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.defaultName
	}

	ctx, span := observability.StartSpan(ctx, "generation.Generate")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("rag.provider", name),
		attribute.Int("rag.prompt_messages", len(messages)),
	)

	rt, ok := r.routes[name]
	if !ok {
		failure := &ProviderFailure{Provider: name, Kind: KindNotConfigured, Err: errors.New("provider is not configured")}
		observability.RecordProviderCall(ctx, r.metrics, name, string(KindNotConfigured), 0)
		observability.RecordError(span, failure)
		return nil, failure
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := rt.breaker.Execute(func() (interface{}, error) {
		gen, err := rt.provider.Generate(ctx, messages, params)
		if err != nil {
			return nil, err
		}
		if gen == nil || strings.TrimSpace(gen.Text) == "" {
			return nil, fmt.Errorf("%w: empty completion", ErrMalformedResponse)
		}
		return gen, nil
	})
	duration := time.Since(start)

	if err != nil {
		failure := Classify(name, err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			failure.Kind = KindTimeout
		}
		observability.RecordProviderCall(ctx, r.metrics, name, string(failure.Kind), duration)
		observability.RecordError(span, failure)
		log.Warn().Err(err).Str("provider", name).Str("kind", string(failure.Kind)).Dur("duration", duration).Msg("Generation failed")
		return nil, failure
	}

	gen := out.(*entities.Generation)
	if gen.Provider == "" {
		gen.Provider = name
	}
	if gen.Model == "" {
		gen.Model = rt.provider.Model()
	}
	observability.RecordProviderCall(ctx, r.metrics, name, "ok", duration)
	observability.SetSpanAttributes(span, attribute.String("rag.model", gen.Model))
	return gen, nil
}

// Health reports every known provider. Results are reused for the health TTL
// and concurrent callers share one round of pings.
func (r *Router) Health(ctx context.Context) []entities.ProviderHealth {
	r.healthMu.Lock()
	if r.health != nil && time.Since(r.healthAt) < r.healthTTL {
		out := append([]entities.ProviderHealth(nil), r.health...)
		r.healthMu.Unlock()
		return out
	}
	if running := r.healthRun; running != nil {
		r.healthMu.Unlock()
		select {
		case <-running:
		case <-ctx.Done():
			return nil
		}
		return r.Health(ctx)
	}
	done := make(chan struct{})
	r.healthRun = done
	r.healthMu.Unlock()

	results := r.probe(context.WithoutCancel(ctx))

	r.healthMu.Lock()
	r.health = results
	r.healthAt = time.Now()
	r.healthRun = nil
	r.healthMu.Unlock()
	close(done)

	return append([]entities.ProviderHealth(nil), results...)
}

func (r *Router) probe(ctx context.Context) []entities.ProviderHealth {
	now := time.Now().UTC()
	results := make([]entities.ProviderHealth, len(r.names))

	pingTimeout := min(r.timeout, maxPingTimeout)
	var g errgroup.Group
	for i, name := range r.names {
		rt := r.routes[name]
		g.Go(func() error {
			h := entities.ProviderHealth{
				Name:       name,
				Default:    name == r.defaultName,
				Configured: true,
				Model:      rt.provider.Model(),
				Breaker:    rt.breaker.State().String(),
				CheckedAt:  now,
			}
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			if err := rt.provider.Ping(pctx); err != nil {
				h.Error = Classify(name, err).Error()
			} else {
				h.Reachable = rt.breaker.State() != gobreaker.StateOpen
			}
			results[i] = h
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range r.unconfigured {
		results = append(results, entities.ProviderHealth{
			Name:      name,
			Default:   name == r.defaultName,
			Error:     string(KindNotConfigured),
			CheckedAt: now,
		})
	}
	return results
}

// Select picks the provider for a request that named none: the default one
// when it is configured, otherwise the first reachable configured provider,
// otherwise the first configured one. The choice happens before the call.
func (r *Router) Select(ctx context.Context) string {
	if r.Configured(r.defaultName) {
		return r.defaultName
	}
	for _, h := range r.Health(ctx) {
		if h.Configured && h.Reachable {
			return h.Name
		}
	}
	if len(r.names) > 0 {
		return r.names[0]
	}
	return r.defaultName
}
