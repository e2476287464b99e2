// Package generation builds the generation providers named in configuration.
package generation

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/gemini"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// NewProviders creates every configured provider and returns the names of the
// ones left out for lack of settings.
func NewProviders(cfg config.ProvidersConfig) ([]providers.GenerationProvider, []string) {
	var (
		built        []providers.GenerationProvider
		unconfigured []string
	)

	named := cfg.Named()
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := named[name]
		if !pc.Configured() {
			unconfigured = append(unconfigured, name)
			continue
		}
		p, err := newProvider(name, pc, cfg.Timeout)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("Generation provider disabled")
			unconfigured = append(unconfigured, name)
			continue
		}
		log.Info().Str("provider", name).Str("model", p.Model()).Msg("Generation provider configured")
		built = append(built, p)
	}
	return built, unconfigured
}

func newProvider(name string, pc config.ProviderConfig, timeout time.Duration) (providers.GenerationProvider, error) {
	if name == "gemini" {
		return gemini.NewClient(gemini.Config{
			APIKey:       pc.APIKey,
			Model:        pc.Model,
			BaseURL:      pc.BaseURL,
			RateLimitRPM: pc.RateLimit,
			Timeout:      timeout,
		})
	}

	baseURL := pc.BaseURL
	if baseURL == "" && name == "openai" {
		baseURL = defaultOpenAIBaseURL
	}
	apiKey := pc.APIKey
	if apiKey == "" {
		// local servers such as Ollama ignore the key but the client requires one
		apiKey = name
	}
	return NewOpenAICompatibleAdapter(OpenAICompatibleConfig{
		Name:         name,
		APIKey:       apiKey,
		BaseURL:      baseURL,
		Model:        pc.Model,
		RateLimitRPM: pc.RateLimit,
		Timeout:      timeout,
	})
}
