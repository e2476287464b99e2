package providers

import (
	"context"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

// GenerationProvider is one text generation backend.
type GenerationProvider interface {
	// Name is the routing key, e.g. "gemini" or "groq"
	Name() string

	// Model is the model identifier reported with every response
	Model() string

	Generate(ctx context.Context, messages []entities.PromptMessage, params entities.GenerationParams) (*entities.Generation, error)

	// Ping performs a cheap reachability check without generating text
	Ping(ctx context.Context) error
}
