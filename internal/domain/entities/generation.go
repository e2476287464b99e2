package entities

import "time"

// PromptMessage is one message sent to a generation provider.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationParams tunes a single generation call.
type GenerationParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Generation is a provider response normalised across backends.
type Generation struct {
	Text     string `json:"text"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// ProviderHealth describes whether a generation provider can take requests.
type ProviderHealth struct {
	Name       string    `json:"name"`
	Default    bool      `json:"default"`
	Configured bool      `json:"configured"`
	Reachable  bool      `json:"reachable"`
	Model      string    `json:"model,omitempty"`
	Breaker    string    `json:"breaker,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}
