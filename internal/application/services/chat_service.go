package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/observability"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/retrieval"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

// MaxMessageRunes bounds a single user message.
const MaxMessageRunes = 4000

// RetrievalGate decides whether a message warrants case retrieval.
type RetrievalGate interface {
	Evaluate(message string) entities.GateDecision
}

// ContextComposer turns a query into a formatted case block, or nil.
type ContextComposer interface {
	Compose(ctx context.Context, query string, opts ...retrieval.Option) (*entities.RetrievedContext, error)
}

// GenerationRouter dispatches a prompt to one named provider.
type GenerationRouter interface {
	Generate(ctx context.Context, provider string, messages []entities.PromptMessage, params entities.GenerationParams) (*entities.Generation, error)
	Select(ctx context.Context) string
}

// ChatRequest is one user turn.
type ChatRequest struct {
	OwnerID        string `json:"owner_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Provider       string `json:"provider,omitempty"`
}

// AssistantReply is the generated answer.
type AssistantReply struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	Provider        string `json:"provider"`
	ModelIdentifier string `json:"model_identifier"`
}

// RetrievalSummary reports whether case context was used for the turn.
type RetrievalSummary struct {
	Triggered  bool     `json:"triggered"`
	MatchCount int      `json:"match_count"`
	Terms      []string `json:"terms,omitempty"`
}

// ChatResponse is returned for a completed turn.
type ChatResponse struct {
	ConversationID   string            `json:"conversation_id"`
	UserMessage      *entities.Message `json:"user_message"`
	AssistantMessage AssistantReply    `json:"assistant_message"`
	Retrieval        RetrievalSummary  `json:"retrieval"`
}

// ChatConfig tunes the pipeline.
type ChatConfig struct {
	MaxMessages int
	Params      entities.GenerationParams
}

// ChatService runs the request pipeline: memory, gate, composer, prompt
// assembly, generation and the final append.
type ChatService struct {
	conversations *ConversationService
	gate          RetrievalGate
	composer      ContextComposer
	router        GenerationRouter
	cfg           ChatConfig
	metrics       *observability.Metrics
}

// NewChatService creates a new chat service. composer may be nil to disable
// retrieval; metrics may be nil.
func NewChatService(conversations *ConversationService, gate RetrievalGate, composer ContextComposer, router GenerationRouter, cfg ChatConfig, metrics *observability.Metrics) *ChatService {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	return &ChatService{
		conversations: conversations,
		gate:          gate,
		composer:      composer,
		router:        router,
		cfg:           cfg,
		metrics:       metrics,
	}
}

// Chat handles one user message end to end. A provider failure is returned
// as a PROVIDER_FAILURE error after the user message has been stored; the
// assistant reply is not stored when the caller has gone away.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := observability.StartSpan(ctx, "ChatService.Chat")
	defer span.End()

	message := strings.TrimSpace(req.Message)
	if err := validateChatRequest(req.OwnerID, message); err != nil {
		return nil, err
	}

	conv, err := s.conversations.GetOrCreate(ctx, req.OwnerID, req.ConversationID, message)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.SetSpanAttributes(span, attribute.String("conversation.id", conv.ID))

	userMsg, err := s.conversations.Append(ctx, conv.ID, entities.RoleUser, message, nil, nil)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	retrieved, summary := s.retrieve(ctx, message)

	memory, err := s.conversations.BuildContext(ctx, conv.ID, s.cfg.MaxMessages)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	prompt := assemblePrompt(memory, retrieved, userMsg)

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = s.router.Select(ctx)
	}
	observability.SetSpanAttributes(span, attribute.String("rag.provider", provider))

	// the provider call outlives a disconnected caller and is bounded by the router timeout
	genCtx := context.WithoutCancel(ctx)
	start := time.Now()
	gen, err := s.router.Generate(genCtx, provider, prompt, s.cfg.Params)
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewProviderFailureError(provider, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Info().
			Str("conversation_id", conv.ID).
			Str("provider", gen.Provider).
			Dur("duration", time.Since(start)).
			Msg("Caller went away, assistant reply not stored")
		return nil, ctxErr
	}

	providerName, model := gen.Provider, gen.Model
	assistantMsg, err := s.conversations.Append(ctx, conv.ID, entities.RoleAssistant, gen.Text, &providerName, &model)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	log.Info().
		Str("conversation_id", conv.ID).
		Str("provider", providerName).
		Str("model", model).
		Bool("retrieval", summary.Triggered).
		Int("matches", summary.MatchCount).
		Dur("generation", time.Since(start)).
		Msg("Chat turn completed")

	resp := &ChatResponse{
		ConversationID: conv.ID,
		UserMessage:    userMsg,
		AssistantMessage: AssistantReply{
			ID:              assistantMsg.ID,
			Content:         gen.Text,
			Provider:        providerName,
			ModelIdentifier: model,
		},
		Retrieval: summary,
	}
	return resp, nil
}

// retrieve runs the gate and, when triggered, the composer. Composer
// failures degrade to no augmentation.
func (s *ChatService) retrieve(ctx context.Context, message string) (*entities.RetrievedContext, RetrievalSummary) {
	decision := s.gate.Evaluate(message)
	summary := RetrievalSummary{Triggered: decision.Triggered, Terms: decision.Terms}
	if !decision.Triggered || s.composer == nil {
		observability.RecordRetrieval(ctx, s.metrics, false, 0)
		return nil, summary
	}

	rc, err := s.composer.Compose(ctx, message)
	if err != nil {
		log.Warn().Err(err).Msg("Context composition failed, answering without case context")
		rc = nil
	}
	if rc != nil {
		summary.MatchCount = len(rc.Matches)
	}
	observability.RecordRetrieval(ctx, s.metrics, true, summary.MatchCount)
	return rc, summary
}

// assemblePrompt orders the prompt as system instructions, summary, history,
// retrieved cases and finally the current message.
func assemblePrompt(memory *MemoryContext, retrieved *entities.RetrievedContext, current *entities.Message) []entities.PromptMessage {
	history := make([]*entities.Message, 0, len(memory.Messages))
	for _, m := range memory.Messages {
		if m.ID != current.ID {
			history = append(history, m)
		}
	}
	base := MemoryContext{System: memory.System, Summary: memory.Summary, Messages: history}
	prompt := base.PromptMessages()

	if retrieved != nil && retrieved.FormattedBlock != "" {
		prompt = append(prompt, entities.PromptMessage{Role: entities.RoleSystem, Content: retrieved.FormattedBlock})
	}
	return append(prompt, entities.PromptMessage{Role: entities.RoleUser, Content: current.Content})
}

func validateChatRequest(ownerID, message string) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperrors.NewUnauthorizedError("owner id is required")
	}
	if message == "" {
		return apperrors.NewValidationError("message is required")
	}
	if n := utf8.RuneCountInString(message); n > MaxMessageRunes {
		return apperrors.NewValidationError(fmt.Sprintf("message is %d characters, the limit is %d", n, MaxMessageRunes))
	}
	return nil
}
