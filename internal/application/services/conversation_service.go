package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/repositories"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

const (
	DefaultMaxMessages = 5

	maxTitleRunes    = 50
	maxQuestionRunes = 80
	maxSummaryTerms  = 6
	defaultTitle     = "New conversation"
)

// TermExtractor finds vocabulary terms in free text.
type TermExtractor interface {
	MedicalTerms(text string) []string
}

// MemoryContext is the conversation state handed to prompt assembly.
type MemoryContext struct {
	System   string
	Summary  string
	Messages []*entities.Message
}

// PromptMessages renders the context as provider messages: system
// instructions, the overflow summary and then the verbatim turns.
func (m *MemoryContext) PromptMessages() []entities.PromptMessage {
	out := make([]entities.PromptMessage, 0, len(m.Messages)+2)
	out = append(out, entities.PromptMessage{Role: entities.RoleSystem, Content: m.System})
	if m.Summary != "" {
		out = append(out, entities.PromptMessage{Role: entities.RoleSystem, Content: summaryPrefix + m.Summary})
	}
	for _, msg := range m.Messages {
		out = append(out, entities.PromptMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// ConversationService owns conversation state: lazy creation, ownership,
// ordered appends and bounded prompt context.
type ConversationService struct {
	repo  repositories.ConversationRepository
	terms TermExtractor
	locks *keyedMutex
	now   func() time.Time
}

// NewConversationService creates a new conversation service. terms may be nil,
// in which case overflow summaries list no medical terms.
func NewConversationService(repo repositories.ConversationRepository, terms TermExtractor) *ConversationService {
	return &ConversationService{
		repo:  repo,
		terms: terms,
		locks: newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the caller's conversation, or creates one titled after
// firstMessage when conversationID is empty.
func (s *ConversationService) GetOrCreate(ctx context.Context, ownerID, conversationID, firstMessage string) (*entities.Conversation, error) {
	if conversationID != "" {
		conv, err := s.repo.GetConversation(ctx, conversationID)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
				return nil, apperrors.NewConversationNotFoundError(conversationID)
			}
			return nil, err
		}
		if conv.OwnerID != ownerID {
			return nil, apperrors.NewConversationNotOwnedError(conversationID)
		}
		return conv, nil
	}

	now := s.now()
	conv := &entities.Conversation{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     deriveTitle(firstMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	log.Debug().Str("conversation_id", conv.ID).Str("owner_id", ownerID).Msg("Created conversation")
	return conv, nil
}

// Append stores a message. Appends to one conversation are serialised;
// different conversations proceed independently.
func (s *ConversationService) Append(ctx context.Context, conversationID string, role entities.Role, content string, provider, model *string) (*entities.Message, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("role %q cannot be stored", role))
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	msg := &entities.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Provider:       provider,
		Model:          model,
		CreatedAt:      s.now(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NewConversationNotFoundError(conversationID)
		}
		return nil, err
	}
	return msg, nil
}

// BuildContext returns the system instructions, a one-sentence summary of any
// turns older than the window, and at most maxMessages recent turns verbatim.
func (s *ConversationService) BuildContext(ctx context.Context, conversationID string, maxMessages int) (*MemoryContext, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	messages, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	mc := &MemoryContext{System: systemPrompt}
	if overflow := len(messages) - maxMessages; overflow > 0 {
		mc.Summary = s.summarize(messages[:overflow])
		messages = messages[overflow:]
	}
	mc.Messages = messages
	return mc, nil
}

// summarize condenses overflowed turns into one sentence naming how many
// were dropped, the first question asked and the medical terms mentioned.
func (s *ConversationService) summarize(older []*entities.Message) string {
	var (
		firstQuestion string
		terms         []string
		seen          = make(map[string]bool)
	)
	for _, m := range older {
		if m.Role != entities.RoleUser {
			continue
		}
		if firstQuestion == "" {
			firstQuestion = truncate(collapseSpace(m.Content), maxQuestionRunes)
		}
		if s.terms == nil {
			continue
		}
		for _, t := range s.terms.MedicalTerms(m.Content) {
			if len(terms) == maxSummaryTerms {
				break
			}
			if !seen[t] {
				seen[t] = true
				terms = append(terms, t)
			}
		}
	}

	noun := "messages"
	if len(older) == 1 {
		noun = "message"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d earlier %s condensed", len(older), noun)
	if firstQuestion != "" {
		fmt.Fprintf(&b, "; the user first asked %q", firstQuestion)
	}
	if len(terms) > 0 {
		fmt.Fprintf(&b, "; medical terms mentioned: %s", strings.Join(terms, ", "))
	}
	b.WriteString(".")
	return b.String()
}

// ListConversations returns the owner's conversations, most recently active first.
func (s *ConversationService) ListConversations(ctx context.Context, ownerID string, limit int) ([]*entities.Conversation, error) {
	return s.repo.ListConversations(ctx, ownerID, limit)
}

// ListMessages returns a conversation's history after checking ownership.
func (s *ConversationService) ListMessages(ctx context.Context, ownerID, conversationID string) ([]*entities.Message, error) {
	if _, err := s.GetOrCreate(ctx, ownerID, conversationID, ""); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

func deriveTitle(firstMessage string) string {
	title := collapseSpace(firstMessage)
	if title == "" {
		return defaultTitle
	}
	return truncate(title, maxTitleRunes)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
