package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/repositories"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

// MemoryConversationAdapter keeps conversations in process memory. It is meant
// for development and tests; everything is lost on restart.
type MemoryConversationAdapter struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation
	messages      map[string][]*entities.Message
}

// NewMemoryConversationAdapter creates an empty in-memory store.
func NewMemoryConversationAdapter() *MemoryConversationAdapter {
	return &MemoryConversationAdapter{
		conversations: make(map[string]*entities.Conversation),
		messages:      make(map[string][]*entities.Message),
	}
}

var _ repositories.ConversationRepository = (*MemoryConversationAdapter)(nil)

func (a *MemoryConversationAdapter) CreateConversation(_ context.Context, conversation *entities.Conversation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.conversations[conversation.ID]; ok {
		return apperrors.NewConflictError(fmt.Sprintf("conversation with id %s already exists", conversation.ID))
	}
	c := *conversation
	a.conversations[c.ID] = &c
	return nil
}

func (a *MemoryConversationAdapter) GetConversation(_ context.Context, id string) (*entities.Conversation, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.conversations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("conversation with id %s not found", id))
	}
	out := *c
	return &out, nil
}

func (a *MemoryConversationAdapter) ListConversations(_ context.Context, ownerID string, limit int) ([]*entities.Conversation, error) {
	a.mu.RLock()
	var out []*entities.Conversation
	for _, c := range a.conversations {
		if c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *MemoryConversationAdapter) AppendMessage(_ context.Context, message *entities.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.conversations[message.ConversationID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("conversation with id %s not found", message.ConversationID))
	}

	msgs := a.messages[message.ConversationID]
	message.Sequence = int64(len(msgs)) + 1
	m := *message
	a.messages[message.ConversationID] = append(msgs, &m)
	c.UpdatedAt = message.CreatedAt
	return nil
}

func (a *MemoryConversationAdapter) ListMessages(_ context.Context, conversationID string) ([]*entities.Message, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	msgs := a.messages[conversationID]
	out := make([]*entities.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}
