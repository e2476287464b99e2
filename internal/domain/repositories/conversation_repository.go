package repositories

import (
	"context"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

// ConversationRepository defines persistence for conversations and their messages.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conversation *entities.Conversation) error
	// GetConversation returns a NOT_FOUND AppError for unknown ids
	GetConversation(ctx context.Context, id string) (*entities.Conversation, error)
	ListConversations(ctx context.Context, ownerID string, limit int) ([]*entities.Conversation, error)

	// AppendMessage assigns the next sequence number, stores the message and
	// bumps the conversation's updated_at in one unit of work.
	AppendMessage(ctx context.Context, message *entities.Message) error

	// ListMessages returns messages oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]*entities.Message, error)
}
