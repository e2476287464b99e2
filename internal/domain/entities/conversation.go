package entities

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r can be stored on a message. System text is never stored.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Message is one append-only turn of a conversation. Sequence is assigned by
// the store and strictly increases within a conversation.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Role           Role      `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	Provider       *string   `json:"provider,omitempty" db:"provider"`
	Model          *string   `json:"model,omitempty" db:"model"`
	Sequence       int64     `json:"sequence" db:"sequence"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
