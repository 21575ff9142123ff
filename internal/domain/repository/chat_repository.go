package repository

import (
	"context"
	"time"

	"marketchat/internal/domain/entity"
)

// ChatRepository persists conversations and their messages. Every method that
// touches the shared counters applies its change atomically in the store.
type ChatRepository interface {
	// CreateIfAbsent inserts conv unless a conversation with the same
	// normalized key exists, in which case the stored one is returned.
	CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error)
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, userID string, filter entity.ConversationFilter) ([]*entity.Conversation, error)
	UpdateStatus(ctx context.Context, id string, from, to entity.ConversationStatus) (*entity.Conversation, error)

	// AppendMessage stores msg, increments recipientID's unread counter in
	// place and moves the last-message pointer, all in one write.
	AppendMessage(ctx context.Context, msg *entity.Message, recipientID string) (*entity.Conversation, error)
	GetMessage(ctx context.Context, id string) (*entity.Message, error)
	// ListMessages returns up to limit messages older than beforeID (exclusive),
	// newest first. An empty beforeID starts from the newest message.
	ListMessages(ctx context.Context, conversationID string, limit int, beforeID string) ([]*entity.Message, error)
	// MarkConversationRead adds readerID to every foreign message that lacks it
	// and resets the reader's unread counter. It returns the ids it changed.
	MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]string, error)
	// SoftDeleteMessage scrubs the message. changed is false when it was
	// already deleted.
	SoftDeleteMessage(ctx context.Context, id string, at time.Time) (msg *entity.Message, changed bool, err error)
}
