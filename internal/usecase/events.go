package usecase

import (
	"context"
	"sync"
	"time"

	"marketchat/internal/domain/entity"
)

// Outbound event types shared by the gateway and the HTTP fallback path.
const (
	EventMessageNew          = "message-new"
	EventMessagesRead        = "messages-read"
	EventMessageDeleted      = "message-deleted"
	EventConversationNew     = "conversation-new"
	EventConversationUpdated = "conversation-updated"
)

// EventPublisher fans committed changes out to connected clients. Publishing
// is fire-and-forget: delivery problems never fail the operation that
// produced the event.
type EventPublisher interface {
	PublishToConversation(ctx context.Context, conversationID, eventType string, payload interface{})
	PublishToUser(ctx context.Context, userID, eventType string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) PublishToConversation(context.Context, string, string, interface{}) {}
func (noopPublisher) PublishToUser(context.Context, string, string, interface{})         {}

type MessagesReadEvent struct {
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	MessageIDs     []string  `json:"message_ids"`
	ReadAt         time.Time `json:"read_at"`
}

type MessageDeletedEvent struct {
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	DeletedBy      string          `json:"deleted_by"`
	Message        *entity.Message `json:"message"`
}

// conversationLocks serializes commit+publish per conversation so every group
// member sees events in commit order. Entries are dropped when unused.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*conversationLock)}
}

func (l *conversationLocks) lock(conversationID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[conversationID]
	if !ok {
		entry = &conversationLock{}
		l.locks[conversationID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, conversationID)
		}
		l.mu.Unlock()
	}
}
