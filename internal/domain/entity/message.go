package entity

import "time"

type MessageStatus string

const (
	MessageSent      MessageStatus = "SENT"
	MessageDelivered MessageStatus = "DELIVERED"
	MessageRead      MessageStatus = "READ"
	MessageEdited    MessageStatus = "EDITED"
	MessageDeleted   MessageStatus = "DELETED"
)

// DeletedPlaceholder replaces the content of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

type Message struct {
	ID                string            `json:"id" firestore:"id"`
	ConversationID    string            `json:"conversation_id" firestore:"conversationId"`
	SenderID          string            `json:"sender_id" firestore:"senderId"`
	Content           *string           `json:"content" firestore:"content"`
	TranslatedContent map[string]string `json:"translated_content,omitempty" firestore:"translatedContent,omitempty"`
	Language          string            `json:"language" firestore:"language"`
	Status            MessageStatus     `json:"status" firestore:"status"`
	ReadBy            []string          `json:"read_by" firestore:"readBy"`
	ReplyToID         string            `json:"reply_to_id,omitempty" firestore:"replyToId,omitempty"`
	Attachments       []string          `json:"attachments,omitempty" firestore:"attachments,omitempty"`
	CreatedAt         time.Time         `json:"created_at" firestore:"createdAt"`
	UpdatedAt         time.Time         `json:"updated_at" firestore:"updatedAt"`
	DeletedAt         *time.Time        `json:"deleted_at,omitempty" firestore:"deletedAt,omitempty"`

	// ReplyTo is resolved one hop deep on read and never persisted.
	ReplyTo *MessagePreview `json:"reply_to,omitempty" firestore:"-"`
}

type MessagePreview struct {
	ID       string        `json:"id"`
	SenderID string        `json:"sender_id"`
	Content  *string       `json:"content"`
	Status   MessageStatus `json:"status"`
}

func (m *Message) Preview() *MessagePreview {
	return &MessagePreview{ID: m.ID, SenderID: m.SenderID, Content: m.Content, Status: m.Status}
}

func (m *Message) IsDeleted() bool {
	return m.Status == MessageDeleted
}

func (m *Message) ReadByUser(userID string) bool {
	for _, reader := range m.ReadBy {
		if reader == userID {
			return true
		}
	}
	return false
}

// ApplyRead records userID as a reader. Readers never include the sender.
// It reports whether the message changed.
func (m *Message) ApplyRead(userID string) bool {
	if userID == m.SenderID || m.ReadByUser(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	if m.Status == MessageSent || m.Status == MessageDelivered {
		m.Status = MessageRead
	}
	return true
}

// ApplySoftDelete scrubs the visible content. Deleting twice is a no-op.
func (m *Message) ApplySoftDelete(at time.Time) bool {
	if m.IsDeleted() {
		return false
	}
	placeholder := DeletedPlaceholder
	m.Content = &placeholder
	m.TranslatedContent = nil
	m.Attachments = nil
	m.Status = MessageDeleted
	m.DeletedAt = &at
	m.UpdatedAt = at
	return true
}

func StringPtr(s string) *string {
	return &s
}

func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
