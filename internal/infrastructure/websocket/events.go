package websocket

import (
	"encoding/json"
	"time"

	"marketchat/internal/usecase"
)

// Inbound event types.
const (
	EventAuthenticate      = "authenticate"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventMarkRead          = "mark-read"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventPing              = "ping"
)

// Outbound event types. Conversation events published by the messaging
// service keep the names defined in the usecase package.
const (
	EventMessageNew          = usecase.EventMessageNew
	EventMessagesRead        = usecase.EventMessagesRead
	EventMessageDeleted      = usecase.EventMessageDeleted
	EventConversationNew     = usecase.EventConversationNew
	EventConversationUpdated = usecase.EventConversationUpdated
	EventUserOnline          = "user-online"
	EventUserOffline         = "user-offline"
	EventJoined              = "joined"
	EventLeft                = "left"
	EventPong                = "pong"
	EventError               = "error"
)

// WSMessage is the envelope of every outbound frame.
type WSMessage struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	RequestID      string      `json:"request_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

// InboundMessage is the envelope of a client frame. Data is decoded by the
// handler of the given type.
type InboundMessage struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	RequestID      string          `json:"request_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type AuthenticateData struct {
	Token string `json:"token"`
}

type ConversationData struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessageData struct {
	ConversationID string   `json:"conversation_id"`
	Content        string   `json:"content"`
	Language       string   `json:"language"`
	ReplyToID      string   `json:"reply_to_id"`
	Attachments    []string `json:"attachments"`
}

type TypingData struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type PresenceData struct {
	UserID string `json:"user_id"`
	At     string `json:"at"`
}

type JoinedData struct {
	ConversationID string   `json:"conversation_id"`
	MarkedRead     []string `json:"marked_read,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newMessage(eventType, conversationID string, data interface{}) WSMessage {
	return WSMessage{
		Type:           eventType,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// conversationID returns the target conversation of an inbound frame, which
// clients may put on the envelope or inside data.
func (m *InboundMessage) conversationID() string {
	if m.ConversationID != "" {
		return m.ConversationID
	}
	if len(m.Data) == 0 {
		return ""
	}
	var data ConversationData
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return ""
	}
	return data.ConversationID
}
