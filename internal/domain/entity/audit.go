package entity

import "time"

type AuditAction string

const (
	AuditCreateConversation AuditAction = "CREATE_CONVERSATION"
	AuditSendMessage        AuditAction = "SEND_MESSAGE"
	AuditDeleteMessage      AuditAction = "DELETE_MESSAGE"
	AuditReportMessage      AuditAction = "REPORT_MESSAGE"
	AuditReviewReport       AuditAction = "REVIEW_REPORT"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditCreateConversation, AuditSendMessage, AuditDeleteMessage, AuditReportMessage, AuditReviewReport:
		return true
	}
	return false
}

// AuditLogEntry is append-only; nothing in the system updates or deletes it.
type AuditLogEntry struct {
	ID             string                 `json:"id" firestore:"id"`
	ConversationID string                 `json:"conversation_id,omitempty" firestore:"conversationId,omitempty"`
	MessageID      string                 `json:"message_id,omitempty" firestore:"messageId,omitempty"`
	Action         AuditAction            `json:"action" firestore:"action"`
	ActorID        string                 `json:"actor_id" firestore:"actorId"`
	TargetID       string                 `json:"target_id,omitempty" firestore:"targetId,omitempty"`
	Detail         map[string]interface{} `json:"detail,omitempty" firestore:"detail,omitempty"`
	CreatedAt      time.Time              `json:"created_at" firestore:"createdAt"`
}

type AuditFilter struct {
	Action         AuditAction
	ActorID        string
	ConversationID string
	Limit          int
}

func (f AuditFilter) Matches(e *AuditLogEntry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ConversationID != "" && e.ConversationID != f.ConversationID {
		return false
	}
	return true
}
