package entity

import "time"

type ReportReason string

const (
	ReportSpam                 ReportReason = "SPAM"
	ReportHarassment           ReportReason = "HARASSMENT"
	ReportFraud                ReportReason = "FRAUD"
	ReportInappropriateContent ReportReason = "INAPPROPRIATE_CONTENT"
	ReportOther                ReportReason = "OTHER"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReportSpam, ReportHarassment, ReportFraud, ReportInappropriateContent, ReportOther:
		return true
	}
	return false
}

type ReportStatus string

const (
	ReportPending   ReportStatus = "PENDING"
	ReportReviewed  ReportStatus = "REVIEWED"
	ReportResolved  ReportStatus = "RESOLVED"
	ReportDismissed ReportStatus = "DISMISSED"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportReviewed, ReportResolved, ReportDismissed:
		return true
	}
	return false
}

// ReviewableFrom lists the statuses a report may be in when moving to s.
// RESOLVED and DISMISSED are final.
func (s ReportStatus) ReviewableFrom() []ReportStatus {
	switch s {
	case ReportReviewed:
		return []ReportStatus{ReportPending}
	case ReportResolved, ReportDismissed:
		return []ReportStatus{ReportPending, ReportReviewed}
	}
	return nil
}

type MessageReport struct {
	ID             string       `json:"id" firestore:"id"`
	MessageID      string       `json:"message_id" firestore:"messageId"`
	ConversationID string       `json:"conversation_id" firestore:"conversationId"`
	ReporterID     string       `json:"reporter_id" firestore:"reporterId"`
	Reason         ReportReason `json:"reason" firestore:"reason"`
	Description    string       `json:"description,omitempty" firestore:"description,omitempty"`
	Status         ReportStatus `json:"status" firestore:"status"`
	ReviewerID     string       `json:"reviewer_id,omitempty" firestore:"reviewerId,omitempty"`
	ReviewNotes    string       `json:"review_notes,omitempty" firestore:"reviewNotes,omitempty"`
	ReviewedAt     *time.Time   `json:"reviewed_at,omitempty" firestore:"reviewedAt,omitempty"`
	CreatedAt      time.Time    `json:"created_at" firestore:"createdAt"`
}

type ReportFilter struct {
	Status         ReportStatus
	ConversationID string
	Limit          int
}

func (f ReportFilter) Matches(r *MessageReport) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.ConversationID != "" && r.ConversationID != f.ConversationID {
		return false
	}
	return true
}
