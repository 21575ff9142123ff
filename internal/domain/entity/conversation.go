package entity

import (
	"sort"
	"strconv"
	"time"
)

type ConversationType string

const (
	ConversationOrder    ConversationType = "ORDER"
	ConversationDelivery ConversationType = "DELIVERY"
	ConversationSupport  ConversationType = "SUPPORT"
)

var AllConversationTypes = []ConversationType{ConversationOrder, ConversationDelivery, ConversationSupport}

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "ACTIVE"
	ConversationClosed   ConversationStatus = "CLOSED"
	ConversationArchived ConversationStatus = "ARCHIVED"
)

// CanTransition reports whether a conversation may move from s to next.
// There is no way back to ACTIVE.
func (s ConversationStatus) CanTransition(next ConversationStatus) bool {
	switch s {
	case ConversationActive:
		return next == ConversationClosed || next == ConversationArchived
	case ConversationClosed:
		return next == ConversationArchived
	default:
		return false
	}
}

func (s ConversationStatus) Valid() bool {
	return s == ConversationActive || s == ConversationClosed || s == ConversationArchived
}

// CorrelationIDs carries the optional external record a conversation is about.
// Only the id matching the conversation type takes part in the uniqueness key.
type CorrelationIDs struct {
	OrderID         string `json:"order_id,omitempty"`
	DeliveryID      string `json:"delivery_id,omitempty"`
	SupportTicketID string `json:"support_ticket_id,omitempty"`
}

func (c CorrelationIDs) For(t ConversationType) string {
	switch t {
	case ConversationOrder:
		return c.OrderID
	case ConversationDelivery:
		return c.DeliveryID
	case ConversationSupport:
		return c.SupportTicketID
	}
	return ""
}

type Conversation struct {
	ID              string             `json:"id" firestore:"id"`
	Type            ConversationType   `json:"type" firestore:"type"`
	Participant1    string             `json:"participant1" firestore:"participant1"`
	Participant2    string             `json:"participant2" firestore:"participant2"`
	Participants    []string           `json:"-" firestore:"participants"`
	ParticipantKey  string             `json:"-" firestore:"participantKey"`
	OrderID         string             `json:"order_id,omitempty" firestore:"orderId,omitempty"`
	DeliveryID      string             `json:"delivery_id,omitempty" firestore:"deliveryId,omitempty"`
	SupportTicketID string             `json:"support_ticket_id,omitempty" firestore:"supportTicketId,omitempty"`
	Status          ConversationStatus `json:"status" firestore:"status"`
	LastMessageID   string             `json:"last_message_id,omitempty" firestore:"lastMessageId,omitempty"`
	LastMessageAt   *time.Time         `json:"last_message_at,omitempty" firestore:"lastMessageAt,omitempty"`
	Unread1         int                `json:"unread1" firestore:"unread1"`
	Unread2         int                `json:"unread2" firestore:"unread2"`
	CreatedAt       time.Time          `json:"created_at" firestore:"createdAt"`
	UpdatedAt       time.Time          `json:"updated_at" firestore:"updatedAt"`
}

func (c *Conversation) CorrelationID() string {
	return CorrelationIDs{OrderID: c.OrderID, DeliveryID: c.DeliveryID, SupportTicketID: c.SupportTicketID}.For(c.Type)
}

// Key is the normalized idempotency key of the conversation.
func (c *Conversation) Key() string {
	return ConversationKey(c.Participant1, c.Participant2, c.Type, c.CorrelationID())
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participant1 == userID || c.Participant2 == userID)
}

// Counterpart returns the other participant, or "" when userID is not one.
func (c *Conversation) Counterpart(userID string) string {
	switch userID {
	case c.Participant1:
		return c.Participant2
	case c.Participant2:
		return c.Participant1
	}
	return ""
}

// UnreadFor returns the unread counter of the given participant.
func (c *Conversation) UnreadFor(userID string) int {
	switch userID {
	case c.Participant1:
		return c.Unread1
	case c.Participant2:
		return c.Unread2
	}
	return 0
}

// UnreadSlot returns 1 or 2 for the counter owned by userID, 0 otherwise.
func (c *Conversation) UnreadSlot(userID string) int {
	switch userID {
	case c.Participant1:
		return 1
	case c.Participant2:
		return 2
	}
	return 0
}

// LastActivity is the ordering key of "list my conversations".
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// PairKey returns the two ids sorted, so the pair is unordered. Each id is
// length-prefixed, which keeps ids containing the separator from colliding.
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strconv.Itoa(len(pair[0])) + ":" + pair[0] + "|" + strconv.Itoa(len(pair[1])) + ":" + pair[1]
}

func ConversationKey(a, b string, t ConversationType, correlationID string) string {
	return PairKey(a, b) + "|" + string(t) + "|" + correlationID
}

type ConversationFilter struct {
	Type   ConversationType
	Status ConversationStatus
	Limit  int
}

func (f ConversationFilter) Matches(c *Conversation) bool {
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}
