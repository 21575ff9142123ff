package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"marketchat/internal/infrastructure/metrics"
	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/internal/usecase"
	"marketchat/pkg/errors"
)

var knownInbound = map[string]bool{
	EventAuthenticate:      true,
	EventJoinConversation:  true,
	EventLeaveConversation: true,
	EventSendMessage:       true,
	EventMarkRead:          true,
	EventTypingStart:       true,
	EventTypingStop:        true,
	EventPing:              true,
}

// HandleClientMessage processes one inbound frame. Failures are reported to
// this connection only and never close it.
func (m *Manager) HandleClientMessage(ctx context.Context, client *Client, raw []byte) {
	var in InboundMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		metrics.InboundEvents.WithLabelValues("malformed").Inc()
		m.sendError(client, "", errors.BadRequest("Invalid message format", err))
		return
	}

	label := in.Type
	if !knownInbound[label] {
		label = "unknown"
	}
	metrics.InboundEvents.WithLabelValues(label).Inc()
	m.touch(ctx, client)

	ctx, cancel := context.WithTimeout(ctx, m.opts.EventTimeout)
	defer cancel()

	var err error
	switch in.Type {
	case EventPing:
		m.reply(client, &in, EventPong, map[string]string{"status": "alive"})

	case EventJoinConversation:
		err = m.handleJoin(ctx, client, &in)

	case EventLeaveConversation:
		err = m.handleLeave(client, &in)

	case EventSendMessage:
		err = m.handleSendMessage(ctx, client, &in)

	case EventMarkRead:
		err = m.handleMarkRead(ctx, client, &in)

	case EventTypingStart, EventTypingStop:
		err = m.handleTyping(ctx, client, &in)

	case EventAuthenticate:
		err = errors.InvalidArgument("Connection is already authenticated")

	default:
		err = errors.InvalidArgument(fmt.Sprintf("Unknown event type %q", in.Type))
	}

	if err != nil {
		m.sendError(client, in.RequestID, err)
	}
}

// handleJoin re-checks participation against the store before admitting the
// connection, since group membership is only a cache.
func (m *Manager) handleJoin(ctx context.Context, client *Client, in *InboundMessage) error {
	conversationID := in.conversationID()
	if conversationID == "" {
		return errors.InvalidArgument("conversation_id is required")
	}

	ok, err := m.chat.IsParticipant(ctx, conversationID, client.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Forbidden("You are not a participant of this conversation", nil)
	}
	m.join(client, conversationID)

	joined := JoinedData{ConversationID: conversationID}
	if m.opts.JoinMarksRead {
		ids, err := m.chat.MarkRead(ctx, conversationID, client.UserID)
		if err != nil {
			client.log.Warnf("mark read on join of %s failed: %v", conversationID, err)
		}
		joined.MarkedRead = ids
	}
	m.reply(client, in, EventJoined, joined)
	return nil
}

func (m *Manager) handleLeave(client *Client, in *InboundMessage) error {
	conversationID := in.conversationID()
	if conversationID == "" {
		return errors.InvalidArgument("conversation_id is required")
	}
	m.leave(client, conversationID)
	m.reply(client, in, EventLeft, ConversationData{ConversationID: conversationID})
	return nil
}

// handleSendMessage commits through the messaging service, which publishes
// message-new to the whole group. A participant sending into a conversation
// this connection has not joined is admitted first, so the broadcast reaches
// it exactly once.
func (m *Manager) handleSendMessage(ctx context.Context, client *Client, in *InboundMessage) error {
	var data SendMessageData
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &data); err != nil {
			return errors.BadRequest("Invalid send-message payload", err)
		}
	}
	if data.ConversationID == "" {
		data.ConversationID = in.ConversationID
	}
	if data.ConversationID == "" {
		return errors.InvalidArgument("conversation_id is required")
	}

	joined := false
	if !m.inGroup(client, data.ConversationID) {
		ok, err := m.chat.IsParticipant(ctx, data.ConversationID, client.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Forbidden("You are not a participant of this conversation", nil)
		}
		m.join(client, data.ConversationID)
		joined = true
	}

	_, err := m.chat.Send(ctx, usecase.SendMessageInput{
		ConversationID: data.ConversationID,
		SenderID:       client.UserID,
		Content:        data.Content,
		Language:       data.Language,
		ReplyToID:      data.ReplyToID,
		Attachments:    data.Attachments,
	})
	if err != nil && joined {
		m.leave(client, data.ConversationID)
	}
	return err
}

func (m *Manager) handleMarkRead(ctx context.Context, client *Client, in *InboundMessage) error {
	conversationID := in.conversationID()
	if conversationID == "" {
		return errors.InvalidArgument("conversation_id is required")
	}
	_, err := m.chat.MarkRead(ctx, conversationID, client.UserID)
	return err
}

// handleTyping relays typing state to the rest of the group. Events beyond the
// typing rate are dropped silently.
func (m *Manager) handleTyping(ctx context.Context, client *Client, in *InboundMessage) error {
	conversationID := in.conversationID()
	if conversationID == "" {
		return errors.InvalidArgument("conversation_id is required")
	}
	if !m.inGroup(client, conversationID) {
		return errors.Forbidden("Join the conversation before sending typing events", nil)
	}
	if m.opts.RateLimiter != nil {
		if ok, _ := m.opts.RateLimiter.Allow(client.UserID, ratelimit.ActionTyping); !ok {
			client.log.Debugf("typing event in %s rate limited", conversationID)
			return nil
		}
	}

	m.publish(ctx, Frame{
		Kind:           TargetConversation,
		ID:             conversationID,
		EventType:      in.Type,
		ConversationID: conversationID,
		ExcludeUser:    client.UserID,
	}, newMessage(in.Type, conversationID, TypingData{ConversationID: conversationID, UserID: client.UserID}))
	return nil
}

func (m *Manager) reply(client *Client, in *InboundMessage, eventType string, data interface{}) {
	msg := newMessage(eventType, in.conversationID(), data)
	msg.RequestID = in.RequestID
	m.sendTo(client, msg)
}

func (m *Manager) sendError(client *Client, requestID string, err error) {
	appErr := errors.As(err)
	if appErr.Code == errors.CodeInternal {
		client.log.Errorf("event failed: %v", err)
	}

	msg := newMessage(EventError, "", ErrorData{Code: appErr.Code, Message: appErr.Message})
	msg.RequestID = requestID
	m.sendTo(client, msg)
}
