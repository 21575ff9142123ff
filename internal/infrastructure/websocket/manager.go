package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/service"
	"marketchat/internal/infrastructure/metrics"
	"marketchat/internal/infrastructure/ratelimit"
	"marketchat/internal/usecase"
	"marketchat/pkg/logger"
)

// ChatService is the part of the messaging service the gateway drives.
type ChatService interface {
	Send(ctx context.Context, input usecase.SendMessageInput) (*entity.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListActiveConversationIDs(ctx context.Context, userID string) ([]string, error)
}

type Options struct {
	SendBuffer    int
	JoinMarksRead bool
	EventTimeout  time.Duration
	RateLimiter   *ratelimit.RateLimiter
}

// Manager tracks local connections and the broadcast groups they belong to.
// Groups are a cache: joins are re-validated against the store.
type Manager struct {
	chat     ChatService
	presence service.PresenceTracker
	relay    Relay
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	userLocks *keyedLocks

	mu          sync.RWMutex
	clients     map[string]map[string]*Client  // user id -> connection id -> client
	groups      map[string]map[string]*Client  // conversation id -> connection id -> client
	memberships map[string]map[string]struct{} // connection id -> conversation ids
}

// NewManager builds a gateway without a chat service. The messaging service
// publishes through the manager, so SetChatService closes the loop once both
// exist.
func NewManager(presence service.PresenceTracker, opts Options) *Manager {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		presence:    presence,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		userLocks:   newKeyedLocks(),
		clients:     make(map[string]map[string]*Client),
		groups:      make(map[string]map[string]*Client),
		memberships: make(map[string]map[string]struct{}),
	}
}

func (m *Manager) SetChatService(chat ChatService) {
	m.chat = chat
}

// UseRelay routes published events through relay so every node delivers
// them. It must be called before Run.
func (m *Manager) UseRelay(relay Relay) {
	m.relay = relay
}

// Run subscribes to the relay, if any, and blocks until ctx is done. All
// connections are closed on return.
func (m *Manager) Run(ctx context.Context) error {
	if m.relay != nil {
		if err := m.relay.Subscribe(m.deliver); err != nil {
			return err
		}
	}
	<-ctx.Done()
	m.Shutdown()
	return nil
}

func (m *Manager) Shutdown() {
	m.cancel()

	m.mu.RLock()
	var all []*Client
	for _, conns := range m.clients {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
}

// Serve registers an authenticated connection and starts its pumps.
func (m *Manager) Serve(conn *websocket.Conn, userID string) *Client {
	client := newClient(conn, userID, m.opts.SendBuffer)
	m.Register(m.ctx, client)

	go client.WritePump()
	go client.ReadPump(m.ctx, m)
	return client
}

// Register adds the client, subscribes it to every active conversation of
// its user and announces the user when this is their first connection.
func (m *Manager) Register(ctx context.Context, c *Client) {
	unlock := m.userLocks.lock(c.UserID)
	defer unlock()

	m.mu.Lock()
	conns, ok := m.clients[c.UserID]
	if !ok {
		conns = make(map[string]*Client)
		m.clients[c.UserID] = conns
	}
	conns[c.ID] = c
	m.memberships[c.ID] = make(map[string]struct{})
	first := len(conns) == 1
	m.mu.Unlock()

	metrics.OpenConnections.Inc()
	c.log.Infof("client registered")

	conversationIDs, err := m.chat.ListActiveConversationIDs(ctx, c.UserID)
	if err != nil {
		c.log.Errorf("failed to load active conversations: %v", err)
	}
	for _, id := range conversationIDs {
		m.join(c, id)
	}

	if err := m.presence.SetOnline(ctx, c.UserID, c.ID); err != nil {
		c.log.Warnf("presence set online failed: %v", err)
		metrics.PresenceErrors.Inc()
	}
	if first {
		m.announcePresence(ctx, EventUserOnline, c.UserID, conversationIDs)
	}
}

// Unregister removes the client from every group. The user goes offline when
// their last local connection is gone. Calling it twice is harmless.
//
// Register and Unregister hold the user's lock across the connection count
// and the tracker write, so a reconnect racing a disconnect cannot leave the
// tracker offline while a connection is open.
func (m *Manager) Unregister(c *Client) {
	unlock := m.userLocks.lock(c.UserID)
	defer unlock()

	m.mu.Lock()
	conns, ok := m.clients[c.UserID]
	if !ok || conns[c.ID] == nil {
		m.mu.Unlock()
		c.close()
		return
	}
	delete(conns, c.ID)
	last := len(conns) == 0
	if last {
		delete(m.clients, c.UserID)
	}

	var left []string
	for conversationID := range m.memberships[c.ID] {
		left = append(left, conversationID)
		m.removeFromGroupLocked(conversationID, c.ID)
	}
	delete(m.memberships, c.ID)
	m.mu.Unlock()

	c.close()
	metrics.OpenConnections.Dec()
	c.log.Infof("client unregistered")

	ctx := context.Background()
	if err := m.presence.SetOffline(ctx, c.UserID, c.ID); err != nil {
		c.log.Warnf("presence set offline failed: %v", err)
		metrics.PresenceErrors.Inc()
	}
	if !last {
		return
	}
	if online, err := m.presence.IsOnline(ctx, c.UserID); err == nil && online {
		// another node still holds the user
		return
	}
	m.announcePresence(ctx, EventUserOffline, c.UserID, left)
}

func (m *Manager) announcePresence(ctx context.Context, eventType, userID string, conversationIDs []string) {
	data := PresenceData{UserID: userID, At: time.Now().UTC().Format(time.RFC3339)}
	for _, id := range conversationIDs {
		m.publish(ctx, Frame{
			Kind:           TargetConversation,
			ID:             id,
			EventType:      eventType,
			ConversationID: id,
			ExcludeUser:    userID,
		}, newMessage(eventType, id, data))
	}
}

func (m *Manager) join(c *Client, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	memberships, ok := m.memberships[c.ID]
	if !ok {
		return
	}
	group, ok := m.groups[conversationID]
	if !ok {
		group = make(map[string]*Client)
		m.groups[conversationID] = group
	}
	group[c.ID] = c
	memberships[conversationID] = struct{}{}
}

func (m *Manager) leave(c *Client, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeFromGroupLocked(conversationID, c.ID)
	delete(m.memberships[c.ID], conversationID)
}

func (m *Manager) removeFromGroupLocked(conversationID, clientID string) {
	group, ok := m.groups[conversationID]
	if !ok {
		return
	}
	delete(group, clientID)
	if len(group) == 0 {
		delete(m.groups, conversationID)
	}
}

func (m *Manager) inGroup(c *Client, conversationID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.groups[conversationID][c.ID]
	return ok
}

// GroupSize returns the number of local connections in a conversation group.
func (m *Manager) GroupSize(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups[conversationID])
}

// ConnectionCount returns the number of local connections of a user.
func (m *Manager) ConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[userID])
}

// PublishToConversation implements usecase.EventPublisher.
func (m *Manager) PublishToConversation(ctx context.Context, conversationID, eventType string, payload interface{}) {
	m.publish(ctx, Frame{
		Kind:           TargetConversation,
		ID:             conversationID,
		EventType:      eventType,
		ConversationID: conversationID,
	}, newMessage(eventType, conversationID, payload))
}

// PublishToUser implements usecase.EventPublisher. A conversation-new event
// also subscribes the user's connections to the new conversation.
func (m *Manager) PublishToUser(ctx context.Context, userID, eventType string, payload interface{}) {
	var conversationID string
	if conv, ok := payload.(*entity.Conversation); ok {
		conversationID = conv.ID
	}
	m.publish(ctx, Frame{
		Kind:           TargetUser,
		ID:             userID,
		EventType:      eventType,
		ConversationID: conversationID,
	}, newMessage(eventType, conversationID, payload))
}

func (m *Manager) publish(ctx context.Context, frame Frame, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("WebSocket: failed to marshal %s event: %v", frame.EventType, err)
		return
	}
	frame.Data = data

	if m.relay != nil {
		err := m.relay.Publish(ctx, frame)
		if err == nil {
			return
		}
		logger.Warn("WebSocket: relay publish of %s failed, delivering locally: %v", frame.EventType, err)
	}
	m.deliver(frame)
}

// deliver hands a frame to the local connections it targets. A client whose
// buffer is full is disconnected; the others are unaffected.
func (m *Manager) deliver(frame Frame) {
	var targets []*Client

	switch frame.Kind {
	case TargetConversation:
		m.mu.RLock()
		for _, c := range m.groups[frame.ID] {
			if frame.ExcludeUser != "" && c.UserID == frame.ExcludeUser {
				continue
			}
			targets = append(targets, c)
		}
		m.mu.RUnlock()

	case TargetUser:
		m.mu.RLock()
		for _, c := range m.clients[frame.ID] {
			targets = append(targets, c)
		}
		m.mu.RUnlock()

		if frame.EventType == EventConversationNew && frame.ConversationID != "" {
			for _, c := range targets {
				m.join(c, frame.ConversationID)
			}
		}
	}

	for _, c := range targets {
		if c.enqueue(frame.Data) {
			metrics.OutboundEvents.WithLabelValues(frame.EventType).Inc()
			continue
		}
		m.drop(c)
	}
}

func (m *Manager) drop(c *Client) {
	metrics.DroppedClients.Inc()
	c.log.Warnf("send buffer full, disconnecting")
	c.close()
}

// sendTo replies to a single connection.
func (m *Manager) sendTo(c *Client, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Errorf("failed to marshal %s reply: %v", msg.Type, err)
		return
	}
	if c.enqueue(data) {
		metrics.OutboundEvents.WithLabelValues(msg.Type).Inc()
		return
	}
	m.drop(c)
}

// touch refreshes the client's presence. A client that already unregistered
// is skipped so a late touch cannot revive it.
func (m *Manager) touch(ctx context.Context, c *Client) {
	unlock := m.userLocks.lock(c.UserID)
	defer unlock()

	m.mu.RLock()
	registered := m.clients[c.UserID][c.ID] != nil
	m.mu.RUnlock()
	if !registered {
		return
	}
	if err := m.presence.Touch(ctx, c.UserID, c.ID); err != nil {
		c.log.Debugf("presence touch failed: %v", err)
		metrics.PresenceErrors.Inc()
	}
}
