package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/domain/entity"
	"marketchat/internal/infrastructure/presence"
	"marketchat/internal/usecase"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
)

type fakeChat struct {
	active map[string][]string
	// gateway, when set, receives message-new for every sent message.
	gateway *Manager
}

func (f *fakeChat) Send(ctx context.Context, input usecase.SendMessageInput) (*entity.Message, error) {
	if input.Content == "" {
		return nil, errors.InvalidArgument("content is required")
	}
	msg := &entity.Message{ID: "m1", ConversationID: input.ConversationID, SenderID: input.SenderID}
	if f.gateway != nil {
		f.gateway.PublishToConversation(ctx, input.ConversationID, EventMessageNew, msg)
	}
	return msg, nil
}

func (f *fakeChat) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	return nil, nil
}

func (f *fakeChat) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	for _, id := range f.active[userID] {
		if id == conversationID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeChat) ListActiveConversationIDs(ctx context.Context, userID string) ([]string, error) {
	return f.active[userID], nil
}

func detachedClient(userID string, buffer int) *Client {
	return &Client{
		ID:     userID + "-" + string(rune('a'+buffer)),
		UserID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		log:    logger.With("user", userID),
	}
}

func newTestManager(active map[string][]string) (*Manager, *presence.MemoryTracker) {
	tracker := presence.NewMemoryTracker(presence.DefaultWindow)
	m := NewManager(tracker, Options{SendBuffer: 8})
	m.SetChatService(&fakeChat{active: active})
	return m, tracker
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case raw := <-c.send:
			var msg WSMessage
			if err := json.Unmarshal(raw, &msg); err == nil {
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func isClosed(c *Client) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func TestRegisterSubscribesActiveConversations(t *testing.T) {
	ctx := context.Background()
	m, tracker := newTestManager(map[string][]string{"buyer-1": {"conv-1", "conv-2"}, "seller-1": {"conv-1"}})

	seller := detachedClient("seller-1", 8)
	m.Register(ctx, seller)
	buyer := detachedClient("buyer-1", 8)
	m.Register(ctx, buyer)

	assert.Equal(t, 2, m.GroupSize("conv-1"))
	assert.Equal(t, 1, m.GroupSize("conv-2"))

	online, err := tracker.IsOnline(ctx, "buyer-1")
	require.NoError(t, err)
	assert.True(t, online)

	events := drain(seller)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserOnline, events[0].Type)
	assert.Empty(t, drain(buyer), "the user is not told about themselves")
}

func TestPresenceFollowsLastConnection(t *testing.T) {
	ctx := context.Background()
	m, tracker := newTestManager(map[string][]string{"buyer-1": {"conv-1"}, "seller-1": {"conv-1"}})

	seller := detachedClient("seller-1", 8)
	m.Register(ctx, seller)
	phone := detachedClient("buyer-1", 8)
	laptop := detachedClient("buyer-1", 9)
	m.Register(ctx, phone)
	m.Register(ctx, laptop)
	drain(seller)

	m.Unregister(phone)
	online, err := tracker.IsOnline(ctx, "buyer-1")
	require.NoError(t, err)
	assert.True(t, online)
	assert.Empty(t, drain(seller))

	m.Unregister(laptop)
	m.Unregister(laptop)
	online, err = tracker.IsOnline(ctx, "buyer-1")
	require.NoError(t, err)
	assert.False(t, online)
	assert.Equal(t, 0, m.ConnectionCount("buyer-1"))
	assert.Equal(t, 1, m.GroupSize("conv-1"))

	events := drain(seller)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserOffline, events[0].Type)
}

func TestFullBufferDropsOnlyThatClient(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(map[string][]string{"buyer-1": {"conv-1"}, "seller-1": {"conv-1"}})

	slow := detachedClient("buyer-1", 1)
	fast := detachedClient("seller-1", 8)
	m.Register(ctx, slow)
	m.Register(ctx, fast)
	drain(fast)

	for i := 0; i < 3; i++ {
		m.PublishToConversation(ctx, "conv-1", EventMessageNew, map[string]int{"n": i})
	}

	assert.True(t, isClosed(slow))
	assert.False(t, isClosed(fast))
	assert.Len(t, drain(fast), 3)
}

func TestConversationNewSubscribesUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(nil)

	c := detachedClient("buyer-1", 8)
	m.Register(ctx, c)
	m.PublishToUser(ctx, "buyer-1", EventConversationNew, &entity.Conversation{ID: "conv-9"})

	assert.Equal(t, 1, m.GroupSize("conv-9"))
	events := drain(c)
	require.Len(t, events, 1)
	assert.Equal(t, "conv-9", events[0].ConversationID)
}

// loopbackRelay connects several managers as if they were nodes on one bus.
type loopbackRelay struct {
	mu   sync.Mutex
	subs []func(Frame)
}

func (r *loopbackRelay) Publish(ctx context.Context, frame Frame) error {
	r.mu.Lock()
	subs := append([]func(Frame){}, r.subs...)
	r.mu.Unlock()
	for _, deliver := range subs {
		deliver(frame)
	}
	return nil
}

func (r *loopbackRelay) Subscribe(deliver func(Frame)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, deliver)
	return nil
}

func (r *loopbackRelay) Close() error { return nil }

func TestRelayDeliversAcrossNodes(t *testing.T) {
	ctx := context.Background()
	active := map[string][]string{"buyer-1": {"conv-1"}, "seller-1": {"conv-1"}}
	bus := &loopbackRelay{}

	nodeA, _ := newTestManager(active)
	nodeB, _ := newTestManager(active)
	for _, node := range []*Manager{nodeA, nodeB} {
		node.UseRelay(bus)
		require.NoError(t, bus.Subscribe(node.deliver))
	}

	buyer := detachedClient("buyer-1", 8)
	seller := detachedClient("seller-1", 8)
	nodeA.Register(ctx, buyer)
	nodeB.Register(ctx, seller)
	drain(buyer)
	drain(seller)

	nodeA.PublishToConversation(ctx, "conv-1", EventMessageNew, map[string]string{"id": "m1"})

	assert.Len(t, drain(buyer), 1)
	events := drain(seller)
	require.Len(t, events, 1)
	assert.Equal(t, EventMessageNew, events[0].Type)
}

// gatedTracker parks SetOffline until release is closed.
type gatedTracker struct {
	*presence.MemoryTracker
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTracker) SetOffline(ctx context.Context, userID, connectionRef string) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.MemoryTracker.SetOffline(ctx, userID, connectionRef)
}

func TestReconnectDuringDisconnectStaysOnline(t *testing.T) {
	ctx := context.Background()
	tracker := &gatedTracker{
		MemoryTracker: presence.NewMemoryTracker(presence.DefaultWindow),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	m := NewManager(tracker, Options{SendBuffer: 8})
	m.SetChatService(&fakeChat{active: map[string][]string{"buyer-1": {"conv-1"}}})

	old := detachedClient("buyer-1", 8)
	m.Register(ctx, old)

	unregistered := make(chan struct{})
	go func() {
		defer close(unregistered)
		m.Unregister(old)
	}()
	<-tracker.entered

	fresh := detachedClient("buyer-1", 9)
	registered := make(chan struct{})
	go func() {
		defer close(registered)
		m.Register(ctx, fresh)
	}()

	// give the reconnect a chance to overtake the pending offline write
	select {
	case <-registered:
	case <-time.After(50 * time.Millisecond):
	}
	close(tracker.release)
	<-unregistered
	<-registered

	assert.Equal(t, 1, m.ConnectionCount("buyer-1"))
	online, err := tracker.IsOnline(ctx, "buyer-1")
	require.NoError(t, err)
	assert.True(t, online, "the reconnected user must not be left offline")
}

func TestTouchIgnoresUnregisteredClient(t *testing.T) {
	ctx := context.Background()
	m, tracker := newTestManager(map[string][]string{"buyer-1": {"conv-1"}})

	c := detachedClient("buyer-1", 8)
	m.Register(ctx, c)
	m.Unregister(c)
	m.touch(ctx, c)

	online, err := tracker.IsOnline(ctx, "buyer-1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestSendOutsideGroupDeliversOnce(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{active: map[string][]string{"buyer-1": {"conv-1"}}}
	m := NewManager(presence.NewMemoryTracker(presence.DefaultWindow), Options{SendBuffer: 8})
	chat.gateway = m
	m.SetChatService(chat)

	c := detachedClient("buyer-1", 8)
	m.Register(ctx, c)
	m.leave(c, "conv-1")
	require.False(t, m.inGroup(c, "conv-1"))

	m.HandleClientMessage(ctx, c, []byte(`{"type":"send-message","conversation_id":"conv-1","request_id":"r1","data":{"content":"hi"}}`))

	assert.True(t, m.inGroup(c, "conv-1"))
	events := drain(c)
	require.Len(t, events, 1)
	assert.Equal(t, EventMessageNew, events[0].Type)
}

func TestFailedSendOutsideGroupDoesNotJoin(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{active: map[string][]string{"buyer-1": {"conv-1"}}}
	m := NewManager(presence.NewMemoryTracker(presence.DefaultWindow), Options{SendBuffer: 8})
	chat.gateway = m
	m.SetChatService(chat)

	c := detachedClient("buyer-1", 8)
	m.Register(ctx, c)
	m.leave(c, "conv-1")

	m.HandleClientMessage(ctx, c, []byte(`{"type":"send-message","conversation_id":"conv-1","data":{"content":""}}`))
	assert.False(t, m.inGroup(c, "conv-1"))

	m.HandleClientMessage(ctx, c, []byte(`{"type":"send-message","conversation_id":"conv-2","data":{"content":"hi"}}`))
	assert.False(t, m.inGroup(c, "conv-2"))

	events := drain(c)
	require.Len(t, events, 2)
	for _, event := range events {
		assert.Equal(t, EventError, event.Type)
	}
	data, ok := events[1].Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, errors.CodeForbidden, data["code"])
}
