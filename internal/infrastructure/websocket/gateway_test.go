package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/adapter/repository"
	"marketchat/internal/domain/entity"
	domainrepo "marketchat/internal/domain/repository"
	"marketchat/internal/infrastructure/presence"
	"marketchat/internal/usecase"
	"marketchat/pkg/errors"
)

type prefixVerifier struct{}

// VerifyToken accepts "token-<user id>".
func (prefixVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if !strings.HasPrefix(token, "token-") {
		return "", fmt.Errorf("bad token")
	}
	return strings.TrimPrefix(token, "token-"), nil
}

type gateway struct {
	server    *httptest.Server
	manager   *Manager
	messaging *usecase.MessagingUseCase
	chats     domainrepo.ChatRepository
	tracker   *presence.MemoryTracker
	conv      *entity.Conversation
}

func newGateway(t *testing.T, opts Options) *gateway {
	t.Helper()
	chats := repository.NewMemoryChatRepository()
	accounts := repository.NewMemoryAccountRepository(
		&entity.Account{ID: "buyer-1", AccountType: entity.AccountBuyer},
		&entity.Account{ID: "seller-1", AccountType: entity.AccountSeller},
		&entity.Account{ID: "seller-2", AccountType: entity.AccountSeller},
	)
	tracker := presence.NewMemoryTracker(presence.DefaultWindow)
	manager := NewManager(tracker, opts)
	messaging := usecase.NewMessagingUseCase(chats, accounts, repository.NewMemoryReportRepository(),
		usecase.NewAuditUseCase(repository.NewMemoryAuditRepository()), manager, usecase.MessagingOptions{Languages: []string{"en"}})
	manager.SetChatService(messaging)

	conv, _, err := messaging.CreateOrGetConversation(context.Background(), "buyer-1", usecase.CreateConversationInput{
		CounterpartID: "seller-1",
		Type:          "ORDER",
	})
	require.NoError(t, err)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID string
		if token := TokenFromRequest(r); token != "" {
			uid, err := prefixVerifier{}.VerifyToken(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			userID = uid
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if userID == "" {
			uid, err := AwaitAuthentication(r.Context(), conn, prefixVerifier{}, 200*time.Millisecond)
			if err != nil {
				RejectConnection(conn, errors.As(err).Message)
				return
			}
			userID = uid
		}
		manager.Serve(conn, userID)
	}))
	t.Cleanup(func() {
		manager.Shutdown()
		server.Close()
	})

	return &gateway{server: server, manager: manager, messaging: messaging, chats: chats, tracker: tracker, conv: conv}
}

func (g *gateway) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http")
	if token != "" {
		url += "?access_token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// connect dials as userID and waits until the gateway registered it.
func (g *gateway) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	before := g.manager.ConnectionCount(userID)
	conn := g.dial(t, "token-"+userID)
	require.Eventually(t, func() bool {
		return g.manager.ConnectionCount(userID) == before+1
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

type inboundFrame struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	RequestID      string      `json:"request_id,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

type receivedFrame struct {
	Type           string                 `json:"type"`
	ConversationID string                 `json:"conversation_id"`
	RequestID      string                 `json:"request_id"`
	Data           map[string]interface{} `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, frame inboundFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

// expect reads frames until one of the wanted type arrives, skipping others.
func expect(t *testing.T, conn *websocket.Conn, eventType string) receivedFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var frame receivedFrame
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %s", eventType)
		if frame.Type == eventType {
			return frame
		}
	}
}

// expectNext fails if the next frame is not of the wanted type.
func expectNext(t *testing.T, conn *websocket.Conn, eventType string) receivedFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	var frame receivedFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, eventType, frame.Type, "unexpected frame %+v", frame)
	return frame
}

func TestSendMessageReachesWholeGroupIncludingSender(t *testing.T) {
	g := newGateway(t, Options{})
	seller := g.connect(t, "seller-1")
	buyer := g.connect(t, "buyer-1")
	expect(t, seller, EventUserOnline)

	send(t, buyer, inboundFrame{
		Type:           EventSendMessage,
		ConversationID: g.conv.ID,
		RequestID:      "r1",
		Data:           map[string]string{"content": "Is it still available?", "language": "en"},
	})

	atSeller := expect(t, seller, EventMessageNew)
	atBuyer := expect(t, buyer, EventMessageNew)
	assert.Equal(t, "Is it still available?", atSeller.Data["content"])
	assert.Equal(t, atSeller.Data["id"], atBuyer.Data["id"])
	assert.Equal(t, g.conv.ID, atSeller.ConversationID)

	stored, err := g.chats.GetByID(context.Background(), g.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadFor("seller-1"))
}

func TestFailedEventsOnlyReachOriginator(t *testing.T) {
	g := newGateway(t, Options{})
	seller := g.connect(t, "seller-1")
	buyer := g.connect(t, "buyer-1")
	expect(t, seller, EventUserOnline)

	send(t, buyer, inboundFrame{Type: EventSendMessage, ConversationID: g.conv.ID, RequestID: "empty", Data: map[string]string{"content": ""}})
	failure := expectNext(t, buyer, EventError)
	assert.Equal(t, "empty", failure.RequestID)
	assert.Equal(t, errors.CodeInvalidArgument, failure.Data["code"])

	send(t, buyer, inboundFrame{Type: "shout", RequestID: "unknown"})
	failure = expectNext(t, buyer, EventError)
	assert.Equal(t, "unknown", failure.RequestID)

	require.NoError(t, buyer.WriteMessage(websocket.TextMessage, []byte("{not json")))
	expectNext(t, buyer, EventError)

	send(t, buyer, inboundFrame{Type: EventPing, RequestID: "still-open"})
	assert.Equal(t, "still-open", expectNext(t, buyer, EventPong).RequestID)

	send(t, seller, inboundFrame{Type: EventPing})
	expectNext(t, seller, EventPong)
}

func TestJoinRevalidatesParticipation(t *testing.T) {
	g := newGateway(t, Options{})
	outsider := g.connect(t, "seller-2")

	send(t, outsider, inboundFrame{Type: EventJoinConversation, ConversationID: g.conv.ID, RequestID: "j1"})
	failure := expectNext(t, outsider, EventError)
	assert.Equal(t, errors.CodeForbidden, failure.Data["code"])
	assert.Equal(t, "j1", failure.RequestID)
	assert.Equal(t, 0, g.manager.GroupSize(g.conv.ID))

	send(t, outsider, inboundFrame{Type: EventJoinConversation, ConversationID: "missing"})
	assert.Equal(t, errors.CodeNotFound, expectNext(t, outsider, EventError).Data["code"])
}

func TestJoinMarksConversationRead(t *testing.T) {
	g := newGateway(t, Options{JoinMarksRead: true})
	msg, err := g.messaging.Send(context.Background(), usecase.SendMessageInput{ConversationID: g.conv.ID, SenderID: "seller-1", Content: "Shipped today"})
	require.NoError(t, err)

	buyer := g.connect(t, "buyer-1")
	send(t, buyer, inboundFrame{Type: EventJoinConversation, Data: map[string]string{"conversation_id": g.conv.ID}})

	joined := expect(t, buyer, EventJoined)
	assert.Equal(t, []interface{}{msg.ID}, joined.Data["marked_read"])

	stored, err := g.chats.GetByID(context.Background(), g.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UnreadFor("buyer-1"))
}

func TestJoinWithoutMarkRead(t *testing.T) {
	g := newGateway(t, Options{JoinMarksRead: false})
	_, err := g.messaging.Send(context.Background(), usecase.SendMessageInput{ConversationID: g.conv.ID, SenderID: "seller-1", Content: "Shipped today"})
	require.NoError(t, err)

	buyer := g.connect(t, "buyer-1")
	send(t, buyer, inboundFrame{Type: EventJoinConversation, ConversationID: g.conv.ID})
	expect(t, buyer, EventJoined)

	stored, err := g.chats.GetByID(context.Background(), g.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadFor("buyer-1"))

	send(t, buyer, inboundFrame{Type: EventMarkRead, ConversationID: g.conv.ID})
	read := expect(t, buyer, EventMessagesRead)
	assert.Equal(t, "buyer-1", read.Data["reader_id"])
}

func TestTypingRequiresMembershipAndSkipsTypist(t *testing.T) {
	g := newGateway(t, Options{})
	seller := g.connect(t, "seller-1")
	buyer := g.connect(t, "buyer-1")
	expect(t, seller, EventUserOnline)

	send(t, buyer, inboundFrame{Type: EventLeaveConversation, ConversationID: g.conv.ID})
	expectNext(t, buyer, EventLeft)

	send(t, buyer, inboundFrame{Type: EventTypingStart, ConversationID: g.conv.ID})
	assert.Equal(t, errors.CodeForbidden, expectNext(t, buyer, EventError).Data["code"])

	send(t, buyer, inboundFrame{Type: EventJoinConversation, ConversationID: g.conv.ID})
	expect(t, buyer, EventJoined)

	send(t, buyer, inboundFrame{Type: EventTypingStart, ConversationID: g.conv.ID})
	typing := expect(t, seller, EventTypingStart)
	assert.Equal(t, "buyer-1", typing.Data["user_id"])

	send(t, buyer, inboundFrame{Type: EventPing})
	expectNext(t, buyer, EventPong)
}

func TestAuthenticateFrame(t *testing.T) {
	g := newGateway(t, Options{})
	conn := g.dial(t, "")

	send(t, conn, inboundFrame{Type: EventAuthenticate, Data: map[string]string{"token": "token-buyer-1"}})
	require.Eventually(t, func() bool {
		return g.manager.ConnectionCount("buyer-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	send(t, conn, inboundFrame{Type: EventPing})
	expectNext(t, conn, EventPong)

	online, err := g.tracker.IsOnline(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestHandshakeRejections(t *testing.T) {
	g := newGateway(t, Options{})

	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "?access_token=forged"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	silent := g.dial(t, "")
	silent.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = silent.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	wrong := g.dial(t, "")
	send(t, wrong, inboundFrame{Type: EventAuthenticate, Data: map[string]string{"token": "forged"}})
	wrong.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = wrong.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}
