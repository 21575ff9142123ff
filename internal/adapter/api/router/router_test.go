package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/adapter/api"
	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
	"marketchat/internal/adapter/repository"
	"marketchat/internal/domain/entity"
	"marketchat/internal/infrastructure/presence"
	"marketchat/internal/infrastructure/ratelimit"
	ws "marketchat/internal/infrastructure/websocket"
	"marketchat/internal/usecase"
)

type prefixVerifier struct{}

func (prefixVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if !strings.HasPrefix(token, "token-") {
		return "", fmt.Errorf("bad token")
	}
	return strings.TrimPrefix(token, "token-"), nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T, policies map[string]ratelimit.Policy) *echo.Echo {
	t.Helper()
	accounts := repository.NewMemoryAccountRepository(
		&entity.Account{ID: "buyer-1", AccountType: entity.AccountBuyer},
		&entity.Account{ID: "seller-1", AccountType: entity.AccountSeller},
		&entity.Account{ID: "buyer-2", AccountType: entity.AccountBuyer},
		&entity.Account{ID: "mod-1", AccountType: entity.AccountModerator},
	)
	chats := repository.NewMemoryChatRepository()
	reports := repository.NewMemoryReportRepository()
	audit := usecase.NewAuditUseCase(repository.NewMemoryAuditRepository())
	tracker := presence.NewMemoryTracker(time.Minute)

	manager := ws.NewManager(tracker, ws.Options{})
	messaging := usecase.NewMessagingUseCase(chats, accounts, reports, audit, manager, usecase.MessagingOptions{
		Languages: []string{"en", "fr"},
	})
	manager.SetChatService(messaging)
	moderation := usecase.NewModerationUseCase(accounts, reports, audit, messaging)
	presenceUC := usecase.NewPresenceUseCase(tracker)

	handler.Setup(messaging, moderation, presenceUC)
	handler.SetupHealthHandler()
	handler.SetupDevTokenHandler(accounts, func(ctx context.Context, userID string) (string, error) {
		return "token-" + userID, nil
	})

	if policies == nil {
		policies = map[string]ratelimit.Policy{ratelimit.ActionHTTP: {Burst: 1000, Every: time.Millisecond}}
	}

	e := echo.New()
	e.Validator = api.NewValidator()
	Setup(
		e,
		middleware.NewAuthMiddleware(prefixVerifier{}),
		middleware.NewModerationMiddleware(moderation),
		ratelimit.NewRateLimiter(policies),
		handler.NewWebSocketHandler(manager, prefixVerifier{}, time.Second, nil),
		"development",
	)
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, user, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer token-"+user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func createOrder(t *testing.T, e *echo.Echo) entity.Conversation {
	t.Helper()
	rec, env := call(t, e, http.MethodPost, "/v1/conversations", "buyer-1",
		`{"counterpart_id":"seller-1","type":"ORDER","order_id":"order-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var conv entity.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &conv))
	return conv
}

func TestConversationRoutesRequireBearerToken(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := call(t, e, http.MethodGet, "/v1/conversations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateConversationReturnsCreatedThenOK(t *testing.T) {
	e := newTestServer(t, nil)

	conv := createOrder(t, e)
	assert.Equal(t, entity.ConversationActive, conv.Status)

	rec, env := call(t, e, http.MethodPost, "/v1/conversations", "seller-1",
		`{"counterpart_id":"buyer-1","type":"ORDER","order_id":"order-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var again entity.Conversation
	require.NoError(t, json.Unmarshal(env.Data, &again))
	assert.Equal(t, conv.ID, again.ID)
}

func TestCreateConversationValidation(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := call(t, e, http.MethodPost, "/v1/conversations", "buyer-1", `{"counterpart_id":"seller-1","type":"GOSSIP"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, env = call(t, e, http.MethodPost, "/v1/conversations", "buyer-1", `{"counterpart_id":"buyer-2","type":"ORDER"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestSendListAndReadMessages(t *testing.T) {
	e := newTestServer(t, nil)
	conv := createOrder(t, e)
	base := "/v1/conversations/" + conv.ID

	for i := 0; i < 3; i++ {
		rec, _ := call(t, e, http.MethodPost, base+"/messages", "buyer-1", fmt.Sprintf(`{"content":"hello %d","language":"en"}`, i))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, env := call(t, e, http.MethodGet, base+"/messages?limit=2", "seller-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items      []entity.Message `json:"items"`
		HasMore    bool             `json:"has_more"`
		NextCursor string           `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextCursor)

	rec, env = call(t, e, http.MethodGet, base+"/messages?limit=2&cursor="+page.NextCursor, "seller-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	rec, env = call(t, e, http.MethodPut, base+"/read", "seller-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var marked struct {
		MarkedRead []string `json:"marked_read"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &marked))
	assert.Len(t, marked.MarkedRead, 3)

	rec, _ = call(t, e, http.MethodGet, base+"/messages", "buyer-2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteAndReportMessage(t *testing.T) {
	e := newTestServer(t, nil)
	conv := createOrder(t, e)

	rec, env := call(t, e, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "buyer-1", `{"content":"rude words"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var msg entity.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))

	rec, _ = call(t, e, http.MethodDelete, "/v1/messages/"+msg.ID, "seller-1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = call(t, e, http.MethodPost, "/v1/messages/"+msg.ID+"/reports", "seller-1", `{"reason":"HARASSMENT","description":"not nice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = call(t, e, http.MethodDelete, "/v1/messages/"+msg.ID, "buyer-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted entity.Message
	require.NoError(t, json.Unmarshal(env.Data, &deleted))
	assert.Equal(t, entity.MessageDeleted, deleted.Status)
	require.NotNil(t, deleted.Content)
	assert.Equal(t, entity.DeletedPlaceholder, *deleted.Content)
	assert.NotContains(t, rec.Body.String(), "rude words")

	rec, env = call(t, e, http.MethodDelete, "/v1/messages/"+msg.ID, "buyer-1", "")
	require.Equal(t, http.StatusOK, rec.Code, "deleting twice returns the deleted message")
	var again entity.Message
	require.NoError(t, json.Unmarshal(env.Data, &again))
	assert.Equal(t, entity.MessageDeleted, again.Status)
	assert.Equal(t, entity.DeletedPlaceholder, entity.StringValue(again.Content))

	rec, _ = call(t, e, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", "seller-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "rude words")
	assert.Contains(t, rec.Body.String(), entity.DeletedPlaceholder)
}

func TestModerationRoutesRequireStaff(t *testing.T) {
	e := newTestServer(t, nil)
	conv := createOrder(t, e)

	_, env := call(t, e, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", "buyer-1", `{"content":"spam spam"}`)
	var msg entity.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	_, env = call(t, e, http.MethodPost, "/v1/messages/"+msg.ID+"/reports", "seller-1", `{"reason":"SPAM"}`)
	var report entity.MessageReport
	require.NoError(t, json.Unmarshal(env.Data, &report))

	rec, _ := call(t, e, http.MethodGet, "/v1/moderation/reports", "buyer-1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = call(t, e, http.MethodGet, "/v1/moderation/reports?status=PENDING", "mod-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reports []entity.MessageReport
	require.NoError(t, json.Unmarshal(env.Data, &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, report.ID, reports[0].ID)

	rec, _ = call(t, e, http.MethodPatch, "/v1/moderation/reports/"+report.ID, "mod-1", `{"status":"RESOLVED","notes":"warned"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = call(t, e, http.MethodGet, "/v1/moderation/audit?action=REVIEW_REPORT", "mod-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []entity.AuditLogEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Len(t, entries, 1)
}

func TestPresenceRouteReportsOffline(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := call(t, e, http.MethodGet, "/v1/presence/seller-1", "buyer-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "offline")
}

func TestRateLimitReturns429WithRetryAfter(t *testing.T) {
	e := newTestServer(t, map[string]ratelimit.Policy{ratelimit.ActionHTTP: {Burst: 2, Every: time.Hour}})

	for i := 0; i < 2; i++ {
		rec, _ := call(t, e, http.MethodGet, "/v1/conversations", "buyer-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := call(t, e, http.MethodGet, "/v1/conversations", "buyer-1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "TOO_MANY_REQUESTS", env.Error.Code)

	rec, _ = call(t, e, http.MethodGet, "/v1/conversations", "seller-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestServer(t, nil)

	rec, _ := call(t, e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec, _ = call(t, e, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDevTokenRoute(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := call(t, e, http.MethodPost, "/_dev/token", "", `{"user_id":"seller-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "token-seller-1")

	rec, _ = call(t, e, http.MethodPost, "/_dev/token", "", `{"user_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
