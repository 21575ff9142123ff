package handler

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"marketchat/internal/domain/service"
	ws "marketchat/internal/infrastructure/websocket"
	"marketchat/pkg/errors"
	"marketchat/pkg/logger"
	"marketchat/pkg/response"
)

type WebSocketHandler struct {
	wsManager        *ws.Manager
	verifier         service.TokenVerifier
	handshakeTimeout time.Duration
	upgrader         gorillaws.Upgrader
}

func NewWebSocketHandler(wsManager *ws.Manager, verifier service.TokenVerifier, handshakeTimeout time.Duration, allowedOrigins []string) *WebSocketHandler {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebSocketHandler{
		wsManager:        wsManager,
		verifier:         verifier,
		handshakeTimeout: handshakeTimeout,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// HandleWebSocket authenticates before the upgrade when the request carries a
// token. Otherwise the first frame must be an authenticate event.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	req := c.Request()

	var userID string
	if token := ws.TokenFromRequest(req); token != "" {
		uid, err := h.verifier.VerifyToken(req.Context(), token)
		if err != nil {
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}
		userID = uid
	}

	conn, err := h.upgrader.Upgrade(c.Response(), req, nil)
	if err != nil {
		logger.Warn("WebSocket: upgrade failed: %v", err)
		return nil
	}

	if userID == "" {
		uid, err := ws.AwaitAuthentication(req.Context(), conn, h.verifier, h.handshakeTimeout)
		if err != nil {
			logger.Warn("WebSocket: handshake from %s rejected: %v", c.RealIP(), err)
			ws.RejectConnection(conn, errors.As(err).Message)
			return nil
		}
		userID = uid
	}

	h.wsManager.Serve(conn, userID)
	return nil
}
