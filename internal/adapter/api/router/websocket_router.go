package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
)

// SetupWebSocketRouter registers the gateway endpoint. Authentication happens
// inside the handler so browsers can send the token as the first frame.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
