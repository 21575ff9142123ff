package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
	"marketchat/internal/infrastructure/ratelimit"
)

func Setup(
	e *echo.Echo,
	authMiddleware *middleware.AuthMiddleware,
	moderationMiddleware *middleware.ModerationMiddleware,
	limiter *ratelimit.RateLimiter,
	wsHandler *handler.WebSocketHandler,
	environment string,
) {
	SetupConversationRouter(e, authMiddleware, limiter)
	SetupModerationRouter(e, authMiddleware, moderationMiddleware)
	SetupPresenceRouter(e, authMiddleware)
	SetupWebSocketRouter(e, wsHandler)
	SetupHealthRouter(e)
	SetupDevRouter(e, environment)
}
