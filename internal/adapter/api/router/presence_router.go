package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
)

func SetupPresenceRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	presenceHandler := handler.GetPresenceHandler()

	presence := e.Group("/v1/presence")
	presence.Use(authMiddleware.Authenticate)
	presence.GET("/:userId", presenceHandler.GetPresence)
}
