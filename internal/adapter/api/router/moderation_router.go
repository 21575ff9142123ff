package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
)

func SetupModerationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, moderationMiddleware *middleware.ModerationMiddleware) {
	moderationHandler := handler.GetModerationHandler()

	moderation := e.Group("/v1/moderation")
	moderation.Use(authMiddleware.Authenticate)
	moderation.Use(moderationMiddleware.ModeratorOnly)

	moderation.GET("/reports", moderationHandler.ListReports)
	moderation.GET("/reports/:id", moderationHandler.GetReport)
	moderation.PATCH("/reports/:id", moderationHandler.ReviewReport)
	moderation.GET("/audit", moderationHandler.ListAuditLog)
	moderation.GET("/presence", moderationHandler.ListOnline)
}
