package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
	"marketchat/internal/adapter/api/middleware"
	"marketchat/internal/infrastructure/ratelimit"
)

// SetupConversationRouter registers the request/response fallback for clients
// without a live connection.
func SetupConversationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	conversationHandler := handler.GetConversationHandler()
	messageHandler := handler.GetMessageHandler()

	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate)
	conversations.Use(middleware.RateLimit(limiter))

	conversations.POST("", conversationHandler.CreateConversation)
	conversations.GET("", conversationHandler.ListConversations)
	conversations.GET("/:id", conversationHandler.GetConversation)
	conversations.PATCH("/:id/status", conversationHandler.UpdateStatus)
	conversations.PUT("/:id/read", conversationHandler.MarkRead)
	conversations.GET("/:id/messages", messageHandler.ListMessages)
	conversations.POST("/:id/messages", messageHandler.SendMessage)

	messages := e.Group("/v1/messages")
	messages.Use(authMiddleware.Authenticate)
	messages.Use(middleware.RateLimit(limiter))

	messages.DELETE("/:id", messageHandler.DeleteMessage)
	messages.POST("/:id/reports", messageHandler.ReportMessage)
}
