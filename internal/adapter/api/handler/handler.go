package handler

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/usecase"
)

var (
	conversationHandler *ConversationHandler
	messageHandler      *MessageHandler
	moderationHandler   *ModerationHandler
	presenceHandler     *PresenceHandler
)

func Setup(
	messagingUseCase *usecase.MessagingUseCase,
	moderationUseCase *usecase.ModerationUseCase,
	presenceUseCase *usecase.PresenceUseCase,
) {
	conversationHandler = NewConversationHandler(messagingUseCase)
	messageHandler = NewMessageHandler(messagingUseCase)
	moderationHandler = NewModerationHandler(moderationUseCase, presenceUseCase)
	presenceHandler = NewPresenceHandler(presenceUseCase)
}

func GetConversationHandler() *ConversationHandler {
	return conversationHandler
}

func GetMessageHandler() *MessageHandler {
	return messageHandler
}

func GetModerationHandler() *ModerationHandler {
	return moderationHandler
}

func GetPresenceHandler() *PresenceHandler {
	return presenceHandler
}

func currentUser(c echo.Context) string {
	uid, _ := c.Get("uid").(string)
	return uid
}
