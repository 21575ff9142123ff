package handler

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/domain/entity"
	"marketchat/internal/usecase"
	"marketchat/pkg/response"
	"marketchat/pkg/utils"
)

type MessageHandler struct {
	messagingUseCase *usecase.MessagingUseCase
}

func NewMessageHandler(messagingUseCase *usecase.MessagingUseCase) *MessageHandler {
	return &MessageHandler{
		messagingUseCase: messagingUseCase,
	}
}

type sendMessageRequest struct {
	Content     string   `json:"content" validate:"max=4000"`
	Language    string   `json:"language" validate:"omitempty,max=35"`
	ReplyToID   string   `json:"reply_to_id"`
	Attachments []string `json:"attachments" validate:"omitempty,max=10,dive,required"`
}

type reportMessageRequest struct {
	Reason      string `json:"reason" validate:"required,oneof=SPAM HARASSMENT FRAUD INAPPROPRIATE_CONTENT OTHER"`
	Description string `json:"description" validate:"max=1000"`
}

// SendMessage is the request/response fallback of the send-message event.
// The created message is also broadcast to the conversation group.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	msg, err := h.messagingUseCase.Send(c.Request().Context(), usecase.SendMessageInput{
		ConversationID: c.Param("id"),
		SenderID:       currentUser(c),
		Content:        req.Content,
		Language:       req.Language,
		ReplyToID:      req.ReplyToID,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, msg)
}

func (h *MessageHandler) ListMessages(c echo.Context) error {
	params := utils.GetPaginationParams(c)
	page, err := h.messagingUseCase.ListMessages(c.Request().Context(), c.Param("id"), currentUser(c), params.Limit, params.Cursor)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, page.Messages, page.HasMore, page.NextCursor)
}

func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	msg, err := h.messagingUseCase.Delete(c.Request().Context(), c.Param("id"), currentUser(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, msg)
}

func (h *MessageHandler) ReportMessage(c echo.Context) error {
	var req reportMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	report, err := h.messagingUseCase.Report(c.Request().Context(), usecase.ReportMessageInput{
		MessageID:   c.Param("id"),
		ReporterID:  currentUser(c),
		Reason:      entity.ReportReason(req.Reason),
		Description: req.Description,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, report)
}
