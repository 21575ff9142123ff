package handler

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/domain/entity"
	"marketchat/internal/usecase"
	"marketchat/pkg/response"
	"marketchat/pkg/utils"
)

type ConversationHandler struct {
	messagingUseCase *usecase.MessagingUseCase
}

func NewConversationHandler(messagingUseCase *usecase.MessagingUseCase) *ConversationHandler {
	return &ConversationHandler{
		messagingUseCase: messagingUseCase,
	}
}

type createConversationRequest struct {
	CounterpartID   string `json:"counterpart_id" validate:"required"`
	Type            string `json:"type" validate:"required,oneof=ORDER DELIVERY SUPPORT"`
	OrderID         string `json:"order_id"`
	DeliveryID      string `json:"delivery_id"`
	SupportTicketID string `json:"support_ticket_id"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE CLOSED ARCHIVED"`
}

// CreateConversation returns 201 for a new conversation and 200 when the
// same conversation already existed.
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	conv, created, err := h.messagingUseCase.CreateOrGetConversation(c.Request().Context(), currentUser(c), usecase.CreateConversationInput{
		CounterpartID: req.CounterpartID,
		Type:          req.Type,
		Correlation: entity.CorrelationIDs{
			OrderID:         req.OrderID,
			DeliveryID:      req.DeliveryID,
			SupportTicketID: req.SupportTicketID,
		},
	})
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, conv)
	}
	return response.Success(c, conv)
}

// ListConversations returns the caller's conversations, most recent activity
// first.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	filter := entity.ConversationFilter{
		Type:   entity.ConversationType(c.QueryParam("type")),
		Status: entity.ConversationStatus(c.QueryParam("status")),
		Limit:  utils.GetPaginationParams(c).Limit,
	}

	convs, err := h.messagingUseCase.ListConversations(c.Request().Context(), currentUser(c), filter)
	if err != nil {
		return response.Error(c, err)
	}

	if convs == nil {
		convs = []*entity.Conversation{}
	}
	return response.Success(c, convs)
}

func (h *ConversationHandler) GetConversation(c echo.Context) error {
	conv, err := h.messagingUseCase.GetConversation(c.Request().Context(), c.Param("id"), currentUser(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

func (h *ConversationHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	conv, err := h.messagingUseCase.UpdateConversationStatus(c.Request().Context(), c.Param("id"), currentUser(c), entity.ConversationStatus(req.Status))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	conversationID := c.Param("id")
	ids, err := h.messagingUseCase.MarkRead(c.Request().Context(), conversationID, currentUser(c))
	if err != nil {
		return response.Error(c, err)
	}

	if ids == nil {
		ids = []string{}
	}
	return response.Success(c, map[string]interface{}{
		"conversation_id": conversationID,
		"marked_read":     ids,
	})
}
