package handler

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/usecase"
	"marketchat/pkg/response"
)

type PresenceHandler struct {
	presenceUseCase *usecase.PresenceUseCase
}

func NewPresenceHandler(presenceUseCase *usecase.PresenceUseCase) *PresenceHandler {
	return &PresenceHandler{
		presenceUseCase: presenceUseCase,
	}
}

// GetPresence never fails: an unreachable presence backend reports "unknown".
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	return response.Success(c, h.presenceUseCase.GetPresence(c.Request().Context(), c.Param("userId")))
}
