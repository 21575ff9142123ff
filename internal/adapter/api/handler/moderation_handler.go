package handler

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/domain/entity"
	"marketchat/internal/usecase"
	"marketchat/pkg/response"
	"marketchat/pkg/utils"
)

type ModerationHandler struct {
	moderationUseCase *usecase.ModerationUseCase
	presenceUseCase   *usecase.PresenceUseCase
}

func NewModerationHandler(moderationUseCase *usecase.ModerationUseCase, presenceUseCase *usecase.PresenceUseCase) *ModerationHandler {
	return &ModerationHandler{
		moderationUseCase: moderationUseCase,
		presenceUseCase:   presenceUseCase,
	}
}

type reviewReportRequest struct {
	Status string `json:"status" validate:"required,oneof=REVIEWED RESOLVED DISMISSED"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// ListReports returns reports newest first, optionally filtered by status or
// conversation.
func (h *ModerationHandler) ListReports(c echo.Context) error {
	reports, err := h.moderationUseCase.ListReports(c.Request().Context(), currentUser(c), entity.ReportFilter{
		Status:         entity.ReportStatus(c.QueryParam("status")),
		ConversationID: c.QueryParam("conversation_id"),
		Limit:          utils.GetPaginationParams(c).Limit,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if reports == nil {
		reports = []*entity.MessageReport{}
	}
	return response.Success(c, reports)
}

func (h *ModerationHandler) GetReport(c echo.Context) error {
	report, err := h.moderationUseCase.GetReport(c.Request().Context(), currentUser(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, report)
}

func (h *ModerationHandler) ReviewReport(c echo.Context) error {
	var req reviewReportRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	report, err := h.moderationUseCase.ReviewReport(c.Request().Context(), currentUser(c), c.Param("id"), entity.ReportStatus(req.Status), req.Notes)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, report)
}

func (h *ModerationHandler) ListAuditLog(c echo.Context) error {
	entries, err := h.moderationUseCase.ListAuditLog(c.Request().Context(), currentUser(c), entity.AuditFilter{
		Action:         entity.AuditAction(c.QueryParam("action")),
		ActorID:        c.QueryParam("actor_id"),
		ConversationID: c.QueryParam("conversation_id"),
		Limit:          utils.GetPaginationParams(c).Limit,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if entries == nil {
		entries = []*entity.AuditLogEntry{}
	}
	return response.Success(c, entries)
}

// ListOnline shows who holds a connection right now, as far as presence knows.
func (h *ModerationHandler) ListOnline(c echo.Context) error {
	records, err := h.presenceUseCase.ListOnline(c.Request().Context())
	if err != nil {
		return response.Error(c, err)
	}

	if records == nil {
		records = []entity.PresenceRecord{}
	}
	return response.Success(c, records)
}
