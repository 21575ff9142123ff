package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
	"marketchat/pkg/response"
)

// IssueTokenFunc mints a token the configured verifier will accept.
type IssueTokenFunc func(ctx context.Context, userID string) (string, error)

type DevTokenHandler struct {
	accountRepo repository.AccountRepository
	issue       IssueTokenFunc
}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler(accountRepo repository.AccountRepository, issue IssueTokenFunc) *DevTokenHandler {
	return &DevTokenHandler{
		accountRepo: accountRepo,
		issue:       issue,
	}
}

func SetupDevTokenHandler(accountRepo repository.AccountRepository, issue IssueTokenFunc) {
	devTokenHandler = NewDevTokenHandler(accountRepo, issue)
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

type devTokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// GenerateToken issues a token for an existing account. Development only.
func (h *DevTokenHandler) GenerateToken(c echo.Context) error {
	var req devTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	account, err := h.accountRepo.GetByID(c.Request().Context(), req.UserID)
	if err != nil {
		return response.Error(c, err)
	}

	token, err := h.issue(c.Request().Context(), account.ID)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to issue token", err))
	}

	return response.Success(c, map[string]interface{}{
		"token": token,
		"account": map[string]interface{}{
			"id":           account.ID,
			"username":     account.Username,
			"account_type": account.AccountType,
		},
	})
}
