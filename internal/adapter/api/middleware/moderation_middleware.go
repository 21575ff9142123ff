package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"marketchat/pkg/errors"
	"marketchat/pkg/response"
)

// ModeratorChecker answers whether an account belongs to moderation staff.
type ModeratorChecker interface {
	IsModerator(ctx context.Context, userID string) (bool, error)
}

type ModerationMiddleware struct {
	checker ModeratorChecker
}

func NewModerationMiddleware(checker ModeratorChecker) *ModerationMiddleware {
	return &ModerationMiddleware{
		checker: checker,
	}
}

func (m *ModerationMiddleware) ModeratorOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, ok := c.Get("uid").(string)
		if !ok || uid == "" {
			return response.Error(c, errors.Unauthorized("Authentication required", nil))
		}

		isModerator, err := m.checker.IsModerator(c.Request().Context(), uid)
		if err != nil {
			return response.Error(c, errors.Internal("Failed to verify moderation privileges", err))
		}
		if !isModerator {
			return response.Error(c, errors.Forbidden("Moderation privileges required", nil))
		}

		return next(c)
	}
}
