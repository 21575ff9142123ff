package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"marketchat/internal/domain/service"
	"marketchat/pkg/errors"
	"marketchat/pkg/response"
)

type AuthMiddleware struct {
	verifier service.TokenVerifier
}

func NewAuthMiddleware(verifier service.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate verifies the bearer token and stores the account id under
// "uid" for the handlers.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return response.Error(c, errors.Unauthorized("Authorization header is required", nil))
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return response.Error(c, errors.Unauthorized("Invalid authorization format", nil))
		}

		uid, err := m.verifier.VerifyToken(c.Request().Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}

		c.Set("uid", uid)
		return next(c)
	}
}
