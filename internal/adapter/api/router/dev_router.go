package router

import (
	"github.com/labstack/echo/v4"

	"marketchat/internal/adapter/api/handler"
)

func SetupDevRouter(e *echo.Echo, environment string) {
	if environment != "development" {
		return
	}
	devTokenHandler := handler.GetDevTokenHandler()
	if devTokenHandler == nil {
		return
	}

	e.POST("/_dev/token", devTokenHandler.GenerateToken)
}
