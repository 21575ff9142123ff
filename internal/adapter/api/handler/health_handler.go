package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthCheck checks one backing service.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	checks []HealthCheck
}

var healthHandler *HealthHandler

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks: checks,
	}
}

func SetupHealthHandler(checks ...HealthCheck) {
	healthHandler = NewHealthHandler(checks...)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

// CheckHealth answers 200 when every dependency responds, 503 otherwise.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	dependencies := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			dependencies[check.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		dependencies[check.Name] = "ok"
	}

	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(dependencies) > 0 {
		body["dependencies"] = dependencies
	}
	return c.JSON(status, body)
}
