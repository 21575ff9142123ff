package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestCheckHealth(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler(HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return nil }})

	if assert.NoError(t, h.CheckHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.Contains(t, rec.Body.String(), `"redis":"ok"`)
	}
}

func TestCheckHealthDegraded(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler(
		HealthCheck{Name: "postgres", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
		HealthCheck{Name: "nats", Check: func(ctx context.Context) error { return nil }},
	)

	if assert.NoError(t, h.CheckHealth(c)) {
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
		assert.Contains(t, rec.Body.String(), "connection refused")
		assert.Contains(t, rec.Body.String(), `"nats":"ok"`)
	}
}
