package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestGetPaginationParams(t *testing.T) {
	cases := []struct {
		query string
		want  PaginationParams
	}{
		{"", PaginationParams{Limit: DefaultPageSize}},
		{"?limit=10&cursor=abc", PaginationParams{Limit: 10, Cursor: "abc"}},
		{"?limit=500", PaginationParams{Limit: MaxPageSize}},
		{"?limit=-3", PaginationParams{Limit: DefaultPageSize}},
		{"?limit=ten", PaginationParams{Limit: DefaultPageSize}},
	}

	e := echo.New()
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/conversations"+tc.query, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		assert.Equal(t, tc.want, GetPaginationParams(c), tc.query)
	}
}
