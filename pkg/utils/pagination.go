package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// PaginationParams represents cursor pagination parameters
type PaginationParams struct {
	Limit  int
	Cursor string
}

// GetPaginationParams extracts ?limit= and ?cursor= from the request.
// A missing or malformed limit falls back to DefaultPageSize.
func GetPaginationParams(c echo.Context) PaginationParams {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	return PaginationParams{
		Limit:  limit,
		Cursor: c.QueryParam("cursor"),
	}
}
