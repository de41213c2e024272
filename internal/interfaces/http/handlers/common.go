// Package handlers contains the HTTP handlers for the valuation API.
// Handlers bind and validate requests, delegate to application services,
// and translate AppError codes into HTTP responses.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vinsight/vinsight/internal/interfaces/http/middleware"
	"github.com/vinsight/vinsight/pkg/errors"
	"github.com/vinsight/vinsight/pkg/types/common"
)

// respond writes a successful APIResponse with the given status.
func respond(c *gin.Context, status int, data any) {
	resp := common.NewSuccessResponse(data)
	resp.RequestID = middleware.GetRequestID(c)
	c.JSON(status, resp)
}

// respondPage writes a paginated APIResponse.
func respondPage[T any](c *gin.Context, page *common.PageResponse[T]) {
	resp := common.NewSuccessResponse(page.Items)
	resp.RequestID = middleware.GetRequestID(c)
	resp.Pagination = &common.Pagination{
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
	}
	c.JSON(http.StatusOK, resp)
}

// respondError maps an error onto the HTTP status of its AppError code.
// Server-side error messages are masked; the code still reaches the client
// for correlation.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	message := err.Error()
	if errors.IsServerError(code) {
		message = errors.DefaultMessageForCode(code)
	}

	resp := common.NewErrorResponse(code.String(), message)
	resp.RequestID = middleware.GetRequestID(c)
	c.JSON(status, resp)
}

// parsePagination extracts page and page_size query parameters, falling
// back to page 1 with 20 items.
func parsePagination(c *gin.Context) common.Pagination {
	p := common.Pagination{Page: 1, PageSize: 20}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if v := c.Query("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			p.PageSize = n
		}
	}
	return p
}
