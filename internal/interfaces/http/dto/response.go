// Package dto centralizes the HTTP response shapes and the error kind
// to status mapping. Handlers never choose status codes by hand.
package dto

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saasbooks/backend/internal/domain/shared"
)

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// kindStatus maps error kinds to HTTP statuses. Kinds missing here are
// server faults and report as 500.
var kindStatus = map[shared.Kind]int{
	shared.KindUnauthenticated:      http.StatusUnauthorized,
	shared.KindTokenExpired:         http.StatusUnauthorized,
	shared.KindTokenInvalid:         http.StatusUnauthorized,
	shared.KindForbidden:            http.StatusForbidden,
	shared.KindTenantMismatch:       http.StatusForbidden,
	shared.KindTenantSuspended:      http.StatusForbidden,
	shared.KindTenantRequired:       http.StatusBadRequest,
	shared.KindNoContext:            http.StatusBadRequest,
	shared.KindNotFound:             http.StatusNotFound,
	shared.KindConflict:             http.StatusConflict,
	shared.KindValidationFailed:     http.StatusBadRequest,
	shared.KindDataStoreUnavailable: http.StatusServiceUnavailable,
	shared.KindCacheUnavailable:     http.StatusServiceUnavailable,
	shared.KindDeadlineExceeded:     http.StatusGatewayTimeout,
	shared.KindInternal:             http.StatusInternalServerError,
}

// StatusOf returns the HTTP status for an error.
func StatusOf(err error) int {
	if status, ok := kindStatus[shared.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RequestID returns the request ID bound to the gin context.
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// Error writes the envelope for err and aborts the request. Only the
// classified message is surfaced; wrapped causes stay in the logs.
func Error(c *gin.Context, err error) {
	kind := shared.KindOf(err)
	message := "internal server error"
	var ke *shared.KindError
	if errors.As(err, &ke) {
		message = ke.Message
	}
	c.AbortWithStatusJSON(StatusOf(err), ErrorResponse{
		Error:     string(kind),
		Message:   message,
		RequestID: RequestID(c),
	})
}

// ErrorWith writes an envelope for a kind and message directly.
func ErrorWith(c *gin.Context, kind shared.Kind, message string) {
	Error(c, shared.NewError(kind, message))
}

// Pagination query parameters shared by list endpoints.
type Pagination struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// Filter converts the query parameters into a shared.Filter with
// defaults and a page-size cap.
func (p Pagination) Filter() shared.Filter {
	f := shared.DefaultFilter()
	if p.Page > 0 {
		f.Page = p.Page
	}
	if p.PageSize > 0 {
		f.PageSize = p.PageSize
	}
	if f.PageSize > 200 {
		f.PageSize = 200
	}
	return f
}
