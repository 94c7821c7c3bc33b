package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint writes
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Detail  string      `json:"detail,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo represents error details in the response
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta describes an offset/limit window over a larger result
type Meta struct {
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
	Total  int64 `json:"total"`
}

// Error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeDuplicateEntry     = "DUPLICATE_ENTRY"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeAgentBlocked       = "AGENT_BLOCKED"

	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeBadGateway         = "CHANNEL_UNAVAILABLE"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

var statusByCode = map[string]int{
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeInvalidCredentials: http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeValidationFailed:   http.StatusBadRequest,
	ErrCodeDuplicateEntry:     http.StatusConflict,
	ErrCodeInvalidTransition:  http.StatusConflict,
	ErrCodeAgentBlocked:       http.StatusConflict,
	ErrCodeInternalError:      http.StatusInternalServerError,
	ErrCodeBadGateway:         http.StatusBadGateway,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
func GetHTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Success creates a success response with data
func Success(data interface{}) *Response {
	return &Response{Success: true, Data: data}
}

// Window creates a success response carrying offset/limit metadata
func Window(data interface{}, offset, limit int, total int64) *Response {
	return &Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Offset: offset, Limit: limit, Total: total},
	}
}

// Error creates an error response. Detail mirrors the message for dashboard clients.
func Error(code string, message string) *Response {
	return &Response{
		Success: false,
		Detail:  message,
		Error:   &ErrorInfo{Code: code, Message: message},
	}
}

// ValidationFailed creates a validation error response with field details
func ValidationFailed(message string, details map[string]string) *Response {
	if message == "" {
		message = "Validation failed"
	}
	resp := Error(ErrCodeValidationFailed, message)
	resp.Error.Details = details
	return resp
}

// BadRequest creates a bad request error response
func BadRequest(message string) *Response {
	return Error(ErrCodeBadRequest, message)
}

// Unauthorized creates an unauthorized error response
func Unauthorized(message string) *Response {
	if message == "" {
		message = "Authentication required"
	}
	return Error(ErrCodeUnauthorized, message)
}

// NotFound creates a not found error response
func NotFound(message string) *Response {
	if message == "" {
		message = "Resource not found"
	}
	return Error(ErrCodeNotFound, message)
}

// InternalError creates an internal server error response
func InternalError(message string) *Response {
	if message == "" {
		message = "An internal error occurred"
	}
	return Error(ErrCodeInternalError, message)
}

// TooManyRequests creates a rate limit error response
func TooManyRequests(message string) *Response {
	if message == "" {
		message = "Too many requests, please try again later"
	}
	return Error(ErrCodeTooManyRequests, message)
}

// Abort writes an error envelope with the status derived from its code
func Abort(c *gin.Context, resp *Response) {
	status := http.StatusInternalServerError
	if resp.Error != nil {
		status = GetHTTPStatus(resp.Error.Code)
	}
	c.AbortWithStatusJSON(status, resp)
}
