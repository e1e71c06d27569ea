package dto

import "net/http"

// General error codes
const (
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeBadRequest = "BAD_REQUEST"
)

// Auth error codes
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeTokenExpired     = "TOKEN_EXPIRED"
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
)

// Resource error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
)

// Domain rule error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInvalidLineItem   = "INVALID_LINE_ITEM"
	ErrCodeInvalidTransition = "INVALID_STATE_TRANSITION"
	ErrCodePartnerInactive   = "PARTNER_INACTIVE"
	ErrCodeCycleInProgress   = "SYNC_CYCLE_IN_PROGRESS"
)

// ErrorCodeHTTPStatus maps domain error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeForbidden:        http.StatusForbidden,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeInvalidSignature: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeInvalidLineItem:   http.StatusBadRequest,
	ErrCodeInvalidTransition: http.StatusConflict,
	ErrCodePartnerInactive:   http.StatusUnprocessableEntity,
	ErrCodeCycleInProgress:   http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500 Internal Server Error.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
