package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_015"
	ErrCodeUnknown            ErrorCode = "COMMON_016"

	CodeOK ErrorCode = "OK"
)

// Valuation module error codes
const (
	ErrCodeValuationNotFound         ErrorCode = "VAL_001"
	ErrCodeValuationFailed           ErrorCode = "VAL_002"
	ErrCodeValuationDataInsufficient ErrorCode = "VAL_003"
	ErrCodeVehicleFactsInvalid       ErrorCode = "VAL_004"
)

// Listing module error codes
const (
	ErrCodeListingRejected   ErrorCode = "LST_001"
	ErrCodeListingSourceUnknown ErrorCode = "LST_002"
)

// Messaging / event error codes
const (
	ErrCodePublishFailed ErrorCode = "MSG_001"
	ErrCodeConsumeFailed ErrorCode = "MSG_002"
)

// Report / artifact error codes
const (
	ErrCodeReportRenderFailed ErrorCode = "RPT_001"
	ErrCodeArtifactStoreFailed ErrorCode = "RPT_002"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeNotImplemented:     http.StatusNotImplemented,
	ErrCodeUnknown:            http.StatusInternalServerError,

	ErrCodeValuationNotFound:         http.StatusNotFound,
	ErrCodeValuationFailed:           http.StatusInternalServerError,
	ErrCodeValuationDataInsufficient: http.StatusUnprocessableEntity,
	ErrCodeVehicleFactsInvalid:       http.StatusBadRequest,

	ErrCodeListingRejected:      http.StatusUnprocessableEntity,
	ErrCodeListingSourceUnknown: http.StatusBadRequest,

	ErrCodePublishFailed: http.StatusInternalServerError,
	ErrCodeConsumeFailed: http.StatusInternalServerError,

	ErrCodeReportRenderFailed:  http.StatusInternalServerError,
	ErrCodeArtifactStoreFailed: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",
	ErrCodeUnknown:            "unknown error",

	ErrCodeValuationNotFound:         "valuation not found",
	ErrCodeValuationFailed:           "vehicle valuation failed",
	ErrCodeValuationDataInsufficient: "insufficient data for valuation",
	ErrCodeVehicleFactsInvalid:       "invalid vehicle facts",

	ErrCodeListingRejected:      "market listing rejected",
	ErrCodeListingSourceUnknown: "unknown listing source",

	ErrCodePublishFailed: "failed to publish event",
	ErrCodeConsumeFailed: "failed to consume event",

	ErrCodeReportRenderFailed:  "failed to render valuation report",
	ErrCodeArtifactStoreFailed: "failed to store report artifact",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
