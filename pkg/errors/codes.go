package errors

import (
	"net/http"
	"strings"
)

// ErrorCode identifies a failure category as "<MODULE>_<NNN>".
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Sentinel codes that are not failures of a particular module.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common codes.
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
)

// Ontology codes.
const (
	ErrCodeOntologyUnreadable    ErrorCode = "ONT_001"
	ErrCodeOntologyInvalid       ErrorCode = "ONT_002"
	ErrCodeConceptNotFound       ErrorCode = "ONT_003"
	ErrCodeOntologySourceUnknown ErrorCode = "ONT_004"
)

// Concept index codes.
const (
	ErrCodeIndexBuildFailed ErrorCode = "IDX_001"
	ErrCodeIndexEmpty       ErrorCode = "IDX_002"
)

// Analysis codes.
const (
	ErrCodeStemmerUnsupported ErrorCode = "ANL_001"
	ErrCodeAnalysisFailed     ErrorCode = "ANL_002"
	ErrCodeStopWordsInvalid   ErrorCode = "ANL_003"
)

// Position mapper codes.
const (
	ErrCodeExclusionPatternInvalid ErrorCode = "MAP_001"
	ErrCodeExclusionProfileUnknown ErrorCode = "MAP_002"
)

// Background job and storage codes.
const (
	ErrCodeJobInvalid       ErrorCode = "JOB_001"
	ErrCodeJobFailed        ErrorCode = "JOB_002"
	ErrCodeDocumentNotFound ErrorCode = "JOB_003"
	ErrCodeStorageError     ErrorCode = "JOB_004"
	ErrCodeMessagingError   ErrorCode = "JOB_005"
	ErrCodeSearchError      ErrorCode = "JOB_006"
	ErrCodeReportNotFound   ErrorCode = "JOB_007"
)

// ErrorCodeHTTPStatus maps codes to HTTP statuses.  Unlisted codes map to 500.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	CodeOK:                    http.StatusOK,
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

	ErrCodeOntologyUnreadable:    http.StatusServiceUnavailable,
	ErrCodeOntologyInvalid:       http.StatusUnprocessableEntity,
	ErrCodeConceptNotFound:       http.StatusNotFound,
	ErrCodeOntologySourceUnknown: http.StatusBadRequest,

	ErrCodeIndexBuildFailed: http.StatusInternalServerError,
	ErrCodeIndexEmpty:       http.StatusServiceUnavailable,

	ErrCodeStemmerUnsupported: http.StatusBadRequest,
	ErrCodeAnalysisFailed:     http.StatusInternalServerError,
	ErrCodeStopWordsInvalid:   http.StatusInternalServerError,

	ErrCodeExclusionPatternInvalid: http.StatusBadRequest,
	ErrCodeExclusionProfileUnknown: http.StatusBadRequest,

	ErrCodeJobInvalid:       http.StatusBadRequest,
	ErrCodeJobFailed:        http.StatusInternalServerError,
	ErrCodeDocumentNotFound: http.StatusNotFound,
	ErrCodeStorageError:     http.StatusBadGateway,
	ErrCodeMessagingError:   http.StatusBadGateway,
	ErrCodeSearchError:      http.StatusBadGateway,
	ErrCodeReportNotFound:   http.StatusNotFound,
}

// ErrorCodeMessage holds the default caller-facing message per code.
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

	ErrCodeOntologyUnreadable:    "ontology source unreadable",
	ErrCodeOntologyInvalid:       "ontology document invalid",
	ErrCodeConceptNotFound:       "concept not found",
	ErrCodeOntologySourceUnknown: "unknown ontology source",

	ErrCodeIndexBuildFailed: "concept index build failed",
	ErrCodeIndexEmpty:       "concept index is empty",

	ErrCodeStemmerUnsupported: "unsupported stemmer mode",
	ErrCodeAnalysisFailed:     "text analysis failed",
	ErrCodeStopWordsInvalid:   "stop word list invalid",

	ErrCodeExclusionPatternInvalid: "invalid exclusion pattern",
	ErrCodeExclusionProfileUnknown: "unknown exclusion profile",

	ErrCodeJobInvalid:       "invalid annotation job",
	ErrCodeJobFailed:        "annotation job failed",
	ErrCodeDocumentNotFound: "document not found",
	ErrCodeStorageError:     "object storage error",
	ErrCodeMessagingError:   "message broker error",
	ErrCodeSearchError:      "search backend error",
	ErrCodeReportNotFound:   "term report not found",
}

// HTTPStatusForCode returns the HTTP status for code.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for code.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether code maps to a 4xx status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether code maps to a 5xx status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of code ("ONT" for "ONT_001").
func ModuleForCode(code ErrorCode) string {
	prefix, _, found := strings.Cut(string(code), "_")
	if !found || prefix == "" {
		return "UNKNOWN"
	}
	return prefix
}
