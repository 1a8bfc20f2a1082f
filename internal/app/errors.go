// Package app provides application-layer error types shared by the HTTP
// transport's RFC 7807 mapping (internal/transport/http/contract).
package app

// Error codes for machine-readable error handling, translated to the
// contract package's taxonomy by contract.TranslateLegacyCode.
const (
	CodeUserNotFound      = "USER_NOT_FOUND"
	CodeEmailExists       = "EMAIL_EXISTS"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeRequestTooLarge   = "REQUEST_TOO_LARGE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// AppError represents an application-layer error with a machine-readable
// code, wrapping the underlying error for errors.Is/errors.As support.
type AppError struct {
	Op      string // operation name: "BodyLimiter", "ExecuteQuery"
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}
