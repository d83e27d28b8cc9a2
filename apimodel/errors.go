package apimodel

import "fmt"

// ErrorCode identifies a backend error condition that callers may need to
// branch on. Codes outside this set are passed through untouched.
type ErrorCode string

const (
	CodeEmailNotVerified   ErrorCode = "EMAIL_NOT_VERIFIED"
	CodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	CodeLockoutExpired     ErrorCode = "LOCKOUT_EXPIRED"
	CodeUserDeleted        ErrorCode = "USER_DELETED"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
)

// Error is the backend's JSON error body, carried together with the HTTP
// status it arrived with. A nil or absent code means a generic failure.
type Error struct {
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	Email   string    `json:"email,omitempty"`

	// Status is the HTTP status code of the response. Not serialized.
	Status int `json:"-"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d (%s)", e.Status, e.Code)
}

// IsAuthStatus reports whether the error carries an explicit 401/403 status.
// Only these statuses may drive auth-state transitions.
func (e *Error) IsAuthStatus() bool {
	return e.Status == 401 || e.Status == 403
}
