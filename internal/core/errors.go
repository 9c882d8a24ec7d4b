package core

import "errors"

// Error codes reported to clients. Close reasons reuse the same set so a
// disconnect is always distinguishable from a rejected operation.
const (
	ErrCodeAuthFailed       = "auth-failed"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not-found"
	ErrCodeBadRequest       = "bad-request"
	ErrCodeStoreUnavailable = "store-unavailable"
	ErrCodeRateLimited      = "rate-limited"
	ErrCodeNormalClose      = "normal-close"
	ErrCodeTransportError   = "transport-error"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
)

// Error wraps a code and human-readable message. Retryable tells the client
// whether the same operation may succeed later without any change on its part.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

func Forbidden(msg string) *Error {
	return &Error{Code: ErrCodeForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: msg}
}

func BadRequest(msg string) *Error {
	return &Error{Code: ErrCodeBadRequest, Message: msg}
}

func StoreUnavailable(msg string) *Error {
	return &Error{Code: ErrCodeStoreUnavailable, Message: msg, Retryable: true}
}
