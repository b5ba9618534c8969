package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeNetworkFailure = "network_failure"
	ErrCodeDuplicateEcho  = "duplicate_echo"
	ErrCodeUnauthorized   = "unauthorized"
)

var (
	ErrEmptyMessage         = errors.New("message has no text and no attachments")
	ErrConversationMismatch = errors.New("message belongs to another conversation")
	ErrDuplicateMessage     = errors.New("message id already present")
	ErrNotFound             = errors.New("not found")
	ErrNetworkFailure       = errors.New("network failure")
	ErrNotFailed            = errors.New("message is not in failed state")
	ErrInvalidConversation  = errors.New("invalid conversation request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

// ErrorCode extracts the CoreError code from err, or "" if none is attached.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
