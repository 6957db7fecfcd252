package core

import "errors"

// Error codes for domain errors.
const (
	// AuthError
	ErrCodeUnauthorized = "unauthorized"

	// StorageError
	ErrCodeStorage = "storage_error"

	// DeliveryError
	ErrCodeDeliveryFailed = "delivery_failed"

	// ProtocolError
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotInRoom          = "not_in_room"
	ErrCodeUnknownType        = "unknown_type"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeUnsupportedVersion = "unsupported_version"
)

var (
	// ErrSessionClosed is returned when delivering to or joining with a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotInRoom is wrapped by not_in_room errors.
	ErrNotInRoom = errors.New("not in room")
	// ErrBadRequest is wrapped by malformed event errors.
	ErrBadRequest = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func wrapCoreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

// ErrorCode extracts the CoreError code from err, or "" if err is not a CoreError.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsProtocolError reports whether err rejects a malformed or disallowed inbound event.
func IsProtocolError(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeBadRequest, ErrCodeNotInRoom, ErrCodeUnknownType, ErrCodeRateLimited, ErrCodeUnsupportedVersion:
		return true
	}
	return false
}

// NewError builds a CoreError for callers outside the core, e.g. the gateway
// rejecting a frame before it reaches the dispatcher.
func NewError(code, msg string) *CoreError {
	return coreError(code, msg)
}
