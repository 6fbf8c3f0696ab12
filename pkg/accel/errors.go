package accel

import "fmt"

// ErrorCode classifies provider failures
type ErrorCode int

const (
	ErrorNone ErrorCode = iota
	ErrorUnknown
	ErrorInvalidArgument
	ErrorInvalidOperation
	ErrorBuildFailed
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "none"
	case ErrorUnknown:
		return "unknown"
	case ErrorInvalidArgument:
		return "invalid_argument"
	case ErrorInvalidOperation:
		return "invalid_operation"
	case ErrorBuildFailed:
		return "build_failed"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is returned by every failing provider call. It carries the provider's
// own diagnostic code and message.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("accel error %s: %s", e.Code, e.Message)
}

// ErrorFunc receives every provider error before it is returned to the caller
type ErrorFunc func(code ErrorCode, message string)
