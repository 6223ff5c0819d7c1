package errors

import "fmt"

// Code is the canonical IPC error taxonomy shared by every service (§4.2/§7
// of the design). It is a closed enum: unknown strings arriving on the wire
// map to CodeInvalidParams rather than being passed through, per the
// "string-keyed enums on the wire" design note.
type Code int

const (
	CodeInvalidParams Code = iota
	CodeTimeout
	CodePermissionDenied
	CodeNotFound
	CodeAlreadyRunning
	CodeInternalError
	CodeUnsupported
	CodeCorruptedIndex
	CodeServiceUnavailable
)

// String returns the wire representation of the code (the "codeString" field
// of an IPC error response).
func (c Code) String() string {
	switch c {
	case CodeInvalidParams:
		return "INVALID_PARAMS"
	case CodeTimeout:
		return "TIMEOUT"
	case CodePermissionDenied:
		return "PERMISSION_DENIED"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeAlreadyRunning:
		return "ALREADY_RUNNING"
	case CodeInternalError:
		return "INTERNAL_ERROR"
	case CodeUnsupported:
		return "UNSUPPORTED"
	case CodeCorruptedIndex:
		return "CORRUPTED_INDEX"
	case CodeServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INVALID_PARAMS"
	}
}

// numericCode is the integer sent alongside codeString, stable across
// releases so that older clients can still branch on it.
func (c Code) numericCode() int {
	return 40000 + int(c)
}

// codeFromString parses a wire codeString back into a Code. Unknown strings
// map to CodeInvalidParams, never to a zero-value silently-wrong code.
func codeFromString(s string) Code {
	switch s {
	case "TIMEOUT":
		return CodeTimeout
	case "PERMISSION_DENIED":
		return CodePermissionDenied
	case "NOT_FOUND":
		return CodeNotFound
	case "ALREADY_RUNNING":
		return CodeAlreadyRunning
	case "INTERNAL_ERROR":
		return CodeInternalError
	case "UNSUPPORTED":
		return CodeUnsupported
	case "CORRUPTED_INDEX":
		return CodeCorruptedIndex
	case "SERVICE_UNAVAILABLE":
		return CodeServiceUnavailable
	default:
		return CodeInvalidParams
	}
}

// IPCError is the error type carried across the wire by internal/ipc. It
// implements error and carries enough structure to reconstruct
// {code, codeString, message} on the receiving side.
type IPCError struct {
	Code    Code
	Message string
}

func (e *IPCError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// NewIPCError builds an IPCError for the given canonical code.
func NewIPCError(code Code, format string, args ...any) *IPCError {
	return &IPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseIPCError reconstructs an IPCError from a decoded wire codeString.
func ParseIPCError(codeString, message string) *IPCError {
	return &IPCError{Code: codeFromString(codeString), Message: message}
}

// NumericCode exposes the stable integer code for an IPCError, for wire
// encoding by internal/ipc.
func (e *IPCError) NumericCode() int {
	return e.Code.numericCode()
}

// CodeString exposes the wire codeString for an IPCError, for wire encoding
// by internal/ipc without that package importing this one.
func (e *IPCError) CodeString() string {
	return e.Code.String()
}
