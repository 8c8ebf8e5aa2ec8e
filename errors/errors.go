package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorIncompleteBody
	ErrorDecompression
	ErrorInvalidArgument
)

func (t ErrorType) String() string {
	switch t {
	case ErrorNone:
		return "none"
	case ErrorTransport:
		return "network"
	case ErrorProtocol:
		return "protocol"
	case ErrorIncompleteBody:
		return "incomplete body"
	case ErrorDecompression:
		return "decompression"
	case ErrorInvalidArgument:
		return "invalid argument"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorSocketCloseFailure
	TransportErrorConnectionClosed
	TransportErrorDnsFailure
	TransportErrorTimeout
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
)

// ProtocolError represents protocol-layer specific errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorInvalidStatusLine
	ProtocolErrorInvalidHeader
	ProtocolErrorHeaderTooLarge
	ProtocolErrorChunkHeaderTooLong
	ProtocolErrorInvalidChunkSize
	ProtocolErrorMissingChunkTrailer
	ProtocolErrorUnexpectedEOF
)

// HttpError is the main error type for the HTTP client
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	Message       string
	Expected      int64
	Actual        int64
	UnderlyingErr error
}

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("Network error (%d)", e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("Protocol error (%d)", e.ProtocolErr)
	case ErrorIncompleteBody:
		typeStr = fmt.Sprintf("Incomplete body: expected %d bytes, got %d", e.Expected, e.Actual)
	case ErrorDecompression:
		typeStr = "Decompression error"
	case ErrorInvalidArgument:
		typeStr = "Invalid argument"
	default:
		typeStr = "Unknown error"
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// Deficit returns how many declared body bytes never arrived.
func (e *HttpError) Deficit() int64 {
	if e == nil || e.Type != ErrorIncompleteBody {
		return 0
	}
	return e.Expected - e.Actual
}

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Message:     message,
	}
}

// NewIncompleteBodyError reports a body that ended before its declared length
func NewIncompleteBodyError(expected, actual int64) *HttpError {
	return &HttpError{
		Type:     ErrorIncompleteBody,
		Expected: expected,
		Actual:   actual,
	}
}

// NewDecompressionError wraps a decoder failure
func NewDecompressionError(message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorDecompression,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}

// As returns the *HttpError in err's chain, if any.
func As(err error) (*HttpError, bool) {
	var httpErr *HttpError
	if stderrors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

func isType(err error, t ErrorType) bool {
	httpErr, ok := As(err)
	return ok && httpErr.Type == t
}

// IsTransport reports whether err is a network-level failure.
func IsTransport(err error) bool { return isType(err, ErrorTransport) }

// IsProtocol reports whether err is a framing or parse failure.
func IsProtocol(err error) bool { return isType(err, ErrorProtocol) }

// IsIncompleteBody reports whether err is a content-length mismatch.
func IsIncompleteBody(err error) bool { return isType(err, ErrorIncompleteBody) }

// IsDecompression reports whether err came from the decoder.
func IsDecompression(err error) bool { return isType(err, ErrorDecompression) }

// IsConnectionClosed reports whether the peer closed the connection.
func IsConnectionClosed(err error) bool {
	httpErr, ok := As(err)
	return ok && httpErr.Type == ErrorTransport && httpErr.TransportErr == TransportErrorConnectionClosed
}

// IsProtocolKind reports whether err is a protocol error of the given kind.
func IsProtocolKind(err error, kind ProtocolError) bool {
	httpErr, ok := As(err)
	return ok && httpErr.Type == ErrorProtocol && httpErr.ProtocolErr == kind
}
