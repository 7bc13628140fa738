package webimg

import (
	"errors"
	"fmt"
)

// Sentinel errors for different failure modes.
// They can be checked using errors.Is() for error handling and testing.
var (
	// ErrInvalidRequest indicates that a download task was started without a
	// usable HTTP request (nil request or nil URL).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnsupportedFormat indicates that the codec cannot handle the
	// requested encode format or could not recognize the supplied bytes.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// TransportError wraps a network-level failure reported by the HTTP layer.
// It is delivered exclusively through the completion callback with final=true.
type TransportError struct {
	// Err is the underlying transport failure.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

// Unwrap returns the underlying error to support errors.Is and errors.As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError reports a response with status >= 400. It carries the
// status code so callers can distinguish, for example, 404 from 500.
type HTTPStatusError struct {
	// StatusCode is the HTTP status returned by the server.
	StatusCode int
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// DecodeError reports a payload that could not be decoded into a bitmap,
// including the zero-size payload case.
type DecodeError struct {
	// Reason describes why decoding failed.
	Reason string

	// Err is the underlying codec error, if any.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode: %s", e.Reason)
}

// Unwrap returns the underlying error to support errors.Is and errors.As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ConstructionError reports that a download task could not be built from its
// inputs. It is delivered synchronously through the completion callback when
// Start is called on a task with an unusable request.
type ConstructionError struct {
	// Err is the underlying construction failure.
	Err error
}

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construct task: %v", e.Err)
}

// Unwrap returns the underlying error to support errors.Is and errors.As.
func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err is an HTTPStatusError carrying the given code.
func IsStatus(err error, code int) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && se.StatusCode == code
}
