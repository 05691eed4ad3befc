package tsserver

import (
	"errors"
	"fmt"
)

// Standard errors returned by the tsserver client.
var (
	// ErrShutdown indicates the transport or server has been shut down.
	ErrShutdown = errors.New("tsserver shut down")

	// ErrServerNotRunning indicates no server process is available.
	ErrServerNotRunning = errors.New("tsserver not running")

	// ErrServerAlreadyRunning indicates Start was called on a running server.
	ErrServerAlreadyRunning = errors.New("tsserver already running")

	// ErrCancelled indicates the caller cancelled the request.
	ErrCancelled = errors.New("request cancelled")

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timed out")

	// ErrUnsupportedScheme indicates a resource has no tsserver path.
	ErrUnsupportedScheme = errors.New("resource scheme not supported by tsserver")

	// ErrNoContent is the benign failure tsserver reports when a request
	// has nothing to return.
	ErrNoContent = errors.New(noContentMessage)
)

const noContentMessage = "No content available."

// ResponseError is a response with success set to false.
type ResponseError struct {
	Command string
	Message string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// ResponseMessage returns the server-provided message.
func (e *ResponseError) ResponseMessage() string {
	return e.Message
}

// Is matches ErrNoContent when the server reported no content.
func (e *ResponseError) Is(target error) bool {
	return target == ErrNoContent && e.Message == noContentMessage
}

// IsNoContent reports whether err is the benign no-content failure.
func IsNoContent(err error) bool {
	return errors.Is(err, ErrNoContent)
}

// ServerError represents an error related to the server process lifecycle.
type ServerError struct {
	ServerID string
	Err      error
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("tsserver %s: %v", e.ServerID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerError) Unwrap() error {
	return e.Err
}
