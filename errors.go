package codexlink

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrClosed         = errors.New("codexlink: connection closed")
	ErrNotInitialized = errors.New("codexlink: WebSocket is not initialized")
	ErrNoConversation = errors.New("codexlink: chat message has no conversation id")
	ErrInvalidURL     = errors.New("codexlink: invalid server url")
	ErrNoURL          = errors.New("codexlink: no server url configured")
)

// ConnectionError represents a connection-level error.
type ConnectionError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("codexlink: %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("codexlink: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SendError represents an error during request sending.
type SendError struct {
	Op  string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("codexlink: send %s: %v", e.Op, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ProtocolError represents an error response from the server.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("codexlink: protocol error [%d]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("codexlink: protocol error: %s", e.Message)
}

// IsQueueOverflow reports whether the server rejected the request under
// transient load shedding. Such requests are safe to retry.
func (e *ProtocolError) IsQueueOverflow() bool {
	return e.Code == codeQueueOverflow
}

// IsMethodNotFound reports whether the server does not implement the
// requested method.
func (e *ProtocolError) IsMethodNotFound() bool {
	return e.Code == codeMethodNotFound
}

// CloseError reports the close frame that ended a connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("codexlink: connection closed (code %d): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("codexlink: connection closed (code %d)", e.Code)
}

// FrameError reports an inbound message that could not be decoded. The
// connection survives it; the frame is dropped.
type FrameError struct {
	Data []byte
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("codexlink: bad frame: %v", e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
