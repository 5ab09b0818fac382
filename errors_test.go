package codexlink

import (
	"errors"
	"fmt"
	"testing"
)

func TestConnectionError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := &ConnectionError{Op: "dial", URL: "ws://localhost:1234", Err: underlying}

	if err.Error() != "codexlink: dial ws://localhost:1234: connection refused" {
		t.Errorf("Error() = %s", err.Error())
	}

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should match the underlying error")
	}
}

func TestConnectionError_NoURL(t *testing.T) {
	err := &ConnectionError{Op: "write", Err: errors.New("broken pipe")}

	if err.Error() != "codexlink: write: broken pipe" {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestSendError(t *testing.T) {
	underlying := errors.New("bad payload")
	err := &SendError{Op: "marshal", Err: underlying}

	if err.Error() != "codexlink: send marshal: bad payload" {
		t.Errorf("Error() = %s", err.Error())
	}

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should match the underlying error")
	}
}

func TestProtocolError(t *testing.T) {
	err := &ProtocolError{Code: -32001, Message: "queue full"}

	if err.Error() != "codexlink: protocol error [-32001]: queue full" {
		t.Errorf("Error() = %s", err.Error())
	}
	if !err.IsQueueOverflow() {
		t.Error("code -32001 should report queue overflow")
	}
	if err.IsMethodNotFound() {
		t.Error("code -32001 should not report method not found")
	}

	nf := &ProtocolError{Code: -32601, Message: "no such method"}
	if !nf.IsMethodNotFound() {
		t.Error("code -32601 should report method not found")
	}

	plain := &ProtocolError{Message: "nope"}
	if plain.Error() != "codexlink: protocol error: nope" {
		t.Errorf("Error() = %s", plain.Error())
	}
}

func TestCloseError(t *testing.T) {
	err := &CloseError{Code: 1006}
	if err.Error() != "codexlink: connection closed (code 1006)" {
		t.Errorf("Error() = %s", err.Error())
	}

	err = &CloseError{Code: 1000, Reason: "bye"}
	if err.Error() != "codexlink: connection closed (code 1000): bye" {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestFrameError(t *testing.T) {
	underlying := errors.New("unexpected end of JSON input")
	err := &FrameError{Data: []byte("{"), Err: underlying}

	if err.Error() != "codexlink: bad frame: unexpected end of JSON input" {
		t.Errorf("Error() = %s", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should match the underlying error")
	}

	var fe *FrameError
	wrapped := fmt.Errorf("receive: %w", err)
	if !errors.As(wrapped, &fe) {
		t.Error("errors.As should find the FrameError through wrapping")
	}
}

func TestInvalidURLWrapping(t *testing.T) {
	err := validateURL("http://localhost:8765")
	if err == nil {
		t.Fatal("http scheme should be rejected")
	}
	if !errors.Is(err, ErrInvalidURL) {
		t.Errorf("errors.Is(err, ErrInvalidURL) = false for %v", err)
	}

	if err := validateURL("ws://localhost:8765/ws"); err != nil {
		t.Errorf("ws url rejected: %v", err)
	}
	if err := validateURL("wss://example.com/ws"); err != nil {
		t.Errorf("wss url rejected: %v", err)
	}
	if err := validateURL("ws://"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("hostless url should be rejected, got %v", err)
	}
}

func TestCloseReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"clean close with reason", &CloseError{Code: 1000, Reason: "server shutdown"}, "server shutdown"},
		{"clean close without reason", &CloseError{Code: 1000}, "normal closure"},
		{"abnormal close", &CloseError{Code: 1006}, "abnormal closure (code 1006)"},
		{"wrapped close error", fmt.Errorf("read: %w", &CloseError{Code: 1001, Reason: "going away"}), "abnormal closure (code 1001)"},
		{"plain error", errors.New("read tcp: connection reset"), "read tcp: connection reset"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := closeReason(tt.err); got != tt.want {
				t.Errorf("closeReason() = %q, want %q", got, tt.want)
			}
		})
	}
}
