package codexlink

import "time"

// Status is the coarse connection status reported through OnStatus.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReady        Status = "ready"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// ConnState is the connection lifecycle state reported by State.
type ConnState string

const (
	StateIdle        ConnState = "idle"
	StateConnecting  ConnState = "connecting"
	StateHandshaking ConnState = "handshaking"
	StateReady       ConnState = "ready"
	StateClosing     ConnState = "closing"
)

// DebugCategory classifies a debug log entry.
type DebugCategory string

const (
	DebugState DebugCategory = "state"
	DebugSend  DebugCategory = "send"
	DebugRecv  DebugCategory = "recv"
	DebugError DebugCategory = "error"
)

// DebugEntry is one observational log record. Entries never affect
// protocol behavior.
type DebugEntry struct {
	Time     time.Time
	Category DebugCategory
	Message  string
	Detail   string
}

// ChatMessage is one user turn to send. ConversationID and MessageID
// are caller-local identifiers; the client maps the conversation to a
// server-side one internally. An empty MessageID is filled with a
// generated UUID.
type ChatMessage struct {
	ConversationID string
	MessageID      string
	Text           string
	Attachments    []Attachment
}

// Attachment is an opaque payload captured by the host, typically page
// content, forwarded verbatim inside the untrusted-context block of the
// turn text.
type Attachment struct {
	Source string
	URL    string
	Text   string
}

// Token is one streamed text fragment of the agent's reply.
type Token struct {
	ConversationID string
	MessageID      string
	Text           string

	// OriginMethod is the wire method that carried the fragment, for
	// diagnostics only.
	OriginMethod string
}

// Done marks the completion of an agent reply. FinalText carries the
// assembled text when the server provided one.
type Done struct {
	ConversationID string
	MessageID      string
	FinalText      string
}

// ErrorEvent is a terminal error for a request or conversation. The
// conversation and message ids are empty when the error could not be
// attributed.
type ErrorEvent struct {
	ConversationID string
	MessageID      string
	Message        string
}

// RateLimitItem is one usage-quota window.
type RateLimitItem struct {
	Name          string
	UsedPercent   *float64  // normalized 0-100, nil when unknown
	WindowMinutes int       // 0 when unknown
	ResetsAt      time.Time // zero when unknown
}

// UsageSnapshot is the rate-limit data extracted from a usage probe
// response or an unsolicited usage event.
type UsageSnapshot struct {
	Items []RateLimitItem
}

// Handlers bundles the caller's callbacks. Every field may be nil.
//
// Protocol events for one connection (OnToken, OnDone, OnError,
// OnUsage) are delivered in arrival order from the connection's read
// goroutine. OnStatus and OnDebug may additionally fire from timer and
// caller goroutines. Handlers may call back into the Client.
type Handlers struct {
	OnStatus       func(status Status, reason string)
	OnDebug        func(entry DebugEntry)
	OnThreadMapped func(localID, remoteID string)
	OnUsage        func(snapshot UsageSnapshot)
	OnToken        func(token Token)
	OnDone         func(done Done)
	OnError        func(event ErrorEvent)
}
