package codexlink

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Method names for requests the client originates.
const (
	methodInitialize         = "initialize"
	methodInitialized        = "initialized"
	methodNewConversation    = "newConversation"
	methodResumeConversation = "resumeConversation"
	methodSendUserTurn       = "sendUserTurn"
)

// Error codes the server family uses.
const (
	// codeMethodNotFound is the standard unknown-method rejection. The
	// usage prober treats it as "try the next candidate".
	codeMethodNotFound = -32601

	// codeQueueOverflow is a transient admission-control rejection,
	// retriable after a short delay.
	codeQueueOverflow = -32001
)

// Request is an outgoing frame. A Request without an ID is a one-way
// notification and will never receive a response.
type Request struct {
	ID     string      `json:"id,omitempty"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Frame is one inbound message. The server speaks several dialects, so
// every field is optional; a frame with an ID is a response to one of
// our requests, anything else is an event notification.
type Frame struct {
	ID     *FrameID        `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *WireError      `json:"error,omitempty"`
}

// IsResponse reports whether the frame replies to a request we sent.
func (f *Frame) IsResponse() bool {
	return f.ID != nil
}

// FrameID is a response id. Servers echo ids back as JSON strings or
// numbers depending on version; both decode to the string form.
type FrameID string

func (id *FrameID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FrameID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*id = FrameID(n.String())
	return nil
}

// WireError is the error member of a response frame.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ClientInfo identifies the client during the initialize handshake.
type ClientInfo struct {
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	Version    string `json:"version,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
}

type initializeParams struct {
	ClientInfo ClientInfo `json:"clientInfo"`
}

type newConversationParams struct {
	Model string `json:"model,omitempty"`
}

type resumeConversationParams struct {
	ConversationID string `json:"conversationId"`
}

type userTurnParams struct {
	ConversationID string     `json:"conversationId"`
	Items          []turnItem `json:"items"`
}

type turnItem struct {
	Type string       `json:"type"`
	Data turnItemData `json:"data"`
}

type turnItemData struct {
	Text string `json:"text"`
}

// NewInitializeRequest creates the handshake request.
func NewInitializeRequest(id string, info ClientInfo) *Request {
	return &Request{
		ID:     id,
		Method: methodInitialize,
		Params: initializeParams{ClientInfo: info},
	}
}

// NewInitializedNotification creates the one-way handshake
// acknowledgment sent after a successful initialize response.
func NewInitializedNotification() *Request {
	return &Request{Method: methodInitialized}
}

// NewStartConversationRequest creates a request for a fresh server
// conversation. Model may be empty to accept the server default.
func NewStartConversationRequest(id, model string) *Request {
	return &Request{
		ID:     id,
		Method: methodNewConversation,
		Params: newConversationParams{Model: model},
	}
}

// NewResumeConversationRequest creates a request to re-attach to a
// server conversation from an earlier session.
func NewResumeConversationRequest(id, conversationID string) *Request {
	return &Request{
		ID:     id,
		Method: methodResumeConversation,
		Params: resumeConversationParams{ConversationID: conversationID},
	}
}

// NewUserTurnRequest creates a turn-start request carrying the combined
// user text as the first input item.
func NewUserTurnRequest(id, conversationID, text string) *Request {
	return &Request{
		ID:     id,
		Method: methodSendUserTurn,
		Params: userTurnParams{
			ConversationID: conversationID,
			Items: []turnItem{
				{Type: "text", Data: turnItemData{Text: text}},
			},
		},
	}
}

// NewUsageProbeRequest creates a parameterless request for one usage
// probe candidate method.
func NewUsageProbeRequest(id, method string) *Request {
	return &Request{ID: id, Method: method}
}

// frameSummary renders a frame for debug entries.
func frameSummary(f *Frame) string {
	var b strings.Builder
	if f.ID != nil {
		fmt.Fprintf(&b, "id=%s ", string(*f.ID))
	}
	if f.Method != "" {
		fmt.Fprintf(&b, "method=%s ", f.Method)
	}
	if f.Error != nil {
		fmt.Fprintf(&b, "error=[%d] %s ", f.Error.Code, f.Error.Message)
	}
	if len(f.Params) > 0 {
		b.WriteString("params=" + truncate(string(f.Params), 512))
	} else if len(f.Result) > 0 {
		b.WriteString("result=" + truncate(string(f.Result), 512))
	}
	return strings.TrimSpace(b.String())
}

// requestSummary renders an outgoing request for debug entries.
func requestSummary(req *Request) string {
	var b strings.Builder
	if req.ID != "" {
		fmt.Fprintf(&b, "id=%s ", req.ID)
	}
	fmt.Fprintf(&b, "method=%s", req.Method)
	if req.Params != nil {
		if data, err := json.Marshal(req.Params); err == nil {
			b.WriteString(" params=" + truncate(string(data), 512))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
