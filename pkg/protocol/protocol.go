// Package protocol defines the JSON-RPC 2.0 / MCP wire envelope used on the
// client-facing side of the proxy, and the structured error code taxonomy
// from spec.md §7. No corpus library owns this envelope: even the official
// modelcontextprotocol/go-sdk's own StreamableHTTPHandler (see
// _examples/other_examples/..._golang-tools__internal-mcp-streamable.go.go)
// leaves event storage and session-id strategy as a documented TODO, and the
// gateway here needs full control over both for resumable replay and
// request-id remapping. This package is therefore hand-rolled on top of
// plain encoding/json, matching how the teacher itself favors small
// hand-written types over deep abstraction for wire formats.
package protocol

import "encoding/json"

// JSONRPCVersion is the only version this proxy speaks.
const JSONRPCVersion = "2.0"

// RequestID is the JSON-RPC id, which may be a string or a number on the
// wire. We normalize everything the proxy mints to a string internally and
// preserve the original wire representation for pass-through responses.
type RequestID = json.RawMessage

// Message is the envelope for every frame exchanged with the client:
// requests, responses and notifications are distinguished by which of
// ID/Method/Result/Error are present, matching JSON-RPC 2.0.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsRequest reports whether the message is a request expecting a response.
func (m *Message) IsRequest() bool { return m.Method != "" && len(m.ID) > 0 }

// IsNotification reports whether the message is a notification (no id).
func (m *Message) IsNotification() bool { return m.Method != "" && len(m.ID) == 0 }

// IsResponse reports whether the message is a response (success or error).
func (m *Message) IsResponse() bool { return m.Method == "" && len(m.ID) > 0 }

// Code is an MCP/JSON-RPC error code.
type Code int

// Error kinds from spec.md §7, using the standard JSON-RPC reserved range
// for the four MCP-standard kinds and the implementation-defined range
// (-32000..-32099) for proxy-specific kinds, matching spec.md §6.1's use of
// -32000 for method-not-allowed.
const (
	InvalidRequest       Code = -32600
	MethodNotFound       Code = -32601
	InvalidParams        Code = -32602
	InternalError        Code = -32603
	MethodNotAllowed     Code = -32000
	ConnectionClosed     Code = -32001
	ReverseRequestTimeout Code = -32002
	UserDenied           Code = -32003
	PermissionDenied     Code = -32004
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    Code            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// NewError builds an *Error with no data payload.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ProxyContext is the loosely-typed escape hatch carried in a request's
// `params._meta.proxyContext`, per spec.md §4.5 and §9 ("keep a loosely
// typed escape hatch for _meta.proxyContext but parse it at the boundary").
type ProxyContext struct {
	ProxyRequestID   string `json:"proxyRequestId"`
	UniformRequestID string `json:"uniformRequestId,omitempty"`
}

// Meta is the `_meta` object carried on requests/notifications that may
// hold a ProxyContext alongside other, untyped fields.
type Meta struct {
	ProxyContext *ProxyContext  `json:"proxyContext,omitempty"`
	Rest         map[string]any `json:"-"`
}

// MarshalJSON flattens ProxyContext back alongside any other meta fields.
func (m Meta) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range m.Rest {
		out[k] = v
	}
	if m.ProxyContext != nil {
		out["proxyContext"] = m.ProxyContext
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses `_meta`, extracting `proxyContext` into its typed
// field and leaving everything else in Rest.
func (m *Meta) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Rest = map[string]any{}
	for k, v := range raw {
		if k == "proxyContext" {
			var pc ProxyContext
			if err := json.Unmarshal(v, &pc); err != nil {
				return err
			}
			m.ProxyContext = &pc
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		m.Rest[k] = val
	}
	return nil
}
