package models

import "encoding/json"

// Socket methods a surface may call.
const (
	MethodHealth         = "health"
	MethodChatSend       = "chat.send"
	MethodChatHistory    = "chat.history"
	MethodChatAbort      = "chat.abort"
	MethodSessionsList   = "sessions.list"
	MethodSessionsActive = "sessions.active"
)

// ClientFrame is one request from a surface. ID correlates the
// response; a frame with an empty ID is a notification and gets none.
type ClientFrame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Server frame types.
const (
	FrameResponse = "response"
	FrameEvent    = "event"
)

// ServerFrame is one message from the gateway: either a response to a
// client frame or a feed event. Event frames carry a per-connection
// sequence number; a hole in the numbering means events were dropped
// and the surface must resynchronize.
type ServerFrame struct {
	Type string `json:"type"`

	// Response fields.
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`

	// Event fields.
	Seq   int64           `json:"seq,omitempty"`
	Event *TransportEvent `json:"event,omitempty"`
}

// FrameError describes a failed request.
type FrameError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Request parameter payloads.

type ChatSendParams struct {
	SessionKey     string       `json:"sessionKey"`
	Message        string       `json:"message"`
	ThinkingLevel  string       `json:"thinkingLevel,omitempty"`
	IdempotencyKey string       `json:"idempotencyKey"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
}

type ChatAbortParams struct {
	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId"`
}

type SessionsListParams struct {
	Limit int `json:"limit,omitempty"`
}

type SessionsActiveParams struct {
	SessionKey string `json:"sessionKey"`
}

// HealthResponse answers a health request.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
}
