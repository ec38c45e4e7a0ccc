package models

// HistoryPayload is the response to a history fetch for one session.
type HistoryPayload struct {
	SessionKey    string    `json:"sessionKey"`
	SessionID     string    `json:"sessionId,omitempty"`
	Messages      []Message `json:"messages"`
	ThinkingLevel string    `json:"thinkingLevel,omitempty"`
}

// SendResponse acknowledges a dispatched message. RunID echoes the
// caller's idempotency key until the gateway assigns its own run id in
// emitted events.
type SendResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// SessionsListResponse is the response to a session list request.
type SessionsListResponse struct {
	Ts       int64           `json:"ts,omitempty"`
	Path     string          `json:"path,omitempty"`
	Count    int             `json:"count"`
	Defaults *SessionDefault `json:"defaults,omitempty"`
	Sessions []SessionEntry  `json:"sessions"`
}

// SessionDefault carries gateway-side defaults for new sessions.
type SessionDefault struct {
	ThinkingLevel string `json:"thinkingLevel,omitempty"`
	Model         string `json:"model,omitempty"`
}

// SessionEntry describes one known session in a list response.
// UpdatedAt is unix milliseconds of the last activity.
type SessionEntry struct {
	Key            string `json:"key"`
	Kind           string `json:"kind,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	Surface        string `json:"surface,omitempty"`
	UpdatedAt      int64  `json:"updatedAt,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	AbortedLastRun bool   `json:"abortedLastRun,omitempty"`
	ThinkingLevel  string `json:"thinkingLevel,omitempty"`
	Model          string `json:"model,omitempty"`
	InputTokens    int64  `json:"inputTokens,omitempty"`
	OutputTokens   int64  `json:"outputTokens,omitempty"`
	TotalTokens    int64  `json:"totalTokens,omitempty"`
	ContextTokens  int64  `json:"contextTokens,omitempty"`
}
