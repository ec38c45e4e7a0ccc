// Package audit provides the bounded in-memory security audit trail for
// the gateway. Every security-relevant decision (auth outcomes, rejected
// sockets, rate limiting, blocked exec commands, suspicious traffic) is
// recorded as a typed event.
package audit

import "time"

// EventType categorizes security audit events.
type EventType string

const (
	EventAuthFailure          EventType = "auth_failure"
	EventAuthSuccess          EventType = "auth_success"
	EventWSRejected           EventType = "ws_rejected"
	EventRateLimited          EventType = "rate_limited"
	EventSuspiciousRequest    EventType = "suspicious_request"
	EventExecBlocked          EventType = "exec_blocked"
	EventPathTraversalAttempt EventType = "path_traversal_attempt"
	EventOversizedRequest     EventType = "oversized_request"
)

// Event is a single audit trail entry.
type Event struct {
	// ID is a unique identifier for this audit event.
	ID string `json:"id"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// IP is the remote address the event is attributed to.
	IP string `json:"ip"`

	// Details is free-text context for the event.
	Details string `json:"details"`
}
