// Package chat maintains a per-session view of conversation state by
// replaying the gateway's ordered event feed on top of periodic full
// history fetches. It owns pending-run accounting, streaming deltas,
// tool-call tracking, and resynchronization after feed gaps.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

// ErrNotSupported is returned when an optional transport capability is
// requested from a backend that does not implement it.
var ErrNotSupported = errors.New("operation not supported by transport")

// SendRequest carries one outbound user message.
type SendRequest struct {
	SessionKey     string
	Message        string
	ThinkingLevel  string
	IdempotencyKey string
	Attachments    []models.Attachment
}

// Transport is the minimal gateway connection a session needs. Optional
// operations are modeled as extension interfaces so a backend's
// capabilities are visible at compile time.
type Transport interface {
	// FetchHistory returns the full message list for a session key.
	FetchHistory(ctx context.Context, sessionKey string) (*models.HistoryPayload, error)

	// Send dispatches a message. The idempotency key doubles as the
	// provisional run identifier until the gateway assigns its own.
	Send(ctx context.Context, req SendRequest) (*models.SendResponse, error)

	// RequestHealth probes gateway liveness within the given timeout.
	RequestHealth(ctx context.Context, timeout time.Duration) bool

	// Events returns the live ordered event feed. A new subscription
	// starts from "now"; the feed is at-most-once and not restartable.
	Events() <-chan models.TransportEvent
}

// RunAborter is implemented by transports that can cancel a run.
type RunAborter interface {
	AbortRun(ctx context.Context, sessionKey, runID string) error
}

// SessionLister is implemented by transports that can enumerate
// sessions known to the gateway.
type SessionLister interface {
	ListSessions(ctx context.Context, limit int) (*models.SessionsListResponse, error)
}

// ActiveSessionNotifier is implemented by transports that want to know
// which session the surface is currently looking at.
type ActiveSessionNotifier interface {
	SetActiveSessionKey(sessionKey string)
}

// AbortRun cancels a run if the transport supports it.
func AbortRun(ctx context.Context, t Transport, sessionKey, runID string) error {
	aborter, ok := t.(RunAborter)
	if !ok {
		return ErrNotSupported
	}
	return aborter.AbortRun(ctx, sessionKey, runID)
}

// ListSessions enumerates sessions if the transport supports it.
func ListSessions(ctx context.Context, t Transport, limit int) (*models.SessionsListResponse, error) {
	lister, ok := t.(SessionLister)
	if !ok {
		return nil, ErrNotSupported
	}
	return lister.ListSessions(ctx, limit)
}
