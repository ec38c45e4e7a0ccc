// Package models provides the wire vocabulary exchanged between chat
// surfaces and the ANIMA gateway.
package models

import (
	"encoding/json"
	"fmt"
)

// TransportEvent is the unified event model for the gateway feed.
// It is the single ordered stream a surface consumes to reconcile
// session state.
//
// Design principles:
//   - Versioned and forward-compatible (add fields, don't rename/remove)
//   - Single Type discriminator with optional payload pointers
//   - Exactly one payload is non-nil for a given Type
type TransportEvent struct {
	// Version for forward compatibility. Current version: 1.
	Version int `json:"version"`

	// Type identifies the kind of event.
	Type TransportEventType `json:"type"`

	// Exactly one payload should be non-nil for a given Type.
	// Tick and SeqGap events carry no payload.
	Health *HealthEventPayload `json:"health,omitempty"`
	Chat   *ChatEventPayload   `json:"chat,omitempty"`
	Agent  *AgentEventPayload  `json:"agent,omitempty"`
}

// TransportEventType identifies the kind of transport event.
type TransportEventType string

const (
	// EventHealth reports gateway health; no other state change.
	EventHealth TransportEventType = "health"

	// EventTick is a liveness heartbeat; consumers ignore it.
	EventTick TransportEventType = "tick"

	// EventChat reports a run lifecycle transition for a session.
	EventChat TransportEventType = "chat"

	// EventAgent is a streaming delta emitted by an in-flight run.
	EventAgent TransportEventType = "agent"

	// EventSeqGap marks a feed discontinuity: events between the last
	// delivered one and now may have been lost. Consumers must fall
	// back to a full state re-fetch.
	EventSeqGap TransportEventType = "seq_gap"
)

// HealthEventPayload carries the gateway health flag.
type HealthEventPayload struct {
	OK bool `json:"ok"`
}

// RunState enumerates run lifecycle states carried by chat events.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateStreaming RunState = "streaming"
	RunStateFinal     RunState = "final"
	RunStateAborted   RunState = "aborted"
	RunStateError     RunState = "error"
)

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateFinal, RunStateAborted, RunStateError:
		return true
	default:
		return false
	}
}

// ChatEventPayload reports a run lifecycle transition. SessionKey may be
// either the literal display key or the canonical agent-scoped key; both
// resolve to the same session.
type ChatEventPayload struct {
	RunID        string   `json:"runId"`
	SessionKey   string   `json:"sessionKey"`
	State        RunState `json:"state"`
	Message      *Message `json:"message,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
}

// Agent stream identifiers carried by AgentEventPayload.
const (
	StreamAssistant = "assistant"
	StreamTool      = "tool"
)

// Tool phase values carried in agent event data.
const (
	ToolPhaseStart = "start"
	ToolPhaseEnd   = "end"
	ToolPhaseError = "error"
)

// AgentEventPayload is a streaming delta from an in-flight run.
//
// For Stream == "assistant", Data["text"] holds the cumulative assistant
// text so far (last write wins, not a diff). For Stream == "tool",
// Data carries "phase", "toolCallId", "name" and "args".
type AgentEventPayload struct {
	RunID  string         `json:"runId"`
	Seq    int64          `json:"seq"`
	Stream string         `json:"stream"`
	Ts     int64          `json:"ts"`
	Data   map[string]any `json:"data,omitempty"`
}

// Text returns the cumulative assistant text for an assistant delta.
func (p *AgentEventPayload) Text() (string, bool) {
	if p == nil || p.Data == nil {
		return "", false
	}
	text, ok := p.Data["text"].(string)
	return text, ok
}

// ToolPhase returns the tool phase for a tool delta.
func (p *AgentEventPayload) ToolPhase() string {
	if p == nil || p.Data == nil {
		return ""
	}
	phase, _ := p.Data["phase"].(string)
	return phase
}

// ToolCallID returns the tool call identifier for a tool delta.
func (p *AgentEventPayload) ToolCallID() string {
	if p == nil || p.Data == nil {
		return ""
	}
	id, _ := p.Data["toolCallId"].(string)
	return id
}

// ToolName returns the tool name for a tool delta.
func (p *AgentEventPayload) ToolName() string {
	if p == nil || p.Data == nil {
		return ""
	}
	name, _ := p.Data["name"].(string)
	return name
}

// NewHealthEvent builds a health event.
func NewHealthEvent(ok bool) TransportEvent {
	return TransportEvent{Version: 1, Type: EventHealth, Health: &HealthEventPayload{OK: ok}}
}

// NewTickEvent builds a heartbeat event.
func NewTickEvent() TransportEvent {
	return TransportEvent{Version: 1, Type: EventTick}
}

// NewChatEvent builds a chat lifecycle event.
func NewChatEvent(payload ChatEventPayload) TransportEvent {
	return TransportEvent{Version: 1, Type: EventChat, Chat: &payload}
}

// NewAgentEvent builds a streaming delta event.
func NewAgentEvent(payload AgentEventPayload) TransportEvent {
	return TransportEvent{Version: 1, Type: EventAgent, Agent: &payload}
}

// NewSeqGapEvent builds a feed discontinuity marker.
func NewSeqGapEvent() TransportEvent {
	return TransportEvent{Version: 1, Type: EventSeqGap}
}

// Validate checks that the event carries the payload its type requires.
func (e *TransportEvent) Validate() error {
	switch e.Type {
	case EventHealth:
		if e.Health == nil {
			return fmt.Errorf("health event missing payload")
		}
	case EventChat:
		if e.Chat == nil {
			return fmt.Errorf("chat event missing payload")
		}
	case EventAgent:
		if e.Agent == nil {
			return fmt.Errorf("agent event missing payload")
		}
	case EventTick, EventSeqGap:
		// No payload.
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// MarshalJSON ensures Version defaults to 1 when unset.
func (e TransportEvent) MarshalJSON() ([]byte, error) {
	if e.Version == 0 {
		e.Version = 1
	}
	type alias TransportEvent
	return json.Marshal(alias(e))
}
