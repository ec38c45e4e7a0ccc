package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thesecretlab-dev/anima-dashboard/internal/sessions"
	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

var (
	// ErrEmptyMessage rejects a send with no visible content.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoActiveRun is returned by Abort when nothing is in flight.
	ErrNoActiveRun = errors.New("no active run")
)

const (
	defaultHealthTimeout  = 5 * time.Second
	defaultRefreshTimeout = 30 * time.Second
	defaultListLimit      = 50
)

// ToolCall is a tool invocation that has started but not yet resolved.
type ToolCall struct {
	ID        string
	Name      string
	StartedAt int64
}

// Snapshot is a point-in-time copy of session state, consistent with
// respect to event application.
type Snapshot struct {
	DisplayKey    string
	CanonicalKey  string
	SessionID     string
	ThinkingLevel string

	HealthOK  bool
	Loaded    bool
	ErrorText string

	// StreamingAssistantText is nil when no assistant delta is live.
	StreamingAssistantText *string

	PendingRunCount  int
	PendingToolCalls []ToolCall

	Messages []DisplayMessage
	Choices  []string
}

// Options configures a Session.
type Options struct {
	// Scope qualifies the canonical session key (agent:<scope>:<key>).
	Scope            string
	Logger           *slog.Logger
	HealthTimeout    time.Duration
	SessionListLimit int
}

// Session reconciles one conversation's state from the transport's
// ordered event feed plus full history fetches. All mutable state is
// owned by a single worker goroutine; Load, Send, Abort and Snapshot
// post into its inbox, so event application within the session is
// strictly ordered and never interleaves with command handling.
type Session struct {
	transport  Transport
	displayKey string
	scope      string
	logger     *slog.Logger

	healthTimeout time.Duration
	listLimit     int
	now           func() time.Time

	inbox     chan func()
	closing   chan struct{}
	closeOnce sync.Once

	// Worker-owned state. Touched only from the worker goroutine.
	sessionID     string
	thinkingLevel string
	healthOK      bool
	loaded        bool
	errorText     string
	streaming     *string
	pendingRuns   map[string]struct{}
	resolvedRuns  map[string]struct{}
	pendingTools  map[string]ToolCall
	messages      []DisplayMessage
	choices       []string
	lastRunID     string

	refreshActive bool
	refreshQueued bool
}

// NewSession starts the worker for a session and subscribes it to the
// transport's event feed. Callers must Close the session when done.
func NewSession(transport Transport, displayKey string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = defaultHealthTimeout
	}
	listLimit := opts.SessionListLimit
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}

	s := &Session{
		transport:     transport,
		displayKey:    displayKey,
		scope:         opts.Scope,
		logger:        logger.With("component", "chat", "session", displayKey),
		healthTimeout: healthTimeout,
		listLimit:     listLimit,
		now:           time.Now,
		inbox:         make(chan func(), 16),
		closing:       make(chan struct{}),
		pendingRuns:   make(map[string]struct{}),
		resolvedRuns:  make(map[string]struct{}),
		pendingTools:  make(map[string]ToolCall),
	}
	go s.loop()
	return s
}

// Close stops the worker. Pending commands are dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Session) loop() {
	events := s.transport.Events()
	for {
		select {
		case <-s.closing:
			return
		case cmd := <-s.inbox:
			cmd()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.apply(ev)
		}
	}
}

// post runs fn on the worker goroutine. Returns false if the session
// is closed.
func (s *Session) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.closing:
		return false
	}
}

// Load bootstraps the session: health probe, full history fetch, and
// the session list when the conversation is fresh. Failures degrade
// (healthOK=false, errorText) rather than aborting.
func (s *Session) Load(ctx context.Context) {
	healthOK := s.transport.RequestHealth(ctx, s.healthTimeout)

	history, histErr := s.transport.FetchHistory(ctx, s.displayKey)

	var (
		list    *models.SessionsListResponse
		listErr error
	)
	fresh := histErr == nil && (history == nil || len(history.Messages) == 0)
	if lister, ok := s.transport.(SessionLister); ok && fresh {
		list, listErr = lister.ListSessions(ctx, s.listLimit)
	}

	if notifier, ok := s.transport.(ActiveSessionNotifier); ok {
		notifier.SetActiveSessionKey(s.displayKey)
	}

	s.post(func() {
		s.healthOK = healthOK
		s.loaded = true
		switch {
		case histErr != nil:
			s.errorText = fmt.Sprintf("failed to load history: %v", histErr)
			s.logger.Warn("history load failed", "error", histErr)
		case history != nil:
			s.applyHistory(history)
		}
		if listErr != nil {
			s.errorText = fmt.Sprintf("failed to list sessions: %v", listErr)
			s.logger.Warn("session list failed", "error", listErr)
		} else if list != nil {
			s.choices = SessionChoices(s.displayKey, list.Sessions, s.now())
		}
	})
}

// Send dispatches a user message and returns the idempotency key that
// provisionally identifies the run. The pending-run count is bumped
// before the network call so the run is visible immediately; a dispatch
// failure rolls the count back and surfaces through errorText instead
// of an error return.
func (s *Session) Send(ctx context.Context, text string, attachments ...models.Attachment) (string, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return "", ErrEmptyMessage
	}

	key := uuid.NewString()
	var thinking string
	registered := make(chan struct{})
	ok := s.post(func() {
		s.pendingRuns[key] = struct{}{}
		s.lastRunID = key
		thinking = s.thinkingLevel
		close(registered)
	})
	if !ok {
		return "", errors.New("session closed")
	}
	select {
	case <-registered:
	case <-s.closing:
		return "", errors.New("session closed")
	}

	go func() {
		resp, err := s.transport.Send(ctx, SendRequest{
			SessionKey:     s.displayKey,
			Message:        text,
			ThinkingLevel:  thinking,
			IdempotencyKey: key,
			Attachments:    attachments,
		})
		if err != nil {
			s.post(func() {
				delete(s.pendingRuns, key)
				if s.lastRunID == key {
					s.lastRunID = ""
				}
				s.errorText = fmt.Sprintf("send failed: %v", err)
			})
			s.logger.Warn("send dispatch failed", "error", err)
			return
		}
		if resp == nil || resp.RunID == "" || resp.RunID == key {
			return
		}
		// The gateway assigned its own run id; retag the pending entry
		// so terminal events addressed by that id resolve to this run.
		s.post(func() {
			if _, done := s.resolvedRuns[resp.RunID]; done {
				// The terminal event beat this reply; the run is over.
				delete(s.resolvedRuns, resp.RunID)
				delete(s.pendingRuns, key)
				if s.lastRunID == key {
					s.lastRunID = ""
				}
				return
			}
			if _, pending := s.pendingRuns[key]; pending {
				delete(s.pendingRuns, key)
				s.pendingRuns[resp.RunID] = struct{}{}
			}
			if s.lastRunID == key {
				s.lastRunID = resp.RunID
			}
		})
	}()
	return key, nil
}

// Abort requests cancellation of the most recent run. The pending-run
// count is untouched here: cancellation is confirmed only by the
// terminal chat event, which may be "aborted" or a racing "final".
func (s *Session) Abort(ctx context.Context) error {
	aborter, ok := s.transport.(RunAborter)
	if !ok {
		return ErrNotSupported
	}

	var runID string
	read := make(chan struct{})
	if !s.post(func() { runID = s.lastRunID; close(read) }) {
		return errors.New("session closed")
	}
	select {
	case <-read:
	case <-s.closing:
		return errors.New("session closed")
	}

	if runID == "" {
		return ErrNoActiveRun
	}
	return aborter.AbortRun(ctx, s.displayKey, runID)
}

// Snapshot returns a consistent copy of the session state, ordered
// after every event and command already posted.
func (s *Session) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !s.post(func() { reply <- s.snapshot() }) {
		return Snapshot{DisplayKey: s.displayKey, CanonicalKey: sessions.CanonicalKey(s.scope, s.displayKey)}
	}
	select {
	case snap := <-reply:
		return snap
	case <-s.closing:
		return Snapshot{DisplayKey: s.displayKey, CanonicalKey: sessions.CanonicalKey(s.scope, s.displayKey)}
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		DisplayKey:      s.displayKey,
		CanonicalKey:    sessions.CanonicalKey(s.scope, s.displayKey),
		SessionID:       s.sessionID,
		ThinkingLevel:   s.thinkingLevel,
		HealthOK:        s.healthOK,
		Loaded:          s.loaded,
		ErrorText:       s.errorText,
		PendingRunCount: len(s.pendingRuns),
		Messages:        append([]DisplayMessage(nil), s.messages...),
		Choices:         append([]string(nil), s.choices...),
	}
	if s.streaming != nil {
		text := *s.streaming
		snap.StreamingAssistantText = &text
	}
	if len(s.pendingTools) > 0 {
		snap.PendingToolCalls = make([]ToolCall, 0, len(s.pendingTools))
		for _, call := range s.pendingTools {
			snap.PendingToolCalls = append(snap.PendingToolCalls, call)
		}
		sort.Slice(snap.PendingToolCalls, func(i, j int) bool {
			return snap.PendingToolCalls[i].ID < snap.PendingToolCalls[j].ID
		})
	}
	return snap
}

// apply consumes one feed event. Runs on the worker goroutine.
func (s *Session) apply(ev models.TransportEvent) {
	switch ev.Type {
	case models.EventHealth:
		if ev.Health != nil {
			s.healthOK = ev.Health.OK
		}

	case models.EventTick:
		// Liveness only.

	case models.EventAgent:
		s.applyAgent(ev.Agent)

	case models.EventChat:
		s.applyChat(ev.Chat)

	case models.EventSeqGap:
		// Unknown state: the missed events may have included terminal
		// chat events, so waiting for them would leak pending runs.
		s.pendingRuns = make(map[string]struct{})
		s.resolvedRuns = make(map[string]struct{})
		s.pendingTools = make(map[string]ToolCall)
		s.streaming = nil
		s.lastRunID = ""
		s.logger.Info("event feed gap, resyncing")
		s.triggerRefresh()

	default:
		s.logger.Debug("ignoring unknown event type", "type", ev.Type)
	}
}

func (s *Session) applyAgent(p *models.AgentEventPayload) {
	if p == nil {
		return
	}
	switch p.Stream {
	case models.StreamAssistant:
		// Deltas are cumulative, last write wins.
		if text, ok := p.Text(); ok {
			s.streaming = &text
		}
	case models.StreamTool:
		id := p.ToolCallID()
		if id == "" {
			return
		}
		switch p.ToolPhase() {
		case models.ToolPhaseStart:
			s.pendingTools[id] = ToolCall{ID: id, Name: p.ToolName(), StartedAt: p.Ts}
		case models.ToolPhaseEnd, models.ToolPhaseError:
			delete(s.pendingTools, id)
		}
	}
}

func (s *Session) applyChat(p *models.ChatEventPayload) {
	if p == nil {
		return
	}
	if !sessions.KeysEquivalent(p.SessionKey, s.scope, s.displayKey) {
		return
	}
	if !p.State.Terminal() {
		return
	}

	s.streaming = nil
	s.pendingTools = make(map[string]ToolCall)

	if p.RunID == "" {
		// Not run-addressable: resolves whatever is in flight here.
		s.pendingRuns = make(map[string]struct{})
		s.lastRunID = ""
	} else if _, ok := s.pendingRuns[p.RunID]; ok {
		delete(s.pendingRuns, p.RunID)
		if s.lastRunID == p.RunID {
			s.lastRunID = ""
		}
	} else if len(s.pendingRuns) > 0 {
		// Terminal for an id we never registered while a dispatch is in
		// flight: the reply carrying the gateway-assigned id may still
		// be on the wire, so record the resolution for the retag to
		// consume instead of re-registering a finished run.
		s.resolvedRuns[p.RunID] = struct{}{}
	}
	if len(s.pendingRuns) == 0 && len(s.resolvedRuns) > 0 {
		s.resolvedRuns = make(map[string]struct{})
	}

	if p.State == models.RunStateError && p.ErrorMessage != "" {
		s.errorText = p.ErrorMessage
	}
	s.triggerRefresh()
}

// triggerRefresh schedules a history re-fetch without blocking event
// consumption. Refreshes are coalesced: at most one in flight, at most
// one queued, so a slow fetch cannot be overtaken by a faster later one.
func (s *Session) triggerRefresh() {
	if s.refreshActive {
		s.refreshQueued = true
		return
	}
	s.refreshActive = true
	go s.refresh()
}

func (s *Session) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRefreshTimeout)
	defer cancel()

	history, err := s.transport.FetchHistory(ctx, s.displayKey)
	s.post(func() {
		if err != nil {
			// Already-applied state stays intact on a failed refresh.
			s.logger.Warn("history refresh failed", "error", err)
		} else if history != nil {
			s.applyHistory(history)
		}
		if s.refreshQueued {
			s.refreshQueued = false
			go s.refresh()
		} else {
			s.refreshActive = false
		}
	})
}

func (s *Session) applyHistory(history *models.HistoryPayload) {
	s.messages = buildDisplayMessages(history.Messages)
	if history.SessionID != "" {
		s.sessionID = history.SessionID
	}
	if history.ThinkingLevel != "" {
		s.thinkingLevel = history.ThinkingLevel
	}
}
