package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

// fakeTransport implements Transport plus all optional capabilities.
type fakeTransport struct {
	mu sync.Mutex

	health     bool
	history    *models.HistoryPayload
	historyErr error
	histCalls  int

	sendResp *models.SendResponse
	sendErr  error
	sends    []SendRequest

	list    *models.SessionsListResponse
	listErr error

	aborts []string
	active []string

	events chan models.TransportEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		health: true,
		history: &models.HistoryPayload{
			SessionKey: "main",
			SessionID:  "sess-1",
			Messages:   []models.Message{},
		},
		events: make(chan models.TransportEvent, 32),
	}
}

func (f *fakeTransport) FetchHistory(ctx context.Context, sessionKey string) (*models.HistoryPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	payload := *f.history
	payload.Messages = append([]models.Message(nil), f.history.Messages...)
	return &payload, nil
}

func (f *fakeTransport) Send(ctx context.Context, req SendRequest) (*models.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendResp != nil {
		return f.sendResp, nil
	}
	return &models.SendResponse{RunID: req.IdempotencyKey, Status: "accepted"}, nil
}

func (f *fakeTransport) RequestHealth(ctx context.Context, timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *fakeTransport) Events() <-chan models.TransportEvent { return f.events }

func (f *fakeTransport) AbortRun(ctx context.Context, sessionKey, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts = append(f.aborts, runID)
	return nil
}

func (f *fakeTransport) ListSessions(ctx context.Context, limit int) (*models.SessionsListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.list == nil {
		return &models.SessionsListResponse{}, nil
	}
	return f.list, nil
}

func (f *fakeTransport) SetActiveSessionKey(sessionKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = append(f.active, sessionKey)
}

func (f *fakeTransport) setHistory(messages ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history.Messages = messages
}

func (f *fakeTransport) historyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histCalls
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeTransport) abortedRuns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.aborts...)
}

// minimalTransport exposes only the core operations; none of the
// optional capability interfaces are satisfied.
type minimalTransport struct{ inner *fakeTransport }

func (m minimalTransport) FetchHistory(ctx context.Context, key string) (*models.HistoryPayload, error) {
	return m.inner.FetchHistory(ctx, key)
}

func (m minimalTransport) Send(ctx context.Context, req SendRequest) (*models.SendResponse, error) {
	return m.inner.Send(ctx, req)
}

func (m minimalTransport) RequestHealth(ctx context.Context, timeout time.Duration) bool {
	return m.inner.RequestHealth(ctx, timeout)
}

func (m minimalTransport) Events() <-chan models.TransportEvent { return m.inner.Events() }

func newTestSession(t *testing.T, transport Transport) *Session {
	t.Helper()
	s := NewSession(transport, "main", Options{Scope: "test-scope"})
	t.Cleanup(s.Close)
	return s
}

// waitSnapshot polls until cond holds or the deadline passes.
func waitSnapshot(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var snap Snapshot
	for time.Now().Before(deadline) {
		snap = s.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached, last snapshot: %+v", snap)
	return snap
}

func userMessage(text string, ts int64) models.Message {
	return models.Message{Role: models.RoleUser, Content: []models.ContentBlock{models.TextBlock(text)}, Timestamp: ts}
}

func assistantMessage(text string, ts int64) models.Message {
	return models.Message{Role: models.RoleAssistant, Content: []models.ContentBlock{models.TextBlock(text)}, Timestamp: ts}
}

func TestLoadBootstrap(t *testing.T) {
	transport := newFakeTransport()
	transport.setHistory(userMessage("hello", 1000), assistantMessage("hi there", 2000))
	s := newTestSession(t, transport)

	s.Load(context.Background())
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.Loaded })

	if !snap.HealthOK {
		t.Error("expected healthOK after bootstrap")
	}
	if snap.SessionID != "sess-1" {
		t.Errorf("sessionID = %q, want sess-1", snap.SessionID)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(snap.Messages))
	}
	if snap.ErrorText != "" {
		t.Errorf("unexpected error text %q", snap.ErrorText)
	}
	if snap.CanonicalKey != "agent:test-scope:main" {
		t.Errorf("canonical key = %q", snap.CanonicalKey)
	}

	transport.mu.Lock()
	active := append([]string(nil), transport.active...)
	transport.mu.Unlock()
	if len(active) != 1 || active[0] != "main" {
		t.Errorf("active session notifications = %v", active)
	}
}

func TestLoadFreshSessionFetchesChoices(t *testing.T) {
	transport := newFakeTransport()
	now := time.Now()
	transport.list = &models.SessionsListResponse{Sessions: []models.SessionEntry{
		{Key: "agent:test-scope:main", UpdatedAt: now.Add(-26 * time.Hour).UnixMilli()},
		{Key: "agent:test-scope:recent-1", UpdatedAt: now.Add(-2 * time.Hour).UnixMilli()},
	}}
	s := newTestSession(t, transport)

	s.Load(context.Background())
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.Loaded })

	want := []string{"main", "recent-1"}
	if len(snap.Choices) != len(want) {
		t.Fatalf("choices = %v, want %v", snap.Choices, want)
	}
	for i := range want {
		if snap.Choices[i] != want[i] {
			t.Fatalf("choices = %v, want %v", snap.Choices, want)
		}
	}
}

func TestLoadHealthFailureDoesNotAbort(t *testing.T) {
	transport := newFakeTransport()
	transport.health = false
	transport.setHistory(userMessage("hello", 1000))
	s := newTestSession(t, transport)

	s.Load(context.Background())
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.Loaded })

	if snap.HealthOK {
		t.Error("expected healthOK=false")
	}
	if len(snap.Messages) != 1 {
		t.Errorf("history should still load, got %d messages", len(snap.Messages))
	}
	if snap.ErrorText != "" {
		t.Errorf("health failure should not set error text, got %q", snap.ErrorText)
	}
}

func TestLoadHistoryFailureSetsErrorText(t *testing.T) {
	transport := newFakeTransport()
	transport.historyErr = errors.New("gateway unreachable")
	s := newTestSession(t, transport)

	s.Load(context.Background())
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.Loaded })

	if snap.ErrorText == "" {
		t.Fatal("expected error text after history failure")
	}
}

func TestSendEmptyMessage(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	if _, err := s.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if snap := s.Snapshot(); snap.PendingRunCount != 0 {
		t.Errorf("pending = %d, want 0", snap.PendingRunCount)
	}
}

func TestSendStreamToolFinalLifecycle(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)
	s.Load(context.Background())
	waitSnapshot(t, s, func(snap Snapshot) bool { return snap.Loaded })

	runID, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if snap := s.Snapshot(); snap.PendingRunCount != 1 {
		t.Fatalf("pending = %d immediately after send, want 1", snap.PendingRunCount)
	}

	transport.events <- models.NewAgentEvent(models.AgentEventPayload{
		RunID: runID, Seq: 1, Stream: models.StreamAssistant,
		Data: map[string]any{"text": "streaming…"},
	})
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.StreamingAssistantText != nil })
	if got := *snap.StreamingAssistantText; got != "streaming…" {
		t.Errorf("streaming text = %q", got)
	}

	transport.events <- models.NewAgentEvent(models.AgentEventPayload{
		RunID: runID, Seq: 2, Stream: models.StreamTool,
		Data: map[string]any{"phase": "start", "toolCallId": "tc-1", "name": "exec"},
	})
	snap = waitSnapshot(t, s, func(snap Snapshot) bool { return len(snap.PendingToolCalls) == 1 })
	if snap.PendingToolCalls[0].Name != "exec" {
		t.Errorf("tool name = %q", snap.PendingToolCalls[0].Name)
	}

	transport.setHistory(userMessage("hi", 1000), assistantMessage("done", 2000))
	transport.events <- models.NewChatEvent(models.ChatEventPayload{
		RunID: runID, SessionKey: "main", State: models.RunStateFinal,
	})

	snap = waitSnapshot(t, s, func(snap Snapshot) bool {
		return snap.PendingRunCount == 0 && len(snap.Messages) == 2
	})
	if snap.StreamingAssistantText != nil {
		t.Error("streaming text should clear on terminal event")
	}
	if len(snap.PendingToolCalls) != 0 {
		t.Error("tool calls should clear on terminal event")
	}
	if snap.ErrorText != "" {
		t.Errorf("unexpected error text %q", snap.ErrorText)
	}
	if snap.Messages[1].FirstText() != "done" {
		t.Errorf("refreshed history missing assistant reply: %+v", snap.Messages)
	}
}

func TestSendDispatchFailureRollsBack(t *testing.T) {
	transport := newFakeTransport()
	transport.sendErr = errors.New("dial tcp: connection refused")
	s := newTestSession(t, transport)

	if _, err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("dispatch failures must not propagate, got %v", err)
	}
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.PendingRunCount == 0 && snap.ErrorText != "" })
	if snap.PendingRunCount != 0 {
		t.Errorf("pending = %d after rollback", snap.PendingRunCount)
	}
}

func TestRunIDReassignment(t *testing.T) {
	transport := newFakeTransport()
	transport.sendResp = &models.SendResponse{RunID: "gw-run-7", Status: "accepted"}
	s := newTestSession(t, transport)

	if _, err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitSnapshot(t, s, func(snap Snapshot) bool { return snap.PendingRunCount == 1 })

	// Wait for the retag before emitting the terminal event; Abort
	// reports the currently tracked run id.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := s.Abort(context.Background()); err != nil {
			t.Fatalf("abort: %v", err)
		}
		aborts := transport.abortedRuns()
		if aborts[len(aborts)-1] == "gw-run-7" {
			break
		}
		if !time.Now().Before(deadline) {
			t.Fatalf("run id never retagged, aborts = %v", aborts)
		}
		time.Sleep(2 * time.Millisecond)
	}

	transport.events <- models.NewChatEvent(models.ChatEventPayload{
		RunID: "gw-run-7", SessionKey: "main", State: models.RunStateFinal,
	})
	waitSnapshot(t, s, func(snap Snapshot) bool { return snap.PendingRunCount == 0 })
}

// earlyTerminalTransport delivers the terminal chat event for the
// gateway-assigned run id and holds the dispatch reply until the
// session has applied it, observed through the refresh it triggers.
type earlyTerminalTransport struct {
	*fakeTransport
	runID string
}

func (tr *earlyTerminalTransport) Send(ctx context.Context, req SendRequest) (*models.SendResponse, error) {
	before := tr.historyCalls()
	tr.events <- models.NewChatEvent(models.ChatEventPayload{
		RunID: tr.runID, SessionKey: "main", State: models.RunStateFinal,
	})
	deadline := time.Now().Add(2 * time.Second)
	for tr.historyCalls() == before {
		if !time.Now().Before(deadline) {
			return nil, errors.New("terminal event never applied")
		}
		time.Sleep(2 * time.Millisecond)
	}
	return &models.SendResponse{RunID: tr.runID, Status: "accepted"}, nil
}

func TestTerminalEventBeforeDispatchReply(t *testing.T) {
	transport := &earlyTerminalTransport{fakeTransport: newFakeTransport(), runID: "gw-run-9"}
	s := newTestSession(t, transport)

	if _, err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The run already finished when the reply lands; the retag must
	// settle the provisional entry, not resurrect the run.
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.PendingRunCount == 0 })
	if snap.ErrorText != "" {
		t.Errorf("errorText = %q, want empty", snap.ErrorText)
	}

	if err := s.Abort(context.Background()); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("abort after settled run = %v, want ErrNoActiveRun", err)
	}
}

func TestCanonicalKeyEquivalence(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	runID, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	transport.events <- models.NewChatEvent(models.ChatEventPayload{
		RunID: runID, SessionKey: "agent:test-scope:main", State: models.RunStateFinal,
	})
	waitSnapshot(t, s, func(snap Snapshot) bool { return snap.PendingRunCount == 0 })
}

func TestChatEventForOtherSessionIgnored(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	runID, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	transport.events <- models.NewChatEvent(models.ChatEventPayload{
		RunID: runID, SessionKey: "other", State: models.RunStateFinal,
	})
	// Health event as an ordering fence: once it is visible, the chat
	// event before it on the feed has been applied.
	transport.events <- models.NewHealthEvent(true)
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.HealthOK })
	if snap.PendingRunCount != 1 {
		t.Errorf("pending = %d, foreign-session event must not resolve a run", snap.PendingRunCount)
	}
}

func TestErrorEventSetsErrorText(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	runID, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	transport.events <- models.NewChatEvent(models.ChatEventPayload{
		RunID: runID, SessionKey: "main", State: models.RunStateError, ErrorMessage: "model overloaded",
	})
	snap := waitSnapshot(t, s, func(snap Snapshot) bool { return snap.PendingRunCount == 0 })
	if snap.ErrorText != "model overloaded" {
		t.Errorf("error text = %q", snap.ErrorText)
	}
}

func TestAbortDoesNotDecrementPending(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	runID, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	waitSnapshot(t, s, func(snap Snapshot) bool { return snap.PendingRunCount == 1 })

	if err := s.Abort(context.Background()); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if aborts := transport.abortedRuns(); len(aborts) != 1 || aborts[0] != runID {
		t.Fatalf("aborted runs = %v, want [%s]", aborts, runID)
	}

	// The abort call alone resolves nothing.
	if snap := s.Snapshot(); snap.PendingRunCount != 1 {
		t.Fatalf("pending = %d after abort call, want 1", snap.PendingRunCount)
	}

	transport.events <- models.NewChatEvent(models.ChatEventPayload{
		RunID: runID, SessionKey: "main", State: models.RunStateAborted,
	})
	waitSnapshot(t, s, func(snap Snapshot) bool { return snap.PendingRunCount == 0 })
}

func TestAbortWithoutCapability(t *testing.T) {
	transport := minimalTransport{newFakeTransport()}
	s := newTestSession(t, transport)

	if err := s.Abort(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestAbortNoActiveRun(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	if err := s.Abort(context.Background()); !errors.Is(err, ErrNoActiveRun) {
		t.Fatalf("expected ErrNoActiveRun, got %v", err)
	}
}

func TestSeqGapResync(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	runID, err := s.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	transport.events <- models.NewAgentEvent(models.AgentEventPayload{
		RunID: runID, Seq: 1, Stream: models.StreamAssistant,
		Data: map[string]any{"text": "partial"},
	})
	waitSnapshot(t, s, func(snap Snapshot) bool { return snap.StreamingAssistantText != nil })

	before := transport.historyCalls()
	transport.events <- models.NewSeqGapEvent()

	snap := waitSnapshot(t, s, func(snap Snapshot) bool {
		return snap.PendingRunCount == 0 && transport.historyCalls() > before
	})
	if snap.StreamingAssistantText != nil {
		t.Error("streaming text should clear on gap")
	}
	if snap.ErrorText != "" {
		t.Errorf("gap must not set error text, got %q", snap.ErrorText)
	}
}

func TestToolEndClearsPendingCall(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	transport.events <- models.NewAgentEvent(models.AgentEventPayload{
		RunID: "r", Seq: 1, Stream: models.StreamTool,
		Data: map[string]any{"phase": "start", "toolCallId": "tc-9", "name": "browse"},
	})
	waitSnapshot(t, s, func(snap Snapshot) bool { return len(snap.PendingToolCalls) == 1 })

	transport.events <- models.NewAgentEvent(models.AgentEventPayload{
		RunID: "r", Seq: 2, Stream: models.StreamTool,
		Data: map[string]any{"phase": "end", "toolCallId": "tc-9"},
	})
	waitSnapshot(t, s, func(snap Snapshot) bool { return len(snap.PendingToolCalls) == 0 })
}

func TestHealthEventUpdatesFlag(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport)

	transport.events <- models.NewHealthEvent(true)
	waitSnapshot(t, s, func(snap Snapshot) bool { return snap.HealthOK })

	transport.events <- models.NewHealthEvent(false)
	waitSnapshot(t, s, func(snap Snapshot) bool { return !snap.HealthOK })
}

func TestMessageIdentityStableAcrossRefreshes(t *testing.T) {
	transport := newFakeTransport()
	transport.setHistory(userMessage("hello", 1000))
	s := newTestSession(t, transport)
	s.Load(context.Background())
	first := waitSnapshot(t, s, func(snap Snapshot) bool { return len(snap.Messages) == 1 })

	transport.setHistory(userMessage("hello", 1000), assistantMessage("hi", 2000))
	runID, err := s.Send(context.Background(), "again")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	transport.events <- models.NewChatEvent(models.ChatEventPayload{
		RunID: runID, SessionKey: "main", State: models.RunStateFinal,
	})
	second := waitSnapshot(t, s, func(snap Snapshot) bool { return len(snap.Messages) == 2 })

	if first.Messages[0].ID != second.Messages[0].ID {
		t.Errorf("identity changed across refreshes: %q vs %q", first.Messages[0].ID, second.Messages[0].ID)
	}
}
