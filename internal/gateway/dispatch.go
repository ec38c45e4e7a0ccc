package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thesecretlab-dev/anima-dashboard/internal/observability"
	"github.com/thesecretlab-dev/anima-dashboard/internal/security"
	"github.com/thesecretlab-dev/anima-dashboard/internal/sessions"
	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

var (
	// ErrCommandBlocked rejects a message matching the exec blocklist.
	ErrCommandBlocked = errors.New("command blocked by security policy")

	// ErrUnknownRun is returned by Abort for a run not in flight.
	ErrUnknownRun = errors.New("unknown run")
)

// Dispatcher turns accepted chat.send requests into agent runs and
// publishes their lifecycle onto the hub. One dispatcher serves all
// sessions; runs execute concurrently.
type Dispatcher struct {
	scope    string
	store    sessions.Store
	security *security.State
	runner   Runner
	hub      *Hub
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewDispatcher wires the run pipeline. A nil runner falls back to the
// built-in echo runner.
func NewDispatcher(scope string, store sessions.Store, sec *security.State, runner Runner, hub *Hub, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	if runner == nil {
		runner = EchoRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		scope:    scope,
		store:    store,
		security: sec,
		runner:   runner,
		hub:      hub,
		metrics:  metrics,
		logger:   logger.With("component", "dispatch"),
		active:   make(map[string]context.CancelFunc),
	}
}

// Dispatch validates a send request, records the user message, and
// starts the run asynchronously. The returned run id echoes the
// caller's idempotency key so the surface can correlate events.
func (d *Dispatcher) Dispatch(ctx context.Context, params models.ChatSendParams, clientIP string) (*models.SendResponse, error) {
	if strings.TrimSpace(params.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	if params.SessionKey == "" {
		return nil, fmt.Errorf("sessionKey is required")
	}

	// Shell escapes run through the exec blocklist before anything is
	// recorded or scheduled.
	if command, ok := shellEscape(params.Message); ok {
		if !d.security.CheckExecCommand(command, clientIP) {
			return nil, ErrCommandBlocked
		}
	}

	session, err := d.store.GetOrCreate(ctx, params.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if err := d.store.AppendMessage(ctx, params.SessionKey, models.Message{
		Role:      models.RoleUser,
		Content:   []models.ContentBlock{models.TextBlock(params.Message)},
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return nil, fmt.Errorf("record message: %w", err)
	}

	runID := params.IdempotencyKey
	if runID == "" {
		runID = uuid.NewString()
	}
	req := RunRequest{
		RunID:         runID,
		SessionKey:    session.DisplayKey,
		CanonicalKey:  session.CanonicalKey,
		SessionID:     session.SessionID,
		Message:       params.Message,
		ThinkingLevel: params.ThinkingLevel,
	}

	go d.run(req)
	return &models.SendResponse{RunID: runID, Status: "accepted"}, nil
}

// Abort cancels an in-flight run. Cancellation is advisory: the
// authoritative outcome is the terminal chat event the run publishes.
func (d *Dispatcher) Abort(sessionKey, runID string) error {
	d.mu.Lock()
	cancel, ok := d.active[runID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	d.logger.Info("aborting run", "run_id", runID, "session", sessionKey)
	cancel()
	return nil
}

func (d *Dispatcher) run(req RunRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.active[req.RunID] = cancel
	d.mu.Unlock()
	defer func() {
		cancel()
		d.mu.Lock()
		delete(d.active, req.RunID)
		d.mu.Unlock()
	}()

	start := time.Now()
	if d.metrics != nil {
		d.metrics.RunsStarted.Inc()
		d.metrics.RunsActive.Inc()
		defer func() {
			d.metrics.RunsActive.Dec()
			d.metrics.RunDuration.Observe(time.Since(start).Seconds())
		}()
	}

	message, err := d.runner.Run(ctx, req, d.hub.Publish)
	switch {
	case ctx.Err() != nil:
		d.logger.Info("run aborted", "run_id", req.RunID, "session", req.SessionKey)
		d.publishTerminal(req, models.RunStateAborted, nil, "")

	case err != nil:
		d.logger.Error("run failed", "run_id", req.RunID, "session", req.SessionKey, "error", err)
		d.publishTerminal(req, models.RunStateError, nil, err.Error())

	default:
		if message != nil {
			if appendErr := d.store.AppendMessage(context.Background(), req.SessionKey, *message); appendErr != nil {
				d.logger.Error("failed to record assistant message", "run_id", req.RunID, "error", appendErr)
			}
		}
		d.publishTerminal(req, models.RunStateFinal, message, "")
	}
}

func (d *Dispatcher) publishTerminal(req RunRequest, state models.RunState, message *models.Message, errorMessage string) {
	d.hub.Publish(models.NewChatEvent(models.ChatEventPayload{
		RunID:        req.RunID,
		SessionKey:   req.CanonicalKey,
		State:        state,
		Message:      message,
		ErrorMessage: errorMessage,
	}))
}

// shellEscape extracts the shell command from a message using the
// "/exec " escape prefix surfaces use for direct tool invocation.
func shellEscape(message string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(message), "/exec ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), rest != ""
}
