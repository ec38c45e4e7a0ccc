package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thesecretlab-dev/anima-dashboard/internal/observability"
	"github.com/thesecretlab-dev/anima-dashboard/internal/sandbox"
	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

// RunRequest describes one agent run to execute.
type RunRequest struct {
	RunID         string
	SessionKey    string
	CanonicalKey  string
	SessionID     string
	Message       string
	ThinkingLevel string
}

// Emitter publishes streaming deltas onto the event feed.
type Emitter func(models.TransportEvent)

// Runner executes one run and returns the final assistant message.
// Implementations emit cumulative assistant deltas and tool phases as
// agent events while running. The agent runtime itself is a
// collaborator; the gateway only contracts this interface.
type Runner interface {
	Run(ctx context.Context, req RunRequest, emit Emitter) (*models.Message, error)
}

// EchoRunner is the built-in development runner: it streams the inbound
// text back and finishes with an echo message.
type EchoRunner struct{}

func (EchoRunner) Run(ctx context.Context, req RunRequest, emit Emitter) (*models.Message, error) {
	reply := "echo: " + req.Message
	// Stream cumulative prefixes, the way a model streams tokens.
	for i := 1; i <= len(reply); i += 16 {
		end := i + 15
		if end > len(reply) {
			end = len(reply)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		emit(models.NewAgentEvent(models.AgentEventPayload{
			RunID:  req.RunID,
			Stream: models.StreamAssistant,
			Ts:     time.Now().UnixMilli(),
			Data:   map[string]any{"text": reply[:end]},
		}))
	}
	return &models.Message{
		Role:      models.RoleAssistant,
		Content:   []models.ContentBlock{models.TextBlock(reply)},
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// SandboxShellRunner executes the inbound text as a shell command in a
// hardened container and returns its output. It emits a tool start/end
// pair around the execution.
type SandboxShellRunner struct {
	Config sandbox.Config
	Runner *sandbox.Runner

	// Metrics, when set, counts build outcomes under sandbox_builds.
	Metrics *observability.Metrics
}

// countBuild classifies a container creation outcome. Policy rejections
// are distinguished from engine failures.
func (r *SandboxShellRunner) countBuild(err error) {
	if r.Metrics == nil {
		return
	}
	status := "ok"
	var isoErr *sandbox.IsolationError
	switch {
	case err == nil:
	case errors.As(err, &isoErr):
		status = "rejected"
	default:
		status = "error"
	}
	r.Metrics.SandboxBuilds.WithLabelValues(status).Inc()
}

func (r *SandboxShellRunner) Run(ctx context.Context, req RunRequest, emit Emitter) (*models.Message, error) {
	createdAt := time.Now()
	spec := sandbox.CreateSpec{
		Name:        r.Config.ContainerName(req.CanonicalKey, createdAt),
		Config:      r.Config,
		ScopeKey:    req.CanonicalKey,
		CreatedAtMs: createdAt.UnixMilli(),
	}

	toolCallID := "exec-" + req.RunID
	emit(models.NewAgentEvent(models.AgentEventPayload{
		RunID:  req.RunID,
		Stream: models.StreamTool,
		Ts:     createdAt.UnixMilli(),
		Data:   map[string]any{"phase": "start", "toolCallId": toolCallID, "name": "exec", "args": req.Message},
	}))

	containerID, err := r.Runner.Create(ctx, spec)
	r.countBuild(err)
	if err != nil {
		emit(toolErrorEvent(req.RunID, toolCallID, err))
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	defer func() {
		if removeErr := r.Runner.Remove(containerID); removeErr != nil {
			// Best effort; the container is labeled for later cleanup.
			_ = removeErr
		}
	}()

	result, err := r.Runner.Start(ctx, containerID, req.Message)
	if err != nil {
		emit(toolErrorEvent(req.RunID, toolCallID, err))
		return nil, fmt.Errorf("run sandbox: %w", err)
	}

	emit(models.NewAgentEvent(models.AgentEventPayload{
		RunID:  req.RunID,
		Stream: models.StreamTool,
		Ts:     time.Now().UnixMilli(),
		Data:   map[string]any{"phase": "end", "toolCallId": toolCallID},
	}))

	var out strings.Builder
	if result.Timeout {
		out.WriteString("(command timed out)\n")
	}
	out.WriteString(result.Stdout)
	if result.Stderr != "" {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(result.Stderr)
	}
	if result.ExitCode != 0 {
		fmt.Fprintf(&out, "\n(exit code %d)", result.ExitCode)
	}

	return &models.Message{
		Role:      models.RoleAssistant,
		Content:   []models.ContentBlock{models.TextBlock(strings.TrimSpace(out.String()))},
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

func toolErrorEvent(runID, toolCallID string, err error) models.TransportEvent {
	return models.NewAgentEvent(models.AgentEventPayload{
		RunID:  runID,
		Stream: models.StreamTool,
		Ts:     time.Now().UnixMilli(),
		Data:   map[string]any{"phase": "error", "toolCallId": toolCallID, "error": err.Error()},
	})
}
