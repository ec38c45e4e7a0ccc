package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner materializes compiled create specs with the container engine
// CLI. The builder stays pure; all process I/O lives here.
type Runner struct {
	engine string // container engine binary, default "docker"
	logger *slog.Logger
}

// NewRunner creates a runner for the given engine binary. If engine is
// empty, "docker" is used. If logger is nil, slog.Default() is used.
func NewRunner(engine string, logger *slog.Logger) *Runner {
	if engine == "" {
		engine = "docker"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: engine, logger: logger}
}

// RunResult is the outcome of a sandboxed command.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Timeout  bool
}

// Create compiles the spec and creates the container, returning its id.
// An isolation violation fails before any container exists.
func (r *Runner) Create(ctx context.Context, spec CreateSpec) (string, error) {
	args, err := BuildCreateArgs(spec)
	if err != nil {
		return "", err
	}

	var stdout, stderr strings.Builder
	cmd := exec.CommandContext(ctx, r.engine, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s create: %w: %s", r.engine, err, strings.TrimSpace(stderr.String()))
	}

	containerID := strings.TrimSpace(stdout.String())
	if containerID == "" {
		return "", errors.New(r.engine + " create returned empty container id")
	}

	r.logger.Debug("sandbox container created",
		"container_id", containerID,
		"name", spec.Name,
		"scope_key", spec.ScopeKey,
	)
	return containerID, nil
}

// Start attaches to and starts a created container, returning its output.
func (r *Runner) Start(ctx context.Context, containerID string, stdin string) (*RunResult, error) {
	args := []string{"start", "-a"}
	if stdin != "" {
		args = append(args, "-i")
	}
	args = append(args, containerID)

	cmd := exec.CommandContext(ctx, r.engine, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case ctx.Err() == context.DeadlineExceeded:
			result.Timeout = true
		default:
			return nil, err
		}
	}
	return result, nil
}

// Remove force-removes a container. Uses its own short deadline so
// cleanup survives an already-cancelled run context.
func (r *Runner) Remove(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, r.engine, "rm", "-f", containerID).Run(); err != nil {
		return fmt.Errorf("%s rm %s: %w", r.engine, containerID, err)
	}
	return nil
}
