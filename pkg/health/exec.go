package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Execer runs a command inside a running container and returns its
// combined stdout/stderr. Implementations report a non-zero exit code as
// a non-nil error.
type Execer interface {
	Exec(ctx context.Context, containerID string, cmd []string) ([]byte, error)
}

// ExecChecker performs exec-based health checks by running a command
type ExecChecker struct {
	// Command is the command to execute (e.g., ["pg_isready", "-U", "postgres"])
	Command []string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration

	// ContainerID is the ID of the container to exec into.
	// If empty, the command runs on the host (useful for testing).
	ContainerID string

	// Execer performs the in-container exec when ContainerID is set. It
	// is required in that case and unused for host-side checks.
	Execer Execer
}

// NewExecChecker creates a new exec health checker
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check performs the exec health check
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return Result{
			Healthy:   false,
			Message:   "no command specified",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	if e.ContainerID != "" {
		return e.checkContainer(execCtx, start)
	}
	return e.checkHost(execCtx, start)
}

func (e *ExecChecker) checkContainer(ctx context.Context, start time.Time) Result {
	if e.Execer == nil {
		return Result{
			Healthy:   false,
			Message:   "no execer configured for container exec",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	output, err := e.Execer.Exec(ctx, e.ContainerID, e.Command)
	message := fmt.Sprintf("Command: %v", e.Command)
	if err != nil {
		message = fmt.Sprintf("%s, Error: %v", message, err)
		if len(output) > 0 {
			message = fmt.Sprintf("%s, Output: %s", message, truncate(string(output)))
		}
		return Result{Healthy: false, Message: message, CheckedAt: start, Duration: time.Since(start)}
	}

	if len(output) > 0 {
		message = fmt.Sprintf("%s, Output: %s", message, truncate(string(output)))
	}
	return Result{Healthy: true, Message: message, CheckedAt: start, Duration: time.Since(start)}
}

func (e *ExecChecker) checkHost(ctx context.Context, start time.Time) Result {
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	message := fmt.Sprintf("Command: %v", e.Command)
	if err != nil {
		message = fmt.Sprintf("%s, Error: %v", message, err)
		if stderr.Len() > 0 {
			message = fmt.Sprintf("%s, Stderr: %s", message, stderr.String())
		}
		return Result{Healthy: false, Message: message, CheckedAt: start, Duration: time.Since(start)}
	}

	if stdout.Len() > 0 {
		message = fmt.Sprintf("%s, Output: %s", message, truncate(stdout.String()))
	}
	return Result{Healthy: true, Message: message, CheckedAt: start, Duration: time.Since(start)}
}

func truncate(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

// Type returns the health check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

// WithContainer sets the container ID and execer used for in-container exec
func (e *ExecChecker) WithContainer(containerID string, execer Execer) *ExecChecker {
	e.ContainerID = containerID
	e.Execer = execer
	return e
}
