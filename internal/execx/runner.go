package execx

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/timmy/appforge/internal/logger"
)

// Command describes one external process invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string      // appended to the inherited environment
	Timeout time.Duration // zero means no deadline beyond ctx
}

// Result captures the outcome of a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout and stderr joined, for tools that write
// meaningful output to either stream.
func (r Result) Combined() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes external commands. It is an interface so pipeline
// components can be tested against a fake without shelling out.
type Runner interface {
	// Run executes cmd and returns its captured output. A non-zero exit
	// is not an error by itself; callers inspect Result.ExitCode. The
	// returned error is non-nil only when the process could not be
	// started or was killed by a timeout or context cancellation.
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ErrTimeout is returned when a command is killed by its deadline.
var ErrTimeout = errors.New("command timed out")

// ShellRunner runs commands on the local host via os/exec.
type ShellRunner struct{}

// NewShellRunner creates a Runner backed by os/exec.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run executes the command with captured stdout/stderr.
func (r *ShellRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	start := time.Now()

	c := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug(ctx, "Command finished: %s %s", cmd.Name, strings.Join(cmd.Args, " "))

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if runCtx.Err() == context.DeadlineExceeded {
			res.ExitCode = -1
			return res, ErrTimeout
		}
		res.ExitCode = -1
		return res, err
	}

	return res, nil
}
