// Package execx runs external commands and reports their outcome as a value.
// Callers never see an error from Run: a timeout, a missing binary, and a
// non-zero exit are all encoded in Result.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	ExitTimeout  = 124
	ExitNotFound = 127
)

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeFailed
	OutcomeTimeout
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Command describes one invocation. When Shell is set it is run through
// "sh -c" and Name/Args are ignored.
type Command struct {
	Name    string
	Args    []string
	Shell   string
	Dir     string
	Env     []string
	Timeout time.Duration
}

func (c Command) String() string {
	if c.Shell != "" {
		return c.Shell
	}
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Outcome  Outcome
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Message is the most useful single-line description of a failure: stderr
// if present, then stdout, then the exit code.
func (r Result) Message() string {
	if msg := strings.TrimSpace(r.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(r.Stdout); msg != "" {
		return msg
	}
	if r.OK() {
		return ""
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

type Executor interface {
	Run(ctx context.Context, cmd Command) Result
}

// Local runs commands on this machine.
type Local struct {
	// Env is appended to the parent environment for every command.
	Env []string
}

func (l Local) Run(ctx context.Context, c Command) Result {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if c.Shell != "" {
		cmd = exec.CommandContext(runCtx, "sh", "-c", c.Shell)
	} else {
		cmd = exec.CommandContext(runCtx, c.Name, c.Args...)
	}
	cmd.Dir = c.Dir
	if len(l.Env) > 0 || len(c.Env) > 0 {
		cmd.Env = append(append(os.Environ(), l.Env...), c.Env...)
	}
	// Shell commands may leave children holding the pipes open after a kill.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		res.Outcome = OutcomeOK
	case c.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return TimeoutResult(c.Timeout, res)
	case errors.Is(err, exec.ErrNotFound):
		res.ExitCode = ExitNotFound
		res.Outcome = OutcomeNotFound
		res.Stderr = fmt.Sprintf("command not found: %s", c.Name)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = 1
			if strings.TrimSpace(res.Stderr) == "" {
				res.Stderr = err.Error()
			}
		}
		res.Outcome = OutcomeFailed
		if res.ExitCode == ExitNotFound {
			res.Outcome = OutcomeNotFound
		}
	}
	return res
}

// TimeoutResult builds the synthetic result reported for a command that
// exceeded its timeout.
func TimeoutResult(timeout time.Duration, partial Result) Result {
	partial.ExitCode = ExitTimeout
	partial.Outcome = OutcomeTimeout
	partial.Stderr = fmt.Sprintf("command timed out after %s", timeout)
	return partial
}
