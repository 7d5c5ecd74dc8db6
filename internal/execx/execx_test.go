package execx

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalRunCapturesOutput(t *testing.T) {
	t.Parallel()

	res := Local{}.Run(context.Background(), Command{Shell: "echo out; echo err >&2"})
	if !res.OK() {
		t.Fatalf("expected OK, got %+v", res)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

func TestLocalRunNonZeroExit(t *testing.T) {
	t.Parallel()

	res := Local{}.Run(context.Background(), Command{Shell: "echo nope >&2; exit 3"})
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if res.Message() != "nope" {
		t.Fatalf("message = %q, want nope", res.Message())
	}
}

func TestLocalRunTimeout(t *testing.T) {
	t.Parallel()

	res := Local{}.Run(context.Background(), Command{Name: "sleep", Args: []string{"5"}, Timeout: 100 * time.Millisecond})
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("outcome = %v, want timeout (%+v)", res.Outcome, res)
	}
	if res.ExitCode != ExitTimeout {
		t.Fatalf("exit code = %d, want %d", res.ExitCode, ExitTimeout)
	}
	if !strings.Contains(res.Stderr, "timed out after 100ms") {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

func TestLocalRunNotFound(t *testing.T) {
	t.Parallel()

	res := Local{}.Run(context.Background(), Command{Name: "remote-sync-definitely-missing-binary"})
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("outcome = %v, want not_found", res.Outcome)
	}
	if res.ExitCode != ExitNotFound {
		t.Fatalf("exit code = %d, want %d", res.ExitCode, ExitNotFound)
	}
}

func TestLocalRunShellMissingCommand(t *testing.T) {
	t.Parallel()

	res := Local{}.Run(context.Background(), Command{Shell: "remote-sync-definitely-missing-binary"})
	if res.ExitCode != ExitNotFound || res.Outcome != OutcomeNotFound {
		t.Fatalf("got exit %d outcome %v, want 127 not_found", res.ExitCode, res.Outcome)
	}
}

func TestLocalRunDirAndEnv(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := Local{Env: []string{"RS_A=1"}}.Run(context.Background(), Command{
		Shell: `printf "%s %s" "$RS_A$RS_B" "$(pwd)"`,
		Dir:   dir,
		Env:   []string{"RS_B=2"},
	})
	if !res.OK() {
		t.Fatalf("run failed: %+v", res)
	}
	if !strings.HasPrefix(res.Stdout, "12 ") {
		t.Fatalf("env not applied: %q", res.Stdout)
	}
	if !strings.HasSuffix(res.Stdout, dir) && !strings.Contains(res.Stdout, "/") {
		t.Fatalf("dir not applied: %q", res.Stdout)
	}
}

func TestMessageFallsBackToExitCode(t *testing.T) {
	t.Parallel()

	if got := (Result{ExitCode: 9, Outcome: OutcomeFailed}).Message(); got != "exit code 9" {
		t.Fatalf("Message() = %q", got)
	}
	if got := (Result{Outcome: OutcomeOK}).Message(); got != "" {
		t.Fatalf("Message() = %q, want empty", got)
	}
}
