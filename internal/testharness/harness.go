package testharness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

var (
	buildOnce sync.Once
	buildPath string
	buildErr  error
)

// GitEnv isolates git from the host's configuration.
var GitEnv = []string{
	"GIT_CONFIG_GLOBAL=/dev/null",
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_AUTHOR_NAME=remote-sync-test",
	"GIT_AUTHOR_EMAIL=remote-sync-test@example.com",
	"GIT_COMMITTER_NAME=remote-sync-test",
	"GIT_COMMITTER_EMAIL=remote-sync-test@example.com",
	"GIT_TERMINAL_PROMPT=0",
}

// Harness drives the built remote-sync binary against a work repository
// with bare repositories acting as remotes.
type Harness struct {
	t           *testing.T
	Root        string
	RemotesRoot string
	WorkDir     string
	BinaryPath  string
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()

	root := t.TempDir()
	remotes := filepath.Join(root, "remotes")
	work := filepath.Join(root, "work")
	mustMkdirAll(t, remotes)
	mustMkdirAll(t, work)

	h := &Harness{t: t, Root: root, RemotesRoot: remotes, WorkDir: work, BinaryPath: buildBinary(t)}
	h.MustRunGit(work, "init", "-b", "main")
	h.CommitFile("README.md", "# work\n", "initial commit")
	return h
}

func buildBinary(t *testing.T) string {
	t.Helper()

	buildOnce.Do(func() {
		path := filepath.Join(os.TempDir(), fmt.Sprintf("remote-sync-test-%d", time.Now().UnixNano()))
		if runtime.GOOS == "windows" {
			path += ".exe"
		}
		cmd := exec.Command("go", "build", "-o", path, "./cmd/remote-sync")
		cmd.Dir = repoRootFromWD(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("build remote-sync: %w: %s", err, string(out))
			return
		}
		buildPath = path
	})

	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return buildPath
}

func repoRootFromWD(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			t.Fatalf("could not find go.mod from %q", wd)
		}
		wd = parent
	}
}

// AddBareRemote creates a bare repository and registers it as a remote of
// the work repository. It returns the bare repository path.
func (h *Harness) AddBareRemote(name string) string {
	h.t.Helper()
	path := filepath.Join(h.RemotesRoot, name+".git")
	h.MustRunGit(h.RemotesRoot, "init", "--bare", "-b", "main", path)
	h.MustRunGit(h.WorkDir, "remote", "add", name, path)
	return path
}

// AddUnreachableRemote registers a remote whose URL points nowhere.
func (h *Harness) AddUnreachableRemote(name string) {
	h.t.Helper()
	h.MustRunGit(h.WorkDir, "remote", "add", name, filepath.Join(h.RemotesRoot, "missing", name+".git"))
}

func (h *Harness) CommitFile(name, contents, message string) string {
	h.t.Helper()
	h.MustWriteFile(filepath.Join(h.WorkDir, name), contents)
	h.MustRunGit(h.WorkDir, "add", "-A")
	h.MustRunGit(h.WorkDir, "commit", "-m", message)
	return strings.TrimSpace(h.MustRunGit(h.WorkDir, "rev-parse", "HEAD"))
}

func (h *Harness) WriteConfig(contents string) string {
	h.t.Helper()
	path := filepath.Join(h.WorkDir, ".remotesyncrc.json")
	h.MustWriteFile(path, contents)
	return path
}

// RunSync runs the binary in the work repository and returns combined
// output and the exit code.
func (h *Harness) RunSync(args ...string) (string, int) {
	h.t.Helper()
	return h.RunSyncEnv(nil, args...)
}

func (h *Harness) RunSyncEnv(env []string, args ...string) (string, int) {
	h.t.Helper()
	stdout, stderr, code := h.run(env, args...)
	return stdout + stderr, code
}

// RunSyncStreams keeps stdout and stderr apart, for commands whose stdout
// is machine readable.
func (h *Harness) RunSyncStreams(args ...string) (string, string, int) {
	h.t.Helper()
	return h.run(nil, args...)
}

func (h *Harness) run(env []string, args ...string) (string, string, int) {
	h.t.Helper()

	cmd := exec.Command(h.BinaryPath, args...)
	cmd.Dir = h.WorkDir
	cmd.Env = append(append(os.Environ(), GitEnv...), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode()
	}
	h.t.Fatalf("run remote-sync %v: %v\n%s%s", args, err, stdout.String(), stderr.String())
	return "", "", -1
}

func (h *Harness) RunGit(dir string, args ...string) (string, error) {
	h.t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), GitEnv...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (h *Harness) MustRunGit(dir string, args ...string) string {
	h.t.Helper()
	out, err := h.RunGit(dir, args...)
	if err != nil {
		h.t.Fatalf("git %v in %s failed: %v\n%s", args, dir, err, out)
	}
	return out
}

// RemoteHead returns the SHA of branch in a bare repository, or "" if the
// branch does not exist there.
func (h *Harness) RemoteHead(barePath, branch string) string {
	h.t.Helper()
	out, err := h.RunGit(barePath, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func (h *Harness) MustWriteFile(path, contents string) {
	h.t.Helper()
	mustMkdirAll(h.t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		h.t.Fatalf("write file %s: %v", path, err)
	}
}

func (h *Harness) MustReadFile(path string) string {
	h.t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		h.t.Fatalf("read file %s: %v", path, err)
	}
	return string(b)
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
