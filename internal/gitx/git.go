package gitx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"remote-sync/internal/domain"
	"remote-sync/internal/execx"
)

// DefaultTimeout bounds local queries such as rev-parse.
const DefaultTimeout = 30 * time.Second

var ErrNotFound = errors.New("ref not found")

// Runner issues git commands inside Dir through an executor.
type Runner struct {
	Exec    execx.Executor
	Dir     string
	Timeout time.Duration
}

func New(exec execx.Executor, dir string) Runner {
	return Runner{Exec: exec, Dir: dir, Timeout: DefaultTimeout}
}

func (r Runner) exec() execx.Executor {
	if r.Exec == nil {
		return execx.Local{}
	}
	return r.Exec
}

// Run executes git with args and an explicit timeout. A zero timeout uses
// the runner default.
func (r Runner) Run(ctx context.Context, timeout time.Duration, args ...string) execx.Result {
	if timeout <= 0 {
		timeout = r.Timeout
	}
	return r.exec().Run(ctx, execx.Command{
		Name:    "git",
		Args:    args,
		Dir:     r.Dir,
		Timeout: timeout,
	})
}

// RunGit is a convenience for local queries: trimmed stdout or an error
// carrying the command and stderr.
func (r Runner) RunGit(ctx context.Context, args ...string) (string, error) {
	res := r.Run(ctx, 0, args...)
	if !res.OK() {
		return strings.TrimSpace(res.Stdout), fmt.Errorf("git %s: exit %d: %s", strings.Join(args, " "), res.ExitCode, res.Message())
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CurrentBranch returns the checked-out branch, or "" for a detached HEAD
// or when the directory is not a repository.
func (r Runner) CurrentBranch(ctx context.Context) string {
	out, err := r.RunGit(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || out == "HEAD" {
		return ""
	}
	return out
}

func (r Runner) HeadSHA(ctx context.Context) string {
	out, _ := r.RunGit(ctx, "rev-parse", "HEAD")
	return out
}

// BranchSHA returns the tip of the local branch, or HEAD when branch does
// not resolve.
func (r Runner) BranchSHA(ctx context.Context, branch string) string {
	if branch != "" {
		if sha, err := r.RevParse(ctx, branch); err == nil {
			return sha
		}
	}
	return r.HeadSHA(ctx)
}

// RevParse resolves rev to a commit SHA.
func (r Runner) RevParse(ctx context.Context, rev string) (string, error) {
	out, err := r.RunGit(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil || out == "" {
		return "", fmt.Errorf("%s: %w", rev, ErrNotFound)
	}
	return out, nil
}

// RemoteCommit resolves the remote-tracking ref remote/branch.
func (r Runner) RemoteCommit(ctx context.Context, remote, branch string) (string, error) {
	return r.RevParse(ctx, remote+"/"+branch)
}

func (r Runner) RepoRoot(ctx context.Context) (string, error) {
	return r.RunGit(ctx, "rev-parse", "--show-toplevel")
}

func (r Runner) RemoteNames(ctx context.Context) ([]string, error) {
	out, err := r.RunGit(ctx, "remote")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (r Runner) RemoteURL(ctx context.Context, remote string) string {
	out, err := r.RunGit(ctx, "remote", "get-url", remote)
	if err != nil {
		return ""
	}
	return out
}

// LocalBranches lists refs/heads sorted by name.
func (r Runner) LocalBranches(ctx context.Context) ([]string, error) {
	out, err := r.RunGit(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}
	names := splitLines(out)
	sort.Strings(names)
	return names, nil
}

func (r Runner) Fetch(ctx context.Context, remote string, timeout time.Duration) execx.Result {
	return r.Run(ctx, timeout, "fetch", remote)
}

func (r Runner) Push(ctx context.Context, remote, branch string, force bool, timeout time.Duration) execx.Result {
	args := []string{"push"}
	if force {
		args = append(args, "--force-with-lease")
	}
	args = append(args, remote, branch)
	return r.Run(ctx, timeout, args...)
}

// LsRemoteHeads is the lightweight reachability probe.
func (r Runner) LsRemoteHeads(ctx context.Context, remote string, timeout time.Duration) execx.Result {
	return r.Run(ctx, timeout, "ls-remote", "--heads", remote)
}

func (r Runner) MergeBase(ctx context.Context, a, b string) (string, error) {
	return r.RunGit(ctx, "merge-base", a, b)
}

// IsForcePushRequired reports whether pushing branch to remote would rewrite
// remote history. Unresolvable refs are treated as "no force needed" so a
// brand-new remote branch is pushed normally.
func (r Runner) IsForcePushRequired(ctx context.Context, remote, branch string) bool {
	local, err := r.RevParse(ctx, branch)
	if err != nil {
		return false
	}
	remoteSHA, err := r.RemoteCommit(ctx, remote, branch)
	if err != nil {
		return false
	}
	if local == remoteSHA {
		return false
	}
	base, err := r.MergeBase(ctx, local, remoteSHA)
	if err != nil {
		return true
	}
	return base != remoteSHA
}

// AheadBehind counts commits on branch not on remote/branch (ahead) and the
// reverse (behind).
func (r Runner) AheadBehind(ctx context.Context, remote, branch string) (ahead, behind int, err error) {
	res := r.Run(ctx, 0, "rev-list", "--left-right", "--count", branch+"..."+remote+"/"+branch)
	if !res.OK() {
		return 0, 0, fmt.Errorf("%s/%s: %w", remote, branch, ErrNotFound)
	}
	return parseLeftRight(res.Stdout)
}

func parseLeftRight(out string) (left, right int, err error) {
	parts := strings.Fields(out)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	left, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	right, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("unexpected rev-list output %q", out)
	}
	return left, right, nil
}

// SyncState classifies branch against remote/branch. A missing remote ref
// yields no_remote and unparseable output yields unknown.
func (r Runner) SyncState(ctx context.Context, remote, branch string) (domain.SyncState, int, int) {
	ahead, behind, err := r.AheadBehind(ctx, remote, branch)
	if errors.Is(err, ErrNotFound) {
		return domain.SyncNoRemote, 0, 0
	}
	if err != nil {
		return domain.SyncUnknown, 0, 0
	}
	return domain.ClassifySyncState(ahead, behind), ahead, behind
}

func (r Runner) InitRepo(ctx context.Context) error {
	_, err := r.RunGit(ctx, "init", "-b", "main")
	return err
}

func (r Runner) AddAll(ctx context.Context) error {
	_, err := r.RunGit(ctx, "add", "-A")
	return err
}

func (r Runner) Commit(ctx context.Context, message string) error {
	_, err := r.RunGit(ctx, "commit", "-m", message)
	return err
}

func splitLines(out string) []string {
	lines := strings.Split(out, "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}
