// Package targets mirrors the working tree to non-git destinations: local
// directories and remote hosts reached over rsync+ssh.
package targets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"remote-sync/internal/domain"
	"remote-sync/internal/execx"
	"remote-sync/internal/gitx"
)

const (
	FilesystemTimeout = 5 * time.Minute
	RsyncTimeout      = 10 * time.Minute
	SwitchTimeout     = 30 * time.Second
	FetchAllTimeout   = 60 * time.Second
	SSHSwitchTimeout  = 60 * time.Second
	DefaultSSHTimeout = 10 * time.Second
)

// Request carries the per-run inputs shared by every target.
type Request struct {
	// Source is the repository root; a trailing slash is added so rsync
	// copies its contents rather than the directory itself.
	Source       string
	SourceBranch string
	DryRun       bool
}

type Syncer struct {
	Exec execx.Executor
	Log  *slog.Logger
	Now  func() time.Time
}

func NewSyncer(exec execx.Executor, log *slog.Logger) *Syncer {
	return &Syncer{Exec: exec, Log: log}
}

func (s *Syncer) logger() *slog.Logger {
	if s.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Log
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Syncer) exec() execx.Executor {
	if s.Exec == nil {
		return execx.Local{}
	}
	return s.Exec
}

// TargetBranch is the branch the destination should be on, or "" when the
// destination's branch is left alone.
func TargetBranch(t domain.TargetConfig, sourceBranch string) string {
	switch t.BranchMode {
	case domain.BranchModeMatch:
		return sourceBranch
	case domain.BranchModeSpecific:
		return t.Branch
	default:
		return ""
	}
}

// SyncAll syncs the named targets in order, or every target sorted by name
// when names is empty. Unknown names are logged and skipped.
func (s *Syncer) SyncAll(ctx context.Context, targets map[string]domain.TargetConfig, names []string, req Request) []domain.TargetResult {
	if len(targets) == 0 {
		s.logger().Info("no sync targets configured")
		return nil
	}
	if len(names) == 0 {
		names = SortedNames(targets)
	}
	results := make([]domain.TargetResult, 0, len(names))
	for _, name := range names {
		t, ok := targets[name]
		if !ok {
			s.logger().Warn("sync target not found", "target", name)
			continue
		}
		if t.Name == "" {
			t.Name = name
		}
		results = append(results, s.Sync(ctx, t, req))
	}
	return results
}

func (s *Syncer) Sync(ctx context.Context, t domain.TargetConfig, req Request) domain.TargetResult {
	if t.Kind == domain.TargetRsync {
		return s.syncRsync(ctx, t, req)
	}
	return s.syncFilesystem(ctx, t, req)
}

func (s *Syncer) syncFilesystem(ctx context.Context, t domain.TargetConfig, req Request) domain.TargetResult {
	start := s.now()
	out := domain.TargetResult{Name: t.Name, Kind: domain.TargetFilesystem}
	if req.Source == "" {
		out.Message = "Could not determine repository root"
		return out
	}
	dest, err := resolvePath(t.Path)
	if err != nil {
		out.Message = err.Error()
		return out
	}
	if !exists(filepath.Dir(dest)) {
		out.Message = fmt.Sprintf("Parent directory does not exist: %s", filepath.Dir(dest))
		return out
	}

	branch := TargetBranch(t, req.SourceBranch)
	suffix := ""
	if branch != "" && isGitRepo(dest) {
		git := gitx.New(s.exec(), dest)
		if git.CurrentBranch(ctx) != branch {
			ok, msg := s.switchLocalBranch(ctx, git, dest, branch, req.DryRun)
			if ok {
				s.logger().Info(msg, "target", t.Name)
				suffix = fmt.Sprintf(" (branch: %s)", branch)
			} else {
				s.logger().Warn("branch switch failed", "target", t.Name, "error", msg)
			}
		}
	}

	if req.DryRun {
		out.Success = true
		out.Message = "[DRY RUN] Would sync to " + dest + onBranch(branch)
		return out
	}

	args := []string{"-av", "--progress"}
	if t.Delete {
		args = append(args, "--delete")
	}
	args = append(args, excludeArgs(t.Exclude)...)
	args = append(args, withTrailingSlash(req.Source), dest)

	s.logger().Info("syncing to filesystem", "target", t.Name, "dest", dest)
	res := s.exec().Run(ctx, execx.Command{Name: "rsync", Args: args, Timeout: FilesystemTimeout})
	return s.finish(out, res, start, "Successfully synced to "+dest+suffix, "Sync timed out after 5 minutes")
}

func (s *Syncer) syncRsync(ctx context.Context, t domain.TargetConfig, req Request) domain.TargetResult {
	start := s.now()
	out := domain.TargetResult{Name: t.Name, Kind: domain.TargetRsync}
	switch {
	case req.Source == "":
		out.Message = "Could not determine repository root"
		return out
	case t.Host == "":
		out.Message = "No host specified for rsync target"
		return out
	case t.Path == "":
		out.Message = "No path specified for rsync target"
		return out
	}
	t.SSHKey = expandHome(t.SSHKey)
	dest := t.RsyncDestination()

	branch := TargetBranch(t, req.SourceBranch)
	suffix := ""
	if branch != "" {
		ok, msg := s.switchRemoteBranch(ctx, t, branch, req.DryRun)
		if ok {
			s.logger().Info(msg, "target", t.Name)
			suffix = fmt.Sprintf(" (branch: %s)", branch)
		} else {
			s.logger().Warn("branch switch failed", "target", t.Name, "error", msg)
		}
	}

	if req.DryRun {
		out.Success = true
		out.Message = "[DRY RUN] Would rsync to " + dest + onBranch(branch)
		return out
	}

	args := []string{"-avz", "--progress"}
	if ssh := t.SSHArgs(); len(ssh) > 0 {
		args = append(args, "-e", "ssh "+strings.Join(ssh, " "))
	}
	if t.Delete {
		args = append(args, "--delete")
	}
	args = append(args, excludeArgs(t.Exclude)...)
	args = append(args, t.Options...)
	args = append(args, withTrailingSlash(req.Source), dest)

	s.logger().Info("syncing via rsync", "target", t.Name, "dest", dest)
	res := s.exec().Run(ctx, execx.Command{Name: "rsync", Args: args, Timeout: RsyncTimeout})
	return s.finish(out, res, start, "Successfully synced to "+dest+suffix, "Rsync timed out after 10 minutes")
}

func (s *Syncer) finish(out domain.TargetResult, res execx.Result, start time.Time, okMsg, timeoutMsg string) domain.TargetResult {
	out.Duration = s.now().Sub(start)
	switch res.Outcome {
	case execx.OutcomeOK:
		out.Success = true
		out.Message = okMsg
		out.FilesTransferred, out.BytesTransferred = ParseStats(res.Stdout)
		s.logger().Info("target synced", "target", out.Name, "duration", out.Duration.Round(time.Millisecond))
	case execx.OutcomeTimeout:
		out.Message = timeoutMsg
	case execx.OutcomeNotFound:
		out.Message = "rsync command not found. Please install rsync."
	default:
		out.Message = strings.TrimSpace(res.Stderr)
		if out.Message == "" {
			out.Message = "Unknown error"
		}
		s.logger().Error("target sync failed", "target", out.Name, "error", out.Message)
	}
	return out
}

func (s *Syncer) switchLocalBranch(ctx context.Context, git gitx.Runner, dest, branch string, dryRun bool) (bool, string) {
	if dryRun {
		return true, fmt.Sprintf("[DRY RUN] Would switch to branch '%s' at %s", branch, dest)
	}
	res := git.Run(ctx, SwitchTimeout, "checkout", branch)
	if res.OK() {
		return true, fmt.Sprintf("Switched to branch '%s'", branch)
	}
	if strings.Contains(res.Stderr, "did not match any file") || strings.Contains(res.Stderr, "pathspec") {
		git.Run(ctx, FetchAllTimeout, "fetch", "--all")
		res = git.Run(ctx, SwitchTimeout, "checkout", branch)
		if res.OK() {
			return true, fmt.Sprintf("Fetched and switched to branch '%s'", branch)
		}
		res = git.Run(ctx, SwitchTimeout, "checkout", "-b", branch, "origin/"+branch)
		if res.OK() {
			return true, fmt.Sprintf("Created tracking branch '%s'", branch)
		}
	}
	return false, fmt.Sprintf("Failed to switch to branch '%s': %s", branch, strings.TrimSpace(res.Stderr))
}

const (
	markerSwitched = "BRANCH_SWITCHED"
	markerNotRepo  = "NOT_A_GIT_REPO"
)

// remoteSwitchScript runs on the target host; it prints a marker so the
// outcome can be told apart from ssh's own failures.
func remoteSwitchScript(path, branch string) string {
	p, b := strconv.Quote(path), strconv.Quote(branch)
	return fmt.Sprintf(`cd %s && if [ -d .git ] || [ -f .git ]; then `+
		`git checkout %s 2>/dev/null || `+
		`(git fetch --all && git checkout %s) 2>/dev/null || `+
		`git checkout -b %s %s 2>/dev/null; echo %s; else echo %s; fi`,
		p, b, b, b, strconv.Quote("origin/"+branch), markerSwitched, markerNotRepo)
}

func (s *Syncer) switchRemoteBranch(ctx context.Context, t domain.TargetConfig, branch string, dryRun bool) (bool, string) {
	if dryRun {
		return true, fmt.Sprintf("[DRY RUN] Would switch to branch '%s' at %s", branch, t.RsyncDestination())
	}
	args := append(t.SSHArgs(), t.SSHHost(), remoteSwitchScript(t.Path, branch))
	res := s.exec().Run(ctx, execx.Command{Name: "ssh", Args: args, Timeout: SSHSwitchTimeout})
	switch {
	case res.Outcome == execx.OutcomeTimeout:
		return false, "SSH command timed out"
	case strings.Contains(res.Stdout, markerSwitched):
		return true, fmt.Sprintf("Switched remote to branch '%s'", branch)
	case strings.Contains(res.Stdout, markerNotRepo):
		return false, fmt.Sprintf("Remote path is not a git repository: %s", t.Path)
	default:
		return false, "Failed to switch branch: " + strings.TrimSpace(res.Stderr)
	}
}

// Check reports whether a target can currently receive a sync.
func (s *Syncer) Check(ctx context.Context, t domain.TargetConfig, timeout time.Duration) domain.HealthCheckResult {
	if t.Kind == domain.TargetRsync {
		return s.checkRsync(ctx, t, timeout)
	}
	return s.checkFilesystem(t)
}

func (s *Syncer) checkFilesystem(t domain.TargetConfig) domain.HealthCheckResult {
	start := s.now()
	dest, err := resolvePath(t.Path)
	out := domain.HealthCheckResult{Remote: t.Name, URL: dest}
	switch {
	case err != nil:
		out.Status = domain.RemoteUnreachable
		out.Error = err.Error()
	case exists(dest):
		out.Status = domain.RemoteReachable
	case exists(filepath.Dir(dest)):
		out.Status = domain.RemoteReachable
		out.Error = "Target doesn't exist but parent directory is accessible"
	default:
		out.Status = domain.RemoteUnreachable
		out.Error = "Path not accessible: " + dest
		return out
	}
	out.LatencyMS = float64(s.now().Sub(start).Microseconds()) / 1000
	return out
}

func (s *Syncer) checkRsync(ctx context.Context, t domain.TargetConfig, timeout time.Duration) domain.HealthCheckResult {
	if timeout <= 0 {
		timeout = DefaultSSHTimeout
	}
	t.SSHKey = expandHome(t.SSHKey)
	args := []string{"-o", "BatchMode=yes", "-o", "ConnectTimeout=5"}
	args = append(args, t.SSHArgs()...)
	args = append(args, t.SSHHost(), "echo", "ok")

	start := s.now()
	res := s.exec().Run(ctx, execx.Command{Name: "ssh", Args: args, Timeout: timeout})
	out := domain.HealthCheckResult{Remote: t.Name, URL: t.RsyncDestination()}
	switch res.Outcome {
	case execx.OutcomeOK:
		out.Status = domain.RemoteReachable
		out.LatencyMS = float64(s.now().Sub(start).Microseconds()) / 1000
	case execx.OutcomeTimeout:
		out.Status = domain.RemoteUnreachable
		out.Error = fmt.Sprintf("Connection timed out after %s", timeout)
	default:
		out.Status = domain.RemoteUnreachable
		out.LatencyMS = float64(s.now().Sub(start).Microseconds()) / 1000
		out.Error = strings.TrimSpace(res.Stderr)
		if out.Error == "" {
			out.Error = "SSH connection failed"
		}
	}
	return out
}

// ParseStats pulls the transferred file count and total size out of rsync's
// --stats style summary. Missing or malformed lines yield zero.
func ParseStats(output string) (files int, bytes int64) {
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "files transferred") {
			if _, rest, ok := strings.Cut(line, ":"); ok {
				if n, err := strconv.Atoi(firstField(rest)); err == nil {
					files = n
				}
			}
		}
		if strings.Contains(lower, "total size is") {
			if _, rest, ok := strings.Cut(lower, "total size is"); ok {
				if n, err := strconv.ParseInt(firstField(rest), 10, 64); err == nil {
					bytes = n
				}
			}
		}
	}
	return files, bytes
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ReplaceAll(fields[0], ",", "")
}

func SortedNames(targets map[string]domain.TargetConfig) []string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func excludeArgs(patterns []string) []string {
	args := make([]string, 0, 2*len(patterns))
	for _, p := range patterns {
		args = append(args, "--exclude", p)
	}
	return args
}

func withTrailingSlash(path string) string {
	return strings.TrimRight(path, "/") + "/"
}

func onBranch(branch string) string {
	if branch == "" {
		return ""
	}
	return fmt.Sprintf(" on branch '%s'", branch)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no path specified for filesystem target")
	}
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isGitRepo(path string) bool {
	return exists(filepath.Join(path, ".git"))
}
