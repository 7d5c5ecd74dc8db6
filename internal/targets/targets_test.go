package targets

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"remote-sync/internal/domain"
	"remote-sync/internal/execx"
	"remote-sync/internal/testharness"
)

func fsTarget(name, path string) domain.TargetConfig {
	return domain.TargetConfig{
		Name:       name,
		Kind:       domain.TargetFilesystem,
		Path:       path,
		Exclude:    domain.DefaultTargetExcludes,
		BranchMode: domain.BranchModeKeep,
	}
}

func rsyncTarget(name string) domain.TargetConfig {
	return domain.TargetConfig{
		Name:       name,
		Kind:       domain.TargetRsync,
		Host:       "build.example.com",
		User:       "deploy",
		Port:       2222,
		SSHKey:     "/keys/id_ed25519",
		Path:       "/srv/app",
		Exclude:    []string{".git"},
		Options:    []string{"--chmod=F644"},
		BranchMode: domain.BranchModeKeep,
	}
}

func lastCall(t *testing.T, fake *testharness.FakeExecutor, name string) execx.Command {
	t.Helper()
	calls := fake.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Name == name {
			return calls[i]
		}
	}
	t.Fatalf("no %s call recorded; calls=%v", name, fake.Rendered())
	return execx.Command{}
}

func TestSyncFilesystemBuildsRsyncCommand(t *testing.T) {
	t.Parallel()
	dest := filepath.Join(t.TempDir(), "mirror")
	fake := testharness.NewFakeExecutor()
	fake.Respond("rsync", testharness.OK("sent 1 bytes\nNumber of regular files transferred: 3\ntotal size is 1,024  speedup is 1.00\n"))

	target := fsTarget("backup", dest)
	target.Delete = true
	res := NewSyncer(fake, nil).Sync(context.Background(), target, Request{Source: "/work/repo/"})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.FilesTransferred != 3 || res.BytesTransferred != 1024 {
		t.Fatalf("stats = %d files %d bytes, want 3/1024", res.FilesTransferred, res.BytesTransferred)
	}
	if res.Message != "Successfully synced to "+dest {
		t.Fatalf("message = %q", res.Message)
	}
	call := lastCall(t, fake, "rsync")
	want := []string{"-av", "--progress", "--delete",
		"--exclude", ".git", "--exclude", "__pycache__", "--exclude", "*.pyc", "--exclude", ".DS_Store",
		"/work/repo/", dest}
	if !slices.Equal(call.Args, want) {
		t.Fatalf("rsync args = %v, want %v", call.Args, want)
	}
	if call.Timeout != FilesystemTimeout {
		t.Fatalf("timeout = %s, want %s", call.Timeout, FilesystemTimeout)
	}
}

func TestSyncFilesystemMissingParent(t *testing.T) {
	t.Parallel()
	dest := filepath.Join(t.TempDir(), "missing", "mirror")
	fake := testharness.NewFakeExecutor()

	res := NewSyncer(fake, nil).Sync(context.Background(), fsTarget("backup", dest), Request{Source: "/work/repo"})
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !strings.HasPrefix(res.Message, "Parent directory does not exist") {
		t.Fatalf("message = %q", res.Message)
	}
	if n := fake.Count("rsync"); n != 0 {
		t.Fatalf("rsync ran %d times, want 0", n)
	}
}

func TestSyncFilesystemFailureOutcomes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		res  execx.Result
		want string
	}{
		{name: "stderr", res: testharness.Fail(23, "rsync error: some files could not be transferred\n"), want: "rsync error: some files could not be transferred"},
		{name: "no stderr", res: testharness.Fail(1, ""), want: "Unknown error"},
		{name: "timeout", res: execx.Result{ExitCode: execx.ExitTimeout, Outcome: execx.OutcomeTimeout}, want: "Sync timed out after 5 minutes"},
		{name: "missing binary", res: execx.Result{ExitCode: execx.ExitNotFound, Outcome: execx.OutcomeNotFound}, want: "rsync command not found. Please install rsync."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := testharness.NewFakeExecutor()
			fake.Respond("rsync", tc.res)
			res := NewSyncer(fake, nil).Sync(context.Background(), fsTarget("backup", t.TempDir()), Request{Source: "/work/repo"})
			if res.Success {
				t.Fatalf("expected failure")
			}
			if res.Message != tc.want {
				t.Fatalf("message = %q, want %q", res.Message, tc.want)
			}
		})
	}
}

func TestSyncFilesystemDryRun(t *testing.T) {
	t.Parallel()
	dest := t.TempDir()
	fake := testharness.NewFakeExecutor()
	target := fsTarget("backup", dest)
	target.BranchMode = domain.BranchModeSpecific
	target.Branch = "release"

	res := NewSyncer(fake, nil).Sync(context.Background(), target, Request{Source: "/work/repo", DryRun: true})
	if !res.Success {
		t.Fatalf("dry run should succeed: %+v", res)
	}
	want := "[DRY RUN] Would sync to " + dest + " on branch 'release'"
	if res.Message != want {
		t.Fatalf("message = %q, want %q", res.Message, want)
	}
	if len(fake.Calls()) != 0 {
		t.Fatalf("dry run ran commands: %v", fake.Rendered())
	}
}

func TestSyncFilesystemSwitchesBranchWithFallbacks(t *testing.T) {
	t.Parallel()
	dest := t.TempDir()
	if err := os.Mkdir(filepath.Join(dest, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	fake := testharness.NewFakeExecutor()
	fake.Respond("git rev-parse --abbrev-ref HEAD", testharness.OK("main\n"))
	fake.Respond("git checkout feature", testharness.Fail(1, "error: pathspec 'feature' did not match any file(s) known to git\n"))
	fake.Respond("git checkout -b feature origin/feature", testharness.OK(""))
	fake.Respond("rsync", testharness.OK(""))

	target := fsTarget("checkout", dest)
	target.BranchMode = domain.BranchModeMatch
	res := NewSyncer(fake, nil).Sync(context.Background(), target, Request{Source: "/work/repo", SourceBranch: "feature"})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.HasSuffix(res.Message, "(branch: feature)") {
		t.Fatalf("message = %q, want branch suffix", res.Message)
	}
	if fake.Count("git fetch --all") != 1 {
		t.Fatalf("expected one fetch --all; calls=%v", fake.Rendered())
	}
	if fake.Count("git checkout feature") != 2 {
		t.Fatalf("expected checkout retried after fetch; calls=%v", fake.Rendered())
	}
	if fake.Count("git checkout -b feature origin/feature") != 1 {
		t.Fatalf("expected tracking branch creation; calls=%v", fake.Rendered())
	}
}

func TestSyncFilesystemBranchSwitchFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	dest := t.TempDir()
	if err := os.Mkdir(filepath.Join(dest, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	fake := testharness.NewFakeExecutor()
	fake.Respond("git rev-parse --abbrev-ref HEAD", testharness.OK("main\n"))
	fake.Respond("git checkout", testharness.Fail(1, "error: Your local changes would be overwritten\n"))
	fake.Respond("rsync", testharness.OK(""))

	target := fsTarget("checkout", dest)
	target.BranchMode = domain.BranchModeSpecific
	target.Branch = "release"
	res := NewSyncer(fake, nil).Sync(context.Background(), target, Request{Source: "/work/repo"})

	if !res.Success {
		t.Fatalf("sync should continue after a failed branch switch: %+v", res)
	}
	if strings.Contains(res.Message, "(branch:") {
		t.Fatalf("message = %q, should not claim a branch switch", res.Message)
	}
	if fake.Count("git fetch --all") != 0 {
		t.Fatalf("fetch fallback only applies to unknown pathspecs; calls=%v", fake.Rendered())
	}
}

func TestSyncFilesystemAlreadyOnBranch(t *testing.T) {
	t.Parallel()
	dest := t.TempDir()
	if err := os.Mkdir(filepath.Join(dest, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	fake := testharness.NewFakeExecutor()
	fake.Respond("git rev-parse --abbrev-ref HEAD", testharness.OK("feature\n"))
	fake.Respond("rsync", testharness.OK(""))

	target := fsTarget("checkout", dest)
	target.BranchMode = domain.BranchModeMatch
	NewSyncer(fake, nil).Sync(context.Background(), target, Request{Source: "/work/repo", SourceBranch: "feature"})
	if fake.Count("git checkout") != 0 {
		t.Fatalf("no checkout expected; calls=%v", fake.Rendered())
	}
}

func TestSyncRsyncBuildsCommand(t *testing.T) {
	t.Parallel()
	fake := testharness.NewFakeExecutor()
	fake.Respond("rsync", testharness.OK("Number of files transferred: 12\ntotal size is 2048 speedup is 3.2\n"))

	res := NewSyncer(fake, nil).Sync(context.Background(), rsyncTarget("remote"), Request{Source: "/work/repo"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Kind != domain.TargetRsync {
		t.Fatalf("kind = %q", res.Kind)
	}
	if res.FilesTransferred != 12 || res.BytesTransferred != 2048 {
		t.Fatalf("stats = %d/%d, want 12/2048", res.FilesTransferred, res.BytesTransferred)
	}
	call := lastCall(t, fake, "rsync")
	want := []string{"-avz", "--progress", "-e", "ssh -p 2222 -i /keys/id_ed25519",
		"--exclude", ".git", "--chmod=F644", "/work/repo/", "deploy@build.example.com:/srv/app"}
	if !slices.Equal(call.Args, want) {
		t.Fatalf("rsync args = %v, want %v", call.Args, want)
	}
	if call.Timeout != RsyncTimeout {
		t.Fatalf("timeout = %s, want %s", call.Timeout, RsyncTimeout)
	}
}

func TestSyncRsyncDefaultPortOmitsSSHOptions(t *testing.T) {
	t.Parallel()
	fake := testharness.NewFakeExecutor()
	target := rsyncTarget("remote")
	target.Port = 22
	target.SSHKey = ""
	target.Options = nil

	NewSyncer(fake, nil).Sync(context.Background(), target, Request{Source: "/work/repo"})
	call := lastCall(t, fake, "rsync")
	if slices.Contains(call.Args, "-e") {
		t.Fatalf("unexpected -e in %v", call.Args)
	}
}

func TestSyncRsyncValidation(t *testing.T) {
	t.Parallel()
	noHost := rsyncTarget("a")
	noHost.Host = ""
	noPath := rsyncTarget("b")
	noPath.Path = ""

	cases := []struct {
		name   string
		target domain.TargetConfig
		source string
		want   string
	}{
		{name: "no host", target: noHost, source: "/r", want: "No host specified for rsync target"},
		{name: "no path", target: noPath, source: "/r", want: "No path specified for rsync target"},
		{name: "no source", target: rsyncTarget("c"), source: "", want: "Could not determine repository root"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := testharness.NewFakeExecutor()
			res := NewSyncer(fake, nil).Sync(context.Background(), tc.target, Request{Source: tc.source})
			if res.Success || res.Message != tc.want {
				t.Fatalf("got %+v, want failure %q", res, tc.want)
			}
			if len(fake.Calls()) != 0 {
				t.Fatalf("no commands expected: %v", fake.Rendered())
			}
		})
	}
}

func TestSyncRsyncRemoteBranchSwitch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		stdout     string
		wantSuffix bool
	}{
		{name: "switched", stdout: "BRANCH_SWITCHED\n", wantSuffix: true},
		{name: "not a repo", stdout: "NOT_A_GIT_REPO\n", wantSuffix: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := testharness.NewFakeExecutor()
			fake.Respond("ssh", testharness.OK(tc.stdout))
			target := rsyncTarget("remote")
			target.BranchMode = domain.BranchModeMatch

			res := NewSyncer(fake, nil).Sync(context.Background(), target, Request{Source: "/work/repo", SourceBranch: "dev"})
			if !res.Success {
				t.Fatalf("expected success: %+v", res)
			}
			if got := strings.HasSuffix(res.Message, "(branch: dev)"); got != tc.wantSuffix {
				t.Fatalf("message = %q, want suffix %v", res.Message, tc.wantSuffix)
			}
			ssh := lastCall(t, fake, "ssh")
			if !slices.Contains(ssh.Args, "deploy@build.example.com") {
				t.Fatalf("ssh args = %v", ssh.Args)
			}
			script := ssh.Args[len(ssh.Args)-1]
			if !strings.Contains(script, `git checkout "dev"`) || !strings.Contains(script, `"origin/dev"`) {
				t.Fatalf("script = %q", script)
			}
		})
	}
}

func TestSyncRsyncDryRun(t *testing.T) {
	t.Parallel()
	fake := testharness.NewFakeExecutor()
	target := rsyncTarget("remote")
	target.BranchMode = domain.BranchModeMatch

	res := NewSyncer(fake, nil).Sync(context.Background(), target, Request{Source: "/work/repo", SourceBranch: "dev", DryRun: true})
	want := "[DRY RUN] Would rsync to deploy@build.example.com:/srv/app on branch 'dev'"
	if !res.Success || res.Message != want {
		t.Fatalf("got %+v, want %q", res, want)
	}
	if len(fake.Calls()) != 0 {
		t.Fatalf("dry run ran commands: %v", fake.Rendered())
	}
}

func TestSyncAllSelectsAndSkipsUnknown(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	fake := testharness.NewFakeExecutor()
	all := map[string]domain.TargetConfig{
		"b": fsTarget("", filepath.Join(dir, "b")),
		"a": fsTarget("", filepath.Join(dir, "a")),
	}
	s := NewSyncer(fake, nil)

	results := s.SyncAll(context.Background(), all, nil, Request{Source: "/work/repo"})
	if len(results) != 2 || results[0].Name != "a" || results[1].Name != "b" {
		t.Fatalf("results = %+v, want a then b", results)
	}

	results = s.SyncAll(context.Background(), all, []string{"b", "ghost"}, Request{Source: "/work/repo"})
	if len(results) != 1 || results[0].Name != "b" {
		t.Fatalf("results = %+v, want only b", results)
	}

	if got := s.SyncAll(context.Background(), nil, nil, Request{Source: "/work/repo"}); got != nil {
		t.Fatalf("no targets should yield nil, got %+v", got)
	}
}

func TestCheckFilesystem(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewSyncer(testharness.NewFakeExecutor(), nil)

	res := s.Check(context.Background(), fsTarget("exists", dir), 0)
	if !res.Reachable() || res.Error != "" {
		t.Fatalf("existing dir: %+v", res)
	}
	res = s.Check(context.Background(), fsTarget("new", filepath.Join(dir, "new")), 0)
	if !res.Reachable() || res.Error == "" {
		t.Fatalf("missing dir with parent should be reachable with a note: %+v", res)
	}
	res = s.Check(context.Background(), fsTarget("gone", filepath.Join(dir, "x", "y")), 0)
	if res.Reachable() || !strings.HasPrefix(res.Error, "Path not accessible") {
		t.Fatalf("missing parent: %+v", res)
	}
}

func TestCheckRsync(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		res       execx.Result
		reachable bool
		wantErr   string
	}{
		{name: "ok", res: testharness.OK("ok\n"), reachable: true},
		{name: "denied", res: testharness.Fail(255, "Permission denied (publickey)."), wantErr: "Permission denied (publickey)."},
		{name: "silent failure", res: testharness.Fail(255, ""), wantErr: "SSH connection failed"},
		{name: "timeout", res: execx.Result{ExitCode: execx.ExitTimeout, Outcome: execx.OutcomeTimeout}, wantErr: "Connection timed out after 10s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := testharness.NewFakeExecutor()
			fake.Respond("ssh", tc.res)
			res := NewSyncer(fake, nil).Check(context.Background(), rsyncTarget("remote"), 0)
			if res.Reachable() != tc.reachable || res.Error != tc.wantErr {
				t.Fatalf("got %+v", res)
			}
			call := lastCall(t, fake, "ssh")
			want := []string{"-o", "BatchMode=yes", "-o", "ConnectTimeout=5", "-p", "2222", "-i", "/keys/id_ed25519", "deploy@build.example.com", "echo", "ok"}
			if !slices.Equal(call.Args, want) {
				t.Fatalf("ssh args = %v, want %v", call.Args, want)
			}
		})
	}
}

func TestTargetBranch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		mode   domain.BranchMode
		branch string
		want   string
	}{
		{mode: domain.BranchModeKeep, branch: "x", want: ""},
		{mode: domain.BranchModeMatch, want: "feature"},
		{mode: domain.BranchModeSpecific, branch: "release", want: "release"},
		{mode: domain.BranchModeSpecific, want: ""},
	}
	for _, tc := range cases {
		got := TargetBranch(domain.TargetConfig{BranchMode: tc.mode, Branch: tc.branch}, "feature")
		if got != tc.want {
			t.Fatalf("TargetBranch(%s, %q) = %q, want %q", tc.mode, tc.branch, got, tc.want)
		}
	}
}

func TestParseStats(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		out   string
		files int
		bytes int64
	}{
		{name: "empty", out: ""},
		{name: "rsync 3", out: "Number of regular files transferred: 7\ntotal size is 12,345  speedup is 1.02\n", files: 7, bytes: 12345},
		{name: "rsync 2", out: "Number of files transferred: 2\n", files: 2},
		{name: "garbage", out: "Number of files transferred: lots\ntotal size is big\n"},
	}
	for _, tc := range cases {
		files, bytes := ParseStats(tc.out)
		if files != tc.files || bytes != tc.bytes {
			t.Fatalf("%s: got %d/%d, want %d/%d", tc.name, files, bytes, tc.files, tc.bytes)
		}
	}
}
