package gitx

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"remote-sync/internal/domain"
	"remote-sync/internal/execx"
)

var testGitEnv = []string{
	"GIT_CONFIG_GLOBAL=/dev/null",
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_AUTHOR_NAME=remote-sync",
	"GIT_AUTHOR_EMAIL=remote-sync@example.com",
	"GIT_COMMITTER_NAME=remote-sync",
	"GIT_COMMITTER_EMAIL=remote-sync@example.com",
}

type gitFixture struct {
	root       string
	repo       Runner
	remotePath string
}

func newGitFixture(t *testing.T) gitFixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	exec := execx.Local{Env: testGitEnv}

	remotePath := filepath.Join(root, "remote.git")
	if _, err := New(exec, root).RunGit(ctx, "init", "--bare", "-b", "main", remotePath); err != nil {
		t.Fatalf("init bare remote: %v", err)
	}

	repoPath := filepath.Join(root, "repo")
	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		t.Fatalf("mkdir repo: %v", err)
	}
	repo := New(exec, repoPath)
	if err := repo.InitRepo(ctx); err != nil {
		t.Fatalf("init repo: %v", err)
	}
	if _, err := repo.RunGit(ctx, "remote", "add", "origin", remotePath); err != nil {
		t.Fatalf("add origin: %v", err)
	}
	commitFile(t, repo, "a.txt", "one\n")
	if _, err := repo.RunGit(ctx, "push", "origin", "main"); err != nil {
		t.Fatalf("initial push: %v", err)
	}
	return gitFixture{root: root, repo: repo, remotePath: remotePath}
}

func commitFile(t *testing.T, r Runner, name, content string) {
	t.Helper()
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(r.Dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := r.AddAll(ctx); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Commit(ctx, "update "+name); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestIsForcePushRequired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGitFixture(t)

	if fx.repo.IsForcePushRequired(ctx, "origin", "main") {
		t.Fatal("identical commits should not require force")
	}

	commitFile(t, fx.repo, "a.txt", "two\n")
	if fx.repo.IsForcePushRequired(ctx, "origin", "main") {
		t.Fatal("fast-forward should not require force")
	}

	if res := fx.repo.Push(ctx, "origin", "main", false, 0); !res.OK() {
		t.Fatalf("push: %+v", res)
	}
	if _, err := fx.repo.RunGit(ctx, "reset", "--hard", "HEAD~1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	commitFile(t, fx.repo, "b.txt", "divergent\n")
	if !fx.repo.IsForcePushRequired(ctx, "origin", "main") {
		t.Fatal("divergent history should require force")
	}

	if fx.repo.IsForcePushRequired(ctx, "origin", "no-such-branch") {
		t.Fatal("unresolvable refs should not require force")
	}
}

func TestSyncState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGitFixture(t)

	if state, a, b := fx.repo.SyncState(ctx, "origin", "main"); state != domain.SyncInSync || a != 0 || b != 0 {
		t.Fatalf("SyncState() = %s %d/%d, want in_sync", state, a, b)
	}

	commitFile(t, fx.repo, "a.txt", "two\n")
	commitFile(t, fx.repo, "a.txt", "three\n")
	if state, a, b := fx.repo.SyncState(ctx, "origin", "main"); state != domain.SyncAhead || a != 2 || b != 0 {
		t.Fatalf("SyncState() = %s %d/%d, want ahead 2/0", state, a, b)
	}

	if _, err := fx.repo.RunGit(ctx, "push", "origin", "main"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := fx.repo.RunGit(ctx, "reset", "--hard", "HEAD~1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if state, a, b := fx.repo.SyncState(ctx, "origin", "main"); state != domain.SyncBehind || a != 0 || b != 1 {
		t.Fatalf("SyncState() = %s %d/%d, want behind 0/1", state, a, b)
	}

	commitFile(t, fx.repo, "c.txt", "side\n")
	if state, a, b := fx.repo.SyncState(ctx, "origin", "main"); state != domain.SyncDiverged || a != 1 || b != 1 {
		t.Fatalf("SyncState() = %s %d/%d, want diverged 1/1", state, a, b)
	}

	if state, _, _ := fx.repo.SyncState(ctx, "origin", "missing"); state != domain.SyncNoRemote {
		t.Fatalf("SyncState(missing) = %s, want no_remote", state)
	}
}

func TestBranchAndRemoteQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fx := newGitFixture(t)

	if got := fx.repo.CurrentBranch(ctx); got != "main" {
		t.Fatalf("CurrentBranch() = %q, want main", got)
	}
	if _, err := fx.repo.RunGit(ctx, "branch", "feature/x"); err != nil {
		t.Fatalf("branch: %v", err)
	}
	branches, err := fx.repo.LocalBranches(ctx)
	if err != nil {
		t.Fatalf("LocalBranches() error = %v", err)
	}
	if !reflect.DeepEqual(branches, []string{"feature/x", "main"}) {
		t.Fatalf("LocalBranches() = %v", branches)
	}
	names, err := fx.repo.RemoteNames(ctx)
	if err != nil || !reflect.DeepEqual(names, []string{"origin"}) {
		t.Fatalf("RemoteNames() = %v, %v", names, err)
	}
	if got := fx.repo.RemoteURL(ctx, "origin"); got != fx.remotePath {
		t.Fatalf("RemoteURL() = %q, want %q", got, fx.remotePath)
	}
	if res := fx.repo.LsRemoteHeads(ctx, "origin", 0); !res.OK() {
		t.Fatalf("LsRemoteHeads() = %+v", res)
	}

	sha := fx.repo.HeadSHA(ctx)
	if _, err := fx.repo.RunGit(ctx, "checkout", "--detach", sha); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if got := fx.repo.CurrentBranch(ctx); got != "" {
		t.Fatalf("CurrentBranch() on detached HEAD = %q, want empty", got)
	}
}

type recordingExec struct {
	cmds []execx.Command
}

func (e *recordingExec) Run(_ context.Context, c execx.Command) execx.Result {
	e.cmds = append(e.cmds, c)
	return execx.Result{}
}

func TestPushArguments(t *testing.T) {
	t.Parallel()

	rec := &recordingExec{}
	r := New(rec, "/work")
	r.Push(context.Background(), "mirror", "main", true, 0)
	r.Push(context.Background(), "mirror", "main", false, 0)

	if len(rec.cmds) != 2 {
		t.Fatalf("recorded %d commands, want 2", len(rec.cmds))
	}
	if want := []string{"push", "--force-with-lease", "mirror", "main"}; !reflect.DeepEqual(rec.cmds[0].Args, want) {
		t.Fatalf("force push args = %v, want %v", rec.cmds[0].Args, want)
	}
	if want := []string{"push", "mirror", "main"}; !reflect.DeepEqual(rec.cmds[1].Args, want) {
		t.Fatalf("push args = %v, want %v", rec.cmds[1].Args, want)
	}
	if rec.cmds[0].Dir != "/work" || rec.cmds[0].Timeout != DefaultTimeout {
		t.Fatalf("unexpected dir/timeout: %+v", rec.cmds[0])
	}
}

func TestParseLeftRight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		out       string
		l, r      int
		expectErr bool
	}{
		{name: "tab separated", out: "3\t1\n", l: 3, r: 1},
		{name: "spaces", out: "0 0", l: 0, r: 0},
		{name: "one field", out: "3", expectErr: true},
		{name: "not numbers", out: "a b", expectErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, r, err := parseLeftRight(tt.out)
			if (err != nil) != tt.expectErr {
				t.Fatalf("parseLeftRight(%q) error = %v", tt.out, err)
			}
			if l != tt.l || r != tt.r {
				t.Fatalf("parseLeftRight(%q) = %d,%d want %d,%d", tt.out, l, r, tt.l, tt.r)
			}
		})
	}
}
