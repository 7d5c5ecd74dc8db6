package e2e

import (
	"path/filepath"
	"testing"
)

func TestPushDiscoveredRemotes(t *testing.T) {
	t.Parallel()
	h, origin, mirror := setupTwoRemotes(t)
	sha := headSHA(t, h)

	out, code := h.RunSync("push")
	if code != 0 {
		t.Fatalf("push exit = %d\n%s", code, out)
	}
	mustContain(t, out, "[success] origin/main")
	mustContain(t, out, "[success] mirror/main")
	mustContain(t, out, "Summary: 2 succeeded, 0 failed")

	for name, bare := range map[string]string{"origin": origin, "mirror": mirror} {
		if got := h.RemoteHead(bare, "main"); got != sha {
			t.Fatalf("%s main = %q, want %q", name, got, sha)
		}
	}
}

func TestPushRespectsBranchPatterns(t *testing.T) {
	t.Parallel()
	h, origin, mirror := setupTwoRemotes(t)
	h.WriteConfig(`{
		"remotes": {
			"origin": {"priority": 1},
			"mirror": {"priority": 2, "branches": ["release/*"]}
		},
		"auto_fetch": false
	}`)
	h.MustRunGit(h.WorkDir, "checkout", "-b", "feature/login")
	sha := h.CommitFile("login.txt", "login\n", "add login")

	out, code := h.RunSync("push")
	if code != 0 {
		t.Fatalf("push exit = %d\n%s", code, out)
	}
	if got := h.RemoteHead(origin, "feature/login"); got != sha {
		t.Fatalf("origin feature/login = %q, want %q", got, sha)
	}
	if got := h.RemoteHead(mirror, "feature/login"); got != "" {
		t.Fatalf("mirror only takes release branches, got %q", got)
	}
	mustNotContain(t, out, "mirror/feature/login")
}

func TestPushAllPushesEveryLocalBranch(t *testing.T) {
	t.Parallel()
	h, origin, _ := setupTwoRemotes(t)
	h.MustRunGit(h.WorkDir, "checkout", "-b", "topic")
	topic := h.CommitFile("topic.txt", "topic\n", "topic work")
	h.MustRunGit(h.WorkDir, "checkout", "main")

	out, code := h.RunSync("push-all", "--remote", "origin")
	if code != 0 {
		t.Fatalf("push-all exit = %d\n%s", code, out)
	}
	if got := h.RemoteHead(origin, "topic"); got != topic {
		t.Fatalf("origin topic = %q, want %q", got, topic)
	}
	if h.RemoteHead(origin, "main") == "" {
		t.Fatal("origin main should have been pushed")
	}
	mustContain(t, out, "Summary: 2 succeeded, 0 failed")
}

func TestPushBlocksRewrittenHistory(t *testing.T) {
	t.Parallel()
	h, origin, _ := setupTwoRemotes(t)
	h.WriteConfig(`{"remotes": {"origin": {"retry": 0}}, "auto_fetch": false}`)
	if out, code := h.RunSync("push"); code != 0 {
		t.Fatalf("initial push exit = %d\n%s", code, out)
	}
	pushed := h.RemoteHead(origin, "main")

	h.MustWriteFile(filepath.Join(h.WorkDir, "README.md"), "# rewritten\n")
	h.MustRunGit(h.WorkDir, "commit", "-a", "--amend", "-m", "rewritten")

	out, code := h.RunSync("push")
	if code != 1 {
		t.Fatalf("push exit = %d, want 1\n%s", code, out)
	}
	mustContain(t, out, "[blocked] origin/main")
	if got := h.RemoteHead(origin, "main"); got != pushed {
		t.Fatalf("origin main moved to %q despite block policy", got)
	}

	out, code = h.RunSync("push", "--force")
	if code != 0 {
		t.Fatalf("forced push exit = %d\n%s", code, out)
	}
	if got, want := h.RemoteHead(origin, "main"), headSHA(t, h); got != want {
		t.Fatalf("origin main = %q, want %q", got, want)
	}
}

func TestPushDryRunLeavesRemotesUntouched(t *testing.T) {
	t.Parallel()
	h, origin, _ := setupTwoRemotes(t)

	out, code := h.RunSync("--dry-run", "push")
	if code != 0 {
		t.Fatalf("dry-run exit = %d\n%s", code, out)
	}
	mustContain(t, out, "[DRY RUN] Push Results")
	mustContain(t, out, "Would push main to origin")
	if got := h.RemoteHead(origin, "main"); got != "" {
		t.Fatalf("dry run pushed %q", got)
	}
}

func TestPushUnknownRemote(t *testing.T) {
	t.Parallel()
	h, _, _ := setupTwoRemotes(t)

	out, code := h.RunSync("push", "--remote", "nowhere")
	if code != 1 {
		t.Fatalf("exit = %d, want 1\n%s", code, out)
	}
	mustContain(t, out, "remote not found in configuration")
}
