package e2e

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"remote-sync/internal/domain"
	"remote-sync/internal/state"
	"remote-sync/internal/testharness"
)

// setupTwoRemotes returns a work repository with origin and mirror bare
// remotes and no config file, so remotes are discovered from git.
func setupTwoRemotes(t *testing.T) (*testharness.Harness, string, string) {
	t.Helper()
	h := testharness.NewHarness(t)
	origin := h.AddBareRemote("origin")
	mirror := h.AddBareRemote("mirror")
	return h, origin, mirror
}

func headSHA(t *testing.T, h *testharness.Harness) string {
	t.Helper()
	return strings.TrimSpace(h.MustRunGit(h.WorkDir, "rev-parse", "HEAD"))
}

func loadQueueFile(t *testing.T, h *testharness.Harness) domain.OfflineQueue {
	t.Helper()
	var q domain.OfflineQueue
	raw := h.MustReadFile(filepath.Join(h.WorkDir, state.QueueFileName))
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		t.Fatalf("decode queue file: %v\n%s", err, raw)
	}
	return q
}

func mustContain(t *testing.T, got string, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}

func mustNotContain(t *testing.T, got string, unwanted string) {
	t.Helper()
	if strings.Contains(got, unwanted) {
		t.Fatalf("expected output not to contain %q, got:\n%s", unwanted, got)
	}
}
