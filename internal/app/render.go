package app

import (
	"encoding/json"
	"fmt"
	"time"

	"remote-sync/internal/domain"
)

func (a *App) writeJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = a.Stdout.Write(b)
	return err
}

func (a *App) header(title string, dryRun bool) {
	if dryRun {
		title = "[DRY RUN] " + title
	}
	fmt.Fprintln(a.Stdout, a.style(headerStyle, title))
	fmt.Fprintln(a.Stdout)
}

func (a *App) renderPushResults(result domain.SyncResult) {
	a.header("Push Results", result.DryRun)
	w := a.Stdout
	for _, r := range result.PushResults {
		fmt.Fprintf(w, "  %s %s\n", a.badge(string(r.Status), pushStatusTone(r.Status)), a.style(nameStyle, r.Remote+"/"+r.Branch))
		if r.Message != "" {
			fmt.Fprintf(w, "    %s\n", r.Message)
		}
		if r.Duration > 0 {
			fmt.Fprintf(w, "    %s\n", a.style(dimStyle, "Duration: "+r.Duration.Round(10*time.Millisecond).String()))
		}
		if r.Retries > 0 {
			fmt.Fprintf(w, "    %s\n", a.style(dimStyle, fmt.Sprintf("Retries: %d", r.Retries)))
		}
		if r.VPNUsed != "" {
			fmt.Fprintf(w, "    VPN: %s\n", r.VPNUsed)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Summary: %d succeeded, %d failed", result.SuccessCount(), result.FailedCount())
	if n := result.BlockedCount(); n > 0 {
		fmt.Fprintf(w, ", %d blocked", n)
	}
	fmt.Fprintln(w)
	if len(result.Queued) > 0 {
		fmt.Fprintf(w, "  %d push(es) added to offline queue\n", len(result.Queued))
	}
}

func stateText(st domain.SyncStatusResult) string {
	switch st.State {
	case domain.SyncInSync:
		return "in sync"
	case domain.SyncAhead:
		return fmt.Sprintf("ahead by %d commit(s)", st.Ahead)
	case domain.SyncBehind:
		return fmt.Sprintf("behind by %d commit(s)", st.Behind)
	case domain.SyncDiverged:
		return fmt.Sprintf("diverged (+%d/-%d)", st.Ahead, st.Behind)
	case domain.SyncNoRemote:
		return "no remote branch"
	default:
		return "unknown"
	}
}

func (a *App) renderStatus(branch string, statuses []domain.SyncStatusResult, cfg domain.SyncConfig) {
	a.header("Sync Status", false)
	w := a.Stdout
	fmt.Fprintf(w, "  Branch: %s\n\n", branch)
	for _, st := range statuses {
		priority := 0
		if remote, ok := cfg.Remotes[st.Remote]; ok {
			priority = remote.Priority
		}
		fmt.Fprintf(w, "  %s %s %s\n", a.badge(string(st.State), syncStateTone(st.State)),
			a.style(nameStyle, st.Remote), a.style(dimStyle, fmt.Sprintf("(priority: %d)", priority)))
		fmt.Fprintf(w, "    State: %s\n", stateText(st))
		if st.LocalCommit != "" {
			fmt.Fprintf(w, "    Local:  %s\n", st.LocalCommit)
		}
		if st.RemoteCommit != "" {
			fmt.Fprintf(w, "    Remote: %s\n", st.RemoteCommit)
		}
	}
}

func (a *App) renderHealthGroup(results []domain.HealthCheckResult) {
	w := a.Stdout
	for _, r := range results {
		tone, text := badgeToneDanger, "unreachable"
		if r.Reachable() {
			tone, text = badgeToneSuccess, fmt.Sprintf("reachable %.0fms", r.LatencyMS)
		}
		fmt.Fprintf(w, "  %s %s\n", a.badge(text, tone), a.style(nameStyle, r.Remote))
		if r.URL != "" {
			fmt.Fprintf(w, "    URL: %s\n", a.style(dimStyle, r.URL))
		}
		if r.Error != "" {
			fmt.Fprintf(w, "    Error: %s\n", r.Error)
		}
	}
}

func (a *App) renderHealth(report healthReport) {
	a.header("Remote Health", false)
	a.renderHealthGroup(report.Remotes)
	if len(report.Targets) > 0 {
		fmt.Fprintln(a.Stdout)
		a.header("Sync Target Health", false)
		a.renderHealthGroup(report.Targets)
	}
}

const maxQueueErrorLen = 60

func (a *App) renderQueue(q domain.OfflineQueue) {
	a.header("Offline Queue", false)
	w := a.Stdout
	if q.Len() == 0 {
		fmt.Fprintf(w, "  %s\n", a.style(dimStyle, "Queue is empty"))
		return
	}
	fmt.Fprintf(w, "  %d item(s) in queue\n\n", q.Len())
	for _, item := range q.Items {
		fmt.Fprintf(w, "  %s\n", a.style(nameStyle, item.Remote+"/"+item.Branch))
		fmt.Fprintf(w, "    Commit: %s\n", domain.CommitPrefix(item.CommitSHA))
		if !item.QueuedAt.IsZero() {
			fmt.Fprintf(w, "    Queued: %s\n", item.QueuedAt.UTC().Format(time.RFC3339))
		}
		if item.Retries > 0 {
			fmt.Fprintf(w, "    Retries: %d\n", item.Retries)
		}
		if item.LastError != "" {
			msg := item.LastError
			if len(msg) > maxQueueErrorLen {
				msg = msg[:maxQueueErrorLen] + "..."
			}
			fmt.Fprintf(w, "    Error: %s\n", msg)
		}
	}
}

func (a *App) renderTargetResults(results []domain.TargetResult, dryRun bool) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(a.Stdout)
	a.header("Sync Target Results", dryRun)
	w := a.Stdout
	ok := 0
	for _, r := range results {
		tone, label := badgeToneDanger, "failed"
		if r.Success {
			ok++
			tone, label = badgeToneSuccess, "synced"
		}
		fmt.Fprintf(w, "  %s %s %s\n", a.badge(label, tone), a.style(nameStyle, r.Name), a.style(dimStyle, "("+string(r.Kind)+")"))
		fmt.Fprintf(w, "    %s\n", r.Message)
		if r.Duration > 0 {
			fmt.Fprintf(w, "    %s\n", a.style(dimStyle, "Duration: "+r.Duration.Round(10*time.Millisecond).String()))
		}
		if r.FilesTransferred > 0 {
			fmt.Fprintf(w, "    Files: %d\n", r.FilesTransferred)
		}
		if r.BytesTransferred > 0 {
			fmt.Fprintf(w, "    Size: %.2f MB\n", float64(r.BytesTransferred)/(1024*1024))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Summary: %d succeeded, %d failed\n", ok, len(results)-ok)
}
