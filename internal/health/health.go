// Package health probes remote reachability and classifies how far a local
// branch has drifted from each remote.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"remote-sync/internal/domain"
	"remote-sync/internal/gitx"
)

const DefaultTimeout = 5 * time.Second

type Checker struct {
	Git gitx.Runner
	Now func() time.Time
}

func (c Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// CheckRemote lists the remote's heads; the remote is reachable iff that
// succeeds within timeout.
func (c Checker) CheckRemote(ctx context.Context, remote string, timeout time.Duration) domain.HealthCheckResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	url := c.Git.RemoteURL(ctx, remote)
	start := c.now()
	res := c.Git.LsRemoteHeads(ctx, remote, timeout)
	latency := float64(c.now().Sub(start).Microseconds()) / 1000

	out := domain.HealthCheckResult{Remote: remote, URL: url, LatencyMS: latency}
	if res.OK() {
		out.Status = domain.RemoteReachable
		return out
	}
	out.Status = domain.RemoteUnreachable
	out.Error = res.Message()
	return out
}

// Reachable satisfies the push engine's pre-flight probe.
func (c Checker) Reachable(ctx context.Context, remote string, timeout time.Duration) bool {
	return c.CheckRemote(ctx, remote, timeout).Reachable()
}

type Options struct {
	Parallel   bool
	MaxWorkers int
	Timeout    time.Duration
}

// CheckAll probes every remote. With Parallel set and more than one remote
// the probes run concurrently, bounded by MaxWorkers. Results keep the input
// order.
func (c Checker) CheckAll(ctx context.Context, remotes []string, opts Options) []domain.HealthCheckResult {
	results := make([]domain.HealthCheckResult, len(remotes))
	if !opts.Parallel || len(remotes) <= 1 {
		for i, remote := range remotes {
			results[i] = c.CheckRemote(ctx, remote, opts.Timeout)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(workerLimit(opts.MaxWorkers))
	for i, remote := range remotes {
		g.Go(func() error {
			results[i] = c.CheckRemote(ctx, remote, opts.Timeout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c Checker) SyncStatus(ctx context.Context, remote, branch string) domain.SyncStatusResult {
	local := c.Git.BranchSHA(ctx, branch)
	remoteSHA, _ := c.Git.RemoteCommit(ctx, remote, branch)
	state, ahead, behind := c.Git.SyncState(ctx, remote, branch)
	return domain.SyncStatusResult{
		Remote:       remote,
		Branch:       branch,
		State:        state,
		LocalCommit:  domain.CommitPrefix(local),
		RemoteCommit: domain.CommitPrefix(remoteSHA),
		Ahead:        ahead,
		Behind:       behind,
	}
}

type StatusOptions struct {
	AutoFetch    bool
	FetchTimeout time.Duration
	MaxWorkers   int
}

// AllSyncStatuses optionally refreshes remote-tracking refs, then classifies
// branch against every remote. Fetch failures are ignored; they only leave
// the tracking refs stale.
func (c Checker) AllSyncStatuses(ctx context.Context, remotes []string, branch string, opts StatusOptions) []domain.SyncStatusResult {
	if opts.AutoFetch {
		c.FetchAll(ctx, remotes, opts.FetchTimeout, opts.MaxWorkers)
	}
	results := make([]domain.SyncStatusResult, 0, len(remotes))
	for _, remote := range remotes {
		results = append(results, c.SyncStatus(ctx, remote, branch))
	}
	return results
}

// FetchAll fetches remotes concurrently and reports which fetches failed.
func (c Checker) FetchAll(ctx context.Context, remotes []string, timeout time.Duration, maxWorkers int) map[string]string {
	failures := make([]string, len(remotes))
	var g errgroup.Group
	g.SetLimit(workerLimit(maxWorkers))
	for i, remote := range remotes {
		g.Go(func() error {
			if res := c.Git.Fetch(ctx, remote, timeout); !res.OK() {
				failures[i] = res.Message()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string)
	for i, msg := range failures {
		if msg != "" {
			out[remotes[i]] = msg
		}
	}
	return out
}

func workerLimit(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
