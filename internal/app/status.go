package app

import (
	"context"

	"remote-sync/internal/domain"
	"remote-sync/internal/health"
	"remote-sync/internal/targets"
)

func remoteNames(remotes []domain.RemoteConfig) []string {
	names := make([]string, len(remotes))
	for i, r := range remotes {
		names[i] = r.Name
	}
	return names
}

// RunStatus shows how far the branch is from every remote. A diverged
// remote is exit 1.
func (a *App) RunStatus(ctx context.Context, opts StatusOptions) (int, error) {
	loaded, err := a.loadConfig(ctx)
	if err != nil {
		return 1, err
	}
	cfg := loaded.Config
	remotes, err := selectRemotes(cfg, nil)
	if err != nil {
		return 1, err
	}
	branch := opts.Branch
	if branch == "" {
		branch = a.git().CurrentBranch(ctx)
		if branch == "" {
			return 1, ErrNoBranch
		}
	}

	checker := health.Checker{Git: a.git(), Now: a.Now}
	statuses := checker.AllSyncStatuses(ctx, remoteNames(remotes), branch, health.StatusOptions{
		AutoFetch:  cfg.AutoFetch,
		MaxWorkers: cfg.MaxWorkers,
	})

	if opts.JSON {
		if err := a.writeJSON(statuses); err != nil {
			return 2, err
		}
	} else {
		a.renderStatus(branch, statuses, cfg)
	}

	diverged := 0
	for _, st := range statuses {
		if st.State == domain.SyncDiverged {
			diverged++
		}
	}
	if diverged > 0 {
		a.logger().Warn("remotes have diverged", "count", diverged)
		return 1, nil
	}
	return 0, nil
}

type healthReport struct {
	Remotes []domain.HealthCheckResult `json:"remotes"`
	Targets []domain.HealthCheckResult `json:"targets,omitempty"`
}

// RunHealth probes every remote and sync target. Anything unreachable is
// exit 1.
func (a *App) RunHealth(ctx context.Context, jsonOut bool) (int, error) {
	loaded, err := a.loadConfig(ctx)
	if err != nil {
		return 1, err
	}
	cfg := loaded.Config
	remotes, err := selectRemotes(cfg, nil)
	if err != nil {
		return 1, err
	}

	checker := health.Checker{Git: a.git(), Now: a.Now}
	report := healthReport{
		Remotes: checker.CheckAll(ctx, remoteNames(remotes), health.Options{
			Parallel:   cfg.Parallel,
			MaxWorkers: cfg.MaxWorkers,
			Timeout:    cfg.HealthCheckTimeout,
		}),
	}
	if len(cfg.Targets) > 0 {
		syncer := a.syncer()
		for _, name := range targets.SortedNames(cfg.Targets) {
			report.Targets = append(report.Targets, syncer.Check(ctx, cfg.Targets[name], 0))
		}
	}

	if jsonOut {
		if err := a.writeJSON(report); err != nil {
			return 2, err
		}
	} else {
		a.renderHealth(report)
	}

	for _, group := range [][]domain.HealthCheckResult{report.Remotes, report.Targets} {
		for _, r := range group {
			if !r.Reachable() {
				return 1, nil
			}
		}
	}
	return 0, nil
}
