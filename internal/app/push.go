package app

import (
	"context"

	"remote-sync/internal/domain"
)

// RunPush pushes the current (or requested) branch to its remotes.
func (a *App) RunPush(ctx context.Context, opts PushOptions) (int, error) {
	return a.withLock("push", func() (int, error) {
		loaded, err := a.loadConfig(ctx)
		if err != nil {
			return 1, err
		}
		result, err := a.SyncToRemotes(ctx, loaded.Config, SyncRequest{
			Branch:  opts.Branch,
			Remotes: opts.Remotes,
			Force:   opts.Force,
		})
		if err != nil {
			return configExitCode(err), err
		}
		a.renderPushResults(result)
		if !result.AllSucceeded() {
			return 1, nil
		}
		return 0, nil
	})
}

// RunPushAll pushes every local branch, one orchestrated sync per branch.
// An explicit --branch limits the run to that branch.
func (a *App) RunPushAll(ctx context.Context, opts PushOptions) (int, error) {
	return a.withLock("push-all", func() (int, error) {
		loaded, err := a.loadConfig(ctx)
		if err != nil {
			return 1, err
		}
		result, err := a.pushAllBranches(ctx, loaded.Config, opts)
		if err != nil {
			return configExitCode(err), err
		}
		a.renderPushResults(result)
		if !result.AllSucceeded() {
			return 1, nil
		}
		return 0, nil
	})
}

func (a *App) pushAllBranches(ctx context.Context, cfg domain.SyncConfig, opts PushOptions) (domain.SyncResult, error) {
	branches := []string{opts.Branch}
	if opts.Branch == "" {
		var err error
		branches, err = a.git().LocalBranches(ctx)
		if err != nil || len(branches) == 0 {
			return domain.SyncResult{}, ErrNoBranch
		}
	}
	a.logf("push-all: %d branch(es)", len(branches))

	s := a.newSession(cfg)
	all := domain.SyncResult{RunID: s.runID, DryRun: cfg.DryRun}
	for _, branch := range branches {
		if ctx.Err() != nil {
			break
		}
		res, err := s.syncBranch(ctx, a, SyncRequest{Branch: branch, Remotes: opts.Remotes, Force: opts.Force})
		if err != nil {
			return all, err
		}
		all.Merge(res)
	}
	domain.SortPushResults(all.PushResults, priorities(cfg))
	return all, nil
}

// RunSyncAll pushes to remotes and then mirrors the tree to sync targets.
func (a *App) RunSyncAll(ctx context.Context, opts PushOptions, targetNames []string) (int, error) {
	return a.withLock("sync-all", func() (int, error) {
		loaded, err := a.loadConfig(ctx)
		if err != nil {
			return 1, err
		}
		cfg := loaded.Config
		result, err := a.SyncToRemotes(ctx, cfg, SyncRequest{
			Branch:  opts.Branch,
			Remotes: opts.Remotes,
			Force:   opts.Force,
		})
		if err != nil {
			return configExitCode(err), err
		}
		a.renderPushResults(result)

		targets := a.syncTargets(ctx, cfg, targetNames, result.Branch)
		a.renderTargetResults(targets, cfg.DryRun)

		code := 0
		if !result.AllSucceeded() || anyTargetFailed(targets) {
			code = 1
		}
		return code, nil
	})
}
