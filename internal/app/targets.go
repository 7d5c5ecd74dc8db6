package app

import (
	"context"
	"fmt"

	"remote-sync/internal/domain"
	"remote-sync/internal/targets"
)

func (a *App) syncer() *targets.Syncer {
	s := targets.NewSyncer(a.exec(), a.logger())
	s.Now = a.Now
	return s
}

func (a *App) syncTargets(ctx context.Context, cfg domain.SyncConfig, names []string, branch string) []domain.TargetResult {
	if len(cfg.Targets) == 0 {
		return nil
	}
	git := a.git()
	root, err := git.RepoRoot(ctx)
	if err != nil {
		a.logf("resolve repository root: %v", err)
		root = ""
	}
	if branch == "" {
		branch = git.CurrentBranch(ctx)
	}
	return a.syncer().SyncAll(ctx, cfg.Targets, names, targets.Request{
		Source:       root,
		SourceBranch: branch,
		DryRun:       cfg.DryRun,
	})
}

// RunTargetsSync mirrors the working tree to the configured sync targets.
func (a *App) RunTargetsSync(ctx context.Context, names []string) (int, error) {
	loaded, err := a.loadConfig(ctx)
	if err != nil {
		return 1, err
	}
	cfg := loaded.Config
	if len(cfg.Targets) == 0 {
		fmt.Fprintln(a.Stdout, "No sync targets configured")
		return 0, nil
	}
	results := a.syncTargets(ctx, cfg, names, "")
	a.renderTargetResults(results, cfg.DryRun)
	if anyTargetFailed(results) {
		return 1, nil
	}
	return 0, nil
}

func anyTargetFailed(results []domain.TargetResult) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}
