package app

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"remote-sync/internal/domain"
	"remote-sync/internal/health"
	"remote-sync/internal/push"
	"remote-sync/internal/state"
	"remote-sync/internal/vpn"
)

// session holds the collaborators for one sync run. Its VPN tracker lives
// exactly as long as the run so cleanup covers every push the run made.
type session struct {
	runID   string
	cfg     domain.SyncConfig
	log     *slog.Logger
	checker health.Checker
	vpns    *vpn.Manager
	engine  *push.Engine
	store   *state.QueueStore

	// queueMu serializes queue read-modify-write cycles between workers.
	queueMu sync.Mutex
}

func (a *App) newSession(cfg domain.SyncConfig) *session {
	runID := a.runID()
	log := a.logger().With("run", runID)
	git := a.git()
	checker := health.Checker{Git: git, Now: a.Now}

	manager := vpn.NewManager(a.exec(), vpn.NewTracker(), log)
	manager.Settle = a.VPNSettle
	manager.Sleep = a.Sleep
	manager.Now = a.Now

	engine := &push.Engine{
		Git:           git,
		Health:        checker,
		VPN:           manager,
		Log:           log,
		BaseDelay:     cfg.RetryBaseDelay,
		MaxDelay:      cfg.RetryMaxDelay,
		HealthTimeout: cfg.HealthCheckTimeout,
		Sleep:         a.Sleep,
		Jitter:        a.Jitter,
		Now:           a.Now,
	}
	return &session{
		runID:   runID,
		cfg:     cfg,
		log:     log,
		checker: checker,
		vpns:    manager,
		engine:  engine,
		store:   a.queueStore(),
	}
}

// disconnectAll tears down every VPN this run brought up. It must run even
// when the caller's context is already cancelled.
func (s *session) disconnectAll(ctx context.Context) {
	for _, res := range s.vpns.DisconnectAll(context.WithoutCancel(ctx), s.cfg.DryRun) {
		if res.Connected {
			s.log.Warn("vpn still connected after cleanup", "vpn", res.Name, "message", res.Message)
			continue
		}
		s.log.Info("vpn disconnected", "vpn", res.Name, "message", res.Message)
	}
}

func (s *session) request(remote domain.RemoteConfig, branch string, force bool) push.Request {
	req := push.Request{
		Remote: remote,
		Branch: branch,
		Force:  force,
		DryRun: s.cfg.DryRun,
	}
	if v, ok := s.cfg.VPNFor(remote); ok {
		req.VPN = &v
	}
	return req
}

// enqueue records a failed push in the offline queue when enabled. The
// returned entry is nil if nothing was queued.
func (s *session) enqueue(res domain.PushResult) *domain.QueuedPush {
	if res.Status != domain.PushFailed || !s.cfg.OfflineQueue || s.cfg.DryRun {
		return nil
	}
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	item, err := s.store.Add(res.Remote, res.Branch, res.CommitSHA, res.Message)
	if err != nil {
		s.log.Error("queue failed push", "remote", res.Remote, "branch", res.Branch, "error", err)
		return nil
	}
	s.log.Info("queued failed push for later retry", "remote", res.Remote, "branch", res.Branch)
	return &item
}

type SyncRequest struct {
	Branch  string
	Remotes []string
	Force   bool
}

// SyncToRemotes pushes one branch to every matching remote. Remotes without
// a VPN run concurrently (bounded by MaxWorkers) when parallel mode is on;
// remotes behind a VPN always run one at a time afterwards so that at most
// one VPN transition is in flight. The aggregate is ordered by priority.
func (a *App) SyncToRemotes(ctx context.Context, cfg domain.SyncConfig, req SyncRequest) (domain.SyncResult, error) {
	s := a.newSession(cfg)
	return s.syncBranch(ctx, a, req)
}

func (s *session) syncBranch(ctx context.Context, a *App, req SyncRequest) (domain.SyncResult, error) {
	result := domain.SyncResult{RunID: s.runID, DryRun: s.cfg.DryRun}

	branch := req.Branch
	if branch == "" {
		branch = a.git().CurrentBranch(ctx)
		if branch == "" {
			return result, ErrNoBranch
		}
	}
	result.Branch = branch

	selected, err := selectRemotes(s.cfg, req.Remotes)
	if err != nil {
		return result, err
	}
	var matching []domain.RemoteConfig
	for _, remote := range selected {
		if remote.MatchesBranch(branch) {
			matching = append(matching, remote)
		}
	}
	if len(matching) == 0 {
		s.log.Info("no remotes configured for branch", "branch", branch)
		return result, nil
	}

	if s.cfg.AutoFetch && !s.cfg.DryRun {
		names := make([]string, len(matching))
		for i, remote := range matching {
			names[i] = remote.Name
		}
		for remote, msg := range s.checker.FetchAll(ctx, names, 0, s.cfg.MaxWorkers) {
			s.log.Debug("fetch failed", "remote", remote, "error", msg)
		}
	}

	var direct, viaVPN []domain.RemoteConfig
	for _, remote := range matching {
		if _, ok := s.cfg.VPNFor(remote); ok {
			viaVPN = append(viaVPN, remote)
		} else {
			direct = append(direct, remote)
		}
	}
	s.log.Debug("dispatching pushes", "branch", branch, "direct", len(direct), "vpn", len(viaVPN))

	defer s.disconnectAll(ctx)

	var mu sync.Mutex
	collect := func(res domain.PushResult) {
		queued := s.enqueue(res)
		mu.Lock()
		defer mu.Unlock()
		result.PushResults = append(result.PushResults, res)
		if queued != nil {
			result.Queued = append(result.Queued, *queued)
		}
	}

	if s.cfg.Parallel && len(direct) > 1 {
		var g errgroup.Group
		g.SetLimit(max(s.cfg.MaxWorkers, 1))
		for _, remote := range direct {
			g.Go(func() error {
				collect(s.engine.Push(ctx, s.request(remote, branch, req.Force)))
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, remote := range direct {
			collect(s.engine.Push(ctx, s.request(remote, branch, req.Force)))
		}
	}

	for _, remote := range viaVPN {
		collect(s.engine.Push(ctx, s.request(remote, branch, req.Force)))
	}

	domain.SortPushResults(result.PushResults, priorities(s.cfg))
	return result, nil
}

// ProcessQueueOptions narrows queue replay to some remotes or one branch.
type ProcessQueueOptions struct {
	Remotes []string
	Branch  string
	Force   bool
}

// ProcessQueue replays queued pushes. Every entry is re-read and written
// back individually so pushes queued concurrently are not lost; successes
// are removed, failures re-queued with the new error.
func (a *App) ProcessQueue(ctx context.Context, cfg domain.SyncConfig, opts ProcessQueueOptions) (domain.SyncResult, error) {
	s := a.newSession(cfg)
	result := domain.SyncResult{RunID: s.runID, DryRun: cfg.DryRun}

	snapshot, err := s.store.Load()
	if err != nil {
		return result, err
	}
	if snapshot.Len() == 0 {
		s.log.Info("offline queue is empty")
		return result, nil
	}

	wanted := map[string]bool{}
	for _, name := range opts.Remotes {
		wanted[name] = true
	}
	s.log.Info("processing queued pushes", "count", snapshot.Len())
	defer s.disconnectAll(ctx)

	for _, item := range snapshot.Items {
		if len(wanted) > 0 && !wanted[item.Remote] {
			continue
		}
		if opts.Branch != "" && item.Branch != opts.Branch {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		remote, ok := cfg.Remotes[item.Remote]
		if !ok {
			remote = domain.NewRemoteConfig(item.Remote)
		}
		res := s.engine.Push(ctx, s.request(remote, item.Branch, opts.Force))
		result.PushResults = append(result.PushResults, res)
		if cfg.DryRun {
			continue
		}
		if res.Status == domain.PushSuccess {
			if err := s.store.Remove(item.Remote, item.Branch); err != nil {
				return result, err
			}
			continue
		}
		if _, err := s.store.Add(item.Remote, item.Branch, item.CommitSHA, res.Message); err != nil {
			return result, err
		}
	}

	domain.SortPushResults(result.PushResults, priorities(cfg))
	return result, nil
}
