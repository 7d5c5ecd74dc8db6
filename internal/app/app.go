package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"remote-sync/internal/domain"
	"remote-sync/internal/execx"
	"remote-sync/internal/gitx"
	"remote-sync/internal/state"
	"remote-sync/internal/vpn"
)

var (
	ErrNoBranch      = errors.New("could not determine current branch")
	ErrNoRemotes     = errors.New("no git remotes found; add one with 'git remote add <name> <url>'")
	ErrUnknownRemote = errors.New("remote not found in configuration")
)

type App struct {
	Paths  state.Paths
	Exec   execx.Executor
	Stdout io.Writer
	Stderr io.Writer

	ConfigPath string
	DryRun     bool
	NoParallel bool
	Verbose    bool
	Quiet      bool

	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration)
	Jitter   func() float64
	NewRunID func() string
	// VPNSettle is the pause between a successful VPN connect and its
	// verification check.
	VPNSettle time.Duration

	IsInteractiveTerminal func() bool

	level *slog.LevelVar
	log   *slog.Logger
}

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	DryRun     bool
	NoParallel bool
	Verbose    bool
	Quiet      bool
}

type PushOptions struct {
	Remotes []string
	Branch  string
	Force   bool
}

type StatusOptions struct {
	Branch string
	JSON   bool
}

func New(paths state.Paths, stdout io.Writer, stderr io.Writer) *App {
	return &App{
		Paths:  paths,
		Exec:   execx.Local{},
		Stdout: stdout,
		Stderr: stderr,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Sleep:                 vpn.SleepContext,
		NewRunID:              uuid.NewString,
		VPNSettle:             vpn.DefaultSettle,
		IsInteractiveTerminal: defaultIsInteractiveTerminal,
	}
}

func (a *App) Configure(opts GlobalOptions) {
	a.ConfigPath = opts.ConfigPath
	a.DryRun = opts.DryRun
	a.NoParallel = opts.NoParallel
	a.Verbose = opts.Verbose
	a.Quiet = opts.Quiet
	if a.level != nil {
		a.level.Set(a.logLevel(false))
	}
}

func (a *App) logLevel(configVerbose bool) slog.Level {
	switch {
	case a.Quiet:
		return slog.LevelError
	case a.Verbose || configVerbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func (a *App) logger() *slog.Logger {
	if a.log != nil {
		return a.log
	}
	a.level = new(slog.LevelVar)
	a.level.Set(a.logLevel(false))
	out := a.Stderr
	if out == nil {
		out = io.Discard
	}
	a.log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: a.level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) == 0 && attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		},
	}))
	return a.log
}

func (a *App) logf(format string, args ...any) {
	a.logger().Debug(fmt.Sprintf(format, args...))
}

func (a *App) exec() execx.Executor {
	if a.Exec == nil {
		return execx.Local{}
	}
	return a.Exec
}

func (a *App) git() gitx.Runner {
	return gitx.New(a.exec(), a.Paths.Root)
}

func (a *App) runID() string {
	if a.NewRunID != nil {
		return a.NewRunID()
	}
	return uuid.NewString()
}

func (a *App) queueStore() *state.QueueStore {
	return state.NewQueueStore(a.Paths, a.Now)
}

// loadConfig resolves file, environment and flag settings, then falls back
// to the repository's git remotes when the config names none.
func (a *App) loadConfig(ctx context.Context) (state.LoadedConfig, error) {
	a.logf("loading config (explicit=%q) in %s", a.ConfigPath, a.Paths.Root)
	loaded, err := state.LoadConfig(a.Paths, a.ConfigPath)
	if err != nil {
		return loaded, err
	}
	if loaded.Path != "" {
		a.logf("using config file %s", loaded.Path)
	}
	cfg := &loaded.Config
	if a.DryRun {
		cfg.DryRun = true
	}
	if a.NoParallel {
		cfg.Parallel = false
	}
	cfg.Verbose = cfg.Verbose || a.Verbose
	cfg.Quiet = a.Quiet
	a.logger()
	a.level.Set(a.logLevel(cfg.Verbose))

	for _, w := range loaded.Warnings {
		a.logger().Warn(w)
	}

	if len(cfg.Remotes) == 0 {
		a.discoverRemotes(ctx, cfg)
	}
	for _, group := range domain.DuplicateRemotes(cfg.Remotes) {
		a.logger().Warn("remotes point at the same repository", "remotes", strings.Join(group, ","))
	}
	return loaded, nil
}

// discoverRemotes registers every git remote with default settings. origin
// is pushed first; the rest follow in the order git lists them.
func (a *App) discoverRemotes(ctx context.Context, cfg *domain.SyncConfig) {
	git := a.git()
	names, err := git.RemoteNames(ctx)
	if err != nil {
		a.logf("remote discovery failed: %v", err)
		return
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]domain.RemoteConfig{}
	}
	for i, name := range names {
		remote := domain.NewRemoteConfig(name)
		if name != "origin" {
			remote.Priority = i + 2
		}
		remote.URL = git.RemoteURL(ctx, name)
		cfg.Remotes[name] = remote
	}
	a.logf("discovered %d git remote(s)", len(names))
}

// selectRemotes validates an explicit remote subset against the config.
func selectRemotes(cfg domain.SyncConfig, names []string) ([]domain.RemoteConfig, error) {
	if len(cfg.Remotes) == 0 {
		return nil, ErrNoRemotes
	}
	if len(names) == 0 {
		out := make([]domain.RemoteConfig, 0, len(cfg.Remotes))
		for _, remote := range cfg.Remotes {
			out = append(out, remote)
		}
		domain.SortRemotes(out)
		return out, nil
	}
	out := make([]domain.RemoteConfig, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		remote, ok := cfg.Remotes[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRemote, name)
		}
		out = append(out, remote)
	}
	domain.SortRemotes(out)
	return out, nil
}

func priorities(cfg domain.SyncConfig) map[string]int {
	out := make(map[string]int, len(cfg.Remotes))
	for name, remote := range cfg.Remotes {
		out[name] = remote.Priority
	}
	return out
}

// withLock runs fn while holding the queue lock. Contention is exit 2.
func (a *App) withLock(command string, fn func() (int, error)) (int, error) {
	a.logf("%s: acquiring queue lock", command)
	lock, err := state.AcquireLock(a.Paths, command)
	if err != nil {
		return 2, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.logger().Warn("release queue lock", "error", err)
		}
		a.logf("%s: released queue lock", command)
	}()
	return fn()
}

// configExitCode maps orchestration errors to exit codes: configuration
// problems are 1, anything else is internal.
func configExitCode(err error) int {
	switch {
	case errors.Is(err, ErrNoBranch), errors.Is(err, ErrNoRemotes), errors.Is(err, ErrUnknownRemote):
		return 1
	default:
		return 2
	}
}

func (a *App) RunVersion() (int, error) {
	fmt.Fprintf(a.Stdout, "remote-sync %s\n", domain.Version)
	return 0, nil
}
