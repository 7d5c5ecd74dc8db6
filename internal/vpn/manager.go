// Package vpn connects and disconnects externally managed VPN sessions
// through shell commands.
package vpn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"remote-sync/internal/domain"
	"remote-sync/internal/execx"
)

const (
	DefaultCheckTimeout = 10 * time.Second
	DefaultSettle       = time.Second
)

type Result struct {
	Name      string
	Connected bool
	Message   string
	Duration  time.Duration
}

type Manager struct {
	Exec    execx.Executor
	Tracker *Tracker
	Log     *slog.Logger
	// Settle is how long to wait after a successful connect before the
	// verification check.
	Settle       time.Duration
	CheckTimeout time.Duration
	Sleep        func(ctx context.Context, d time.Duration)
	Now          func() time.Time
}

func NewManager(exec execx.Executor, tracker *Tracker, log *slog.Logger) *Manager {
	return &Manager{
		Exec:         exec,
		Tracker:      tracker,
		Log:          log,
		Settle:       DefaultSettle,
		CheckTimeout: DefaultCheckTimeout,
	}
}

func (m *Manager) logger() *slog.Logger {
	if m.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m.Log
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if m.Sleep != nil {
		m.Sleep(ctx, d)
		return
	}
	SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (m *Manager) tracker() *Tracker {
	if m.Tracker == nil {
		m.Tracker = NewTracker()
	}
	return m.Tracker
}

func (m *Manager) shell(ctx context.Context, command string, timeout time.Duration) execx.Result {
	return m.Exec.Run(ctx, execx.Command{Shell: command, Timeout: timeout})
}

// IsConnected runs the check command. Without a check command the answer is
// always false, which means "unknown" rather than "down".
func (m *Manager) IsConnected(ctx context.Context, cfg domain.VpnConfig) bool {
	if cfg.CheckCmd == "" {
		return false
	}
	timeout := m.CheckTimeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return m.shell(ctx, cfg.CheckCmd, timeout).OK()
}

func (m *Manager) Connect(ctx context.Context, cfg domain.VpnConfig, dryRun bool) Result {
	log := m.logger().With("vpn", cfg.Name)
	if cfg.ConnectCmd == "" {
		return Result{Name: cfg.Name, Message: "No connect command configured"}
	}
	if cfg.CheckCmd != "" && m.IsConnected(ctx, cfg) {
		log.Debug("vpn already connected")
		return Result{Name: cfg.Name, Connected: true, Message: "Already connected"}
	}
	if dryRun {
		return Result{Name: cfg.Name, Connected: true, Message: "[DRY RUN] Would connect VPN: " + cfg.ConnectCmd}
	}

	log.Info("connecting vpn")
	start := m.now()
	res := m.shell(ctx, cfg.ConnectCmd, cfg.Timeout)
	elapsed := m.now().Sub(start)
	if !res.OK() {
		msg := res.Message()
		log.Error("vpn connect failed", "error", msg)
		return Result{Name: cfg.Name, Message: msg, Duration: elapsed}
	}

	// Tracked before verification so a half-up session is still torn down.
	m.tracker().Add(cfg)
	m.sleep(ctx, m.Settle)

	if cfg.CheckCmd != "" && !m.IsConnected(ctx, cfg) {
		log.Warn("vpn connect command succeeded but check failed")
		return Result{Name: cfg.Name, Message: "VPN connect command succeeded but connection check failed", Duration: elapsed}
	}
	log.Info("vpn connected", "duration", elapsed.Round(100*time.Millisecond))
	return Result{Name: cfg.Name, Connected: true, Message: "Connected successfully", Duration: elapsed}
}

// Disconnect runs the disconnect command. Once the command has been attempted
// the session is no longer tracked, whatever the outcome.
func (m *Manager) Disconnect(ctx context.Context, cfg domain.VpnConfig, dryRun bool) Result {
	if cfg.DisconnectCmd == "" {
		return Result{Name: cfg.Name, Connected: true, Message: "No disconnect command configured"}
	}
	if dryRun {
		return Result{Name: cfg.Name, Message: "[DRY RUN] Would disconnect VPN: " + cfg.DisconnectCmd}
	}

	log := m.logger().With("vpn", cfg.Name)
	log.Debug("disconnecting vpn")
	start := m.now()
	res := m.shell(ctx, cfg.DisconnectCmd, cfg.Timeout)
	elapsed := m.now().Sub(start)
	m.tracker().Remove(cfg.Name)

	if !res.OK() {
		msg := fmt.Sprintf("Disconnect failed: %s", res.Message())
		log.Warn("vpn disconnect failed", "error", res.Message())
		return Result{Name: cfg.Name, Connected: true, Message: msg, Duration: elapsed}
	}
	return Result{Name: cfg.Name, Message: "Disconnected successfully", Duration: elapsed}
}

// DisconnectAll disconnects every tracked session. With nothing tracked it
// returns an empty slice and runs no commands.
func (m *Manager) DisconnectAll(ctx context.Context, dryRun bool) []Result {
	active := m.tracker().Snapshot()
	results := make([]Result, 0, len(active))
	for _, cfg := range active {
		results = append(results, m.Disconnect(ctx, cfg, dryRun))
	}
	return results
}
