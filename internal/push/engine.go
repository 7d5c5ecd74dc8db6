// Package push performs a single branch push to one remote, enforcing the
// remote's force-push policy and retrying with exponential backoff. A remote
// behind a VPN is first probed directly; the VPN is only brought up when the
// remote cannot be reached without it.
package push

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"remote-sync/internal/domain"
	"remote-sync/internal/execx"
	"remote-sync/internal/vpn"
)

const (
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

type Git interface {
	BranchSHA(ctx context.Context, branch string) string
	IsForcePushRequired(ctx context.Context, remote, branch string) bool
	Push(ctx context.Context, remote, branch string, force bool, timeout time.Duration) execx.Result
}

type Prober interface {
	Reachable(ctx context.Context, remote string, timeout time.Duration) bool
}

type VPN interface {
	Connect(ctx context.Context, cfg domain.VpnConfig, dryRun bool) vpn.Result
}

type Engine struct {
	Git    Git
	Health Prober
	VPN    VPN
	Log    *slog.Logger

	BaseDelay     time.Duration
	MaxDelay      time.Duration
	HealthTimeout time.Duration

	// Sleep waits between attempts; Jitter returns a value in [0,1).
	Sleep  func(ctx context.Context, d time.Duration)
	Jitter func() float64
	Now    func() time.Time
}

type Request struct {
	Remote domain.RemoteConfig
	Branch string
	Force  bool
	DryRun bool
	VPN    *domain.VpnConfig
}

func (e *Engine) logger() *slog.Logger {
	if e.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Log
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if e.Sleep != nil {
		e.Sleep(ctx, d)
		return
	}
	vpn.SleepContext(ctx, d)
}

func (e *Engine) jitter() float64 {
	if e.Jitter != nil {
		return e.Jitter()
	}
	return rand.Float64()
}

// Backoff is the wait before the retry following a failed attempt (0-based):
// min(base * 2^attempt + jitter, max).
func (e *Engine) Backoff(attempt int) time.Duration {
	base := e.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := e.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	secs := base.Seconds()*math.Pow(2, float64(attempt)) + e.jitter()
	delay := time.Duration(secs * float64(time.Second))
	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}

func (e *Engine) Push(ctx context.Context, req Request) domain.PushResult {
	start := e.now()
	remote := req.Remote.Name
	log := e.logger().With("remote", remote, "branch", req.Branch)
	result := domain.PushResult{
		Remote:    remote,
		Branch:    req.Branch,
		CommitSHA: e.Git.BranchSHA(ctx, req.Branch),
	}

	if !req.DryRun && e.Git.IsForcePushRequired(ctx, remote, req.Branch) && !req.Force {
		switch req.Remote.ForcePush {
		case domain.ForcePushAllow:
		case domain.ForcePushWarn:
			log.Warn("force push required")
		default:
			result.Status = domain.PushBlocked
			result.Message = fmt.Sprintf("Force push blocked by policy for %s", remote)
			return result
		}
	}

	if req.DryRun {
		result.Status = domain.PushSuccess
		result.Message = fmt.Sprintf("[DRY RUN] Would push %s to %s", req.Branch, remote)
		if req.VPN != nil {
			result.Message += fmt.Sprintf(" (via VPN '%s')", req.VPN.Name)
			result.VPNUsed = req.VPN.Name
		}
		return result
	}

	useVPN := req.VPN != nil && req.VPN.AutoConnect
	var lastErr string
	for attempt := 0; attempt <= req.Remote.Retry; attempt++ {
		if attempt == 0 && useVPN {
			healthTimeout := e.HealthTimeout
			if healthTimeout <= 0 {
				healthTimeout = DefaultHealthTimeout
			}
			if e.Health != nil && e.Health.Reachable(ctx, remote, healthTimeout) {
				log.Debug("remote reachable without vpn")
				useVPN = false
			}
		}

		if useVPN {
			conn := e.VPN.Connect(ctx, *req.VPN, false)
			if conn.Connected {
				result.VPNUsed = req.VPN.Name
			} else {
				log.Warn("vpn connection failed, trying without vpn", "vpn", req.VPN.Name, "error", conn.Message)
				useVPN = false
			}
		}

		res := e.Git.Push(ctx, remote, req.Branch, req.Force, req.Remote.Timeout)
		if res.OK() {
			result.Status = domain.PushSuccess
			result.Message = fmt.Sprintf("Successfully pushed %s to %s", req.Branch, remote)
			result.Retries = attempt
			result.Duration = e.now().Sub(start)
			return result
		}
		lastErr = res.Message()

		// A failure without the tunnel may mean the tunnel is required.
		if result.VPNUsed == "" && req.VPN != nil && !useVPN {
			log.Debug("push failed, will try with vpn", "vpn", req.VPN.Name)
			useVPN = true
		}

		if attempt < req.Remote.Retry {
			delay := e.Backoff(attempt)
			log.Debug("push failed, retrying", "attempt", attempt+1, "delay", delay.Round(100*time.Millisecond), "error", lastErr)
			e.sleep(ctx, delay)
			if ctx.Err() != nil {
				result.Retries = attempt
				lastErr = ctx.Err().Error()
				break
			}
		} else {
			result.Retries = attempt
		}
	}

	result.Status = domain.PushFailed
	result.Message = lastErr
	result.Duration = e.now().Sub(start)
	return result
}
