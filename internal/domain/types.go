package domain

import "time"

const Version = "1.0.0"

type PushStatus string

const (
	PushSuccess PushStatus = "success"
	PushFailed  PushStatus = "failed"
	PushSkipped PushStatus = "skipped"
	PushQueued  PushStatus = "queued"
	PushBlocked PushStatus = "blocked"
)

type RemoteStatus string

const (
	RemoteReachable   RemoteStatus = "reachable"
	RemoteUnreachable RemoteStatus = "unreachable"
	RemoteUnknown     RemoteStatus = "unknown"
)

// RemoteConfig is one configured push destination. Values are resolved at
// load time and not mutated afterwards.
type RemoteConfig struct {
	Name      string          `yaml:"-" json:"name"`
	Priority  int             `yaml:"priority" json:"priority"`
	Branches  []string        `yaml:"branches" json:"branches"`
	ForcePush ForcePushPolicy `yaml:"force_push" json:"force_push"`
	Retry     int             `yaml:"retry" json:"retry"`
	Timeout   time.Duration   `yaml:"timeout" json:"timeout"`
	Group     string          `yaml:"group" json:"group"`
	URL       string          `yaml:"url,omitempty" json:"url,omitempty"`
	VPN       string          `yaml:"vpn,omitempty" json:"vpn,omitempty"`
}

// NewRemoteConfig returns a remote with default settings, used for remotes
// that exist in git but not in the config file.
func NewRemoteConfig(name string) RemoteConfig {
	return RemoteConfig{
		Name:      name,
		Priority:  1,
		Branches:  []string{"*"},
		ForcePush: ForcePushBlock,
		Retry:     3,
		Timeout:   30 * time.Second,
		Group:     "default",
	}
}

func (r RemoteConfig) MatchesBranch(branch string) bool {
	return BranchMatchesPattern(branch, r.Branches)
}

type VpnConfig struct {
	Name          string        `yaml:"-" json:"name"`
	ConnectCmd    string        `yaml:"connect_cmd" json:"connect_cmd"`
	DisconnectCmd string        `yaml:"disconnect_cmd" json:"disconnect_cmd"`
	CheckCmd      string        `yaml:"check_cmd,omitempty" json:"check_cmd,omitempty"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	AutoConnect   bool          `yaml:"auto_connect" json:"auto_connect"`
}

type SyncConfig struct {
	Remotes            map[string]RemoteConfig `yaml:"remotes"`
	VPNs               map[string]VpnConfig    `yaml:"vpn,omitempty"`
	Targets            map[string]TargetConfig `yaml:"sync_targets,omitempty"`
	Parallel           bool                    `yaml:"parallel"`
	MaxWorkers         int                     `yaml:"max_workers"`
	OfflineQueue       bool                    `yaml:"offline_queue"`
	HealthCheckTimeout time.Duration           `yaml:"health_check_timeout"`
	RetryBaseDelay     time.Duration           `yaml:"retry_base_delay"`
	RetryMaxDelay      time.Duration           `yaml:"retry_max_delay"`
	AutoFetch          bool                    `yaml:"auto_fetch"`
	DryRun             bool                    `yaml:"dry_run"`
	Verbose            bool                    `yaml:"verbose"`
	Quiet              bool                    `yaml:"quiet"`
}

// VPNFor resolves a remote's VPN reference. A dangling reference is treated
// as no VPN.
func (c SyncConfig) VPNFor(remote RemoteConfig) (VpnConfig, bool) {
	if remote.VPN == "" {
		return VpnConfig{}, false
	}
	vpn, ok := c.VPNs[remote.VPN]
	return vpn, ok
}

type PushResult struct {
	Remote    string        `json:"remote"`
	Branch    string        `json:"branch"`
	Status    PushStatus    `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	Retries   int           `json:"retries"`
	CommitSHA string        `json:"commit_sha,omitempty"`
	VPNUsed   string        `json:"vpn_used,omitempty"`
}

type HealthCheckResult struct {
	Remote    string       `json:"remote"`
	Status    RemoteStatus `json:"status"`
	URL       string       `json:"url,omitempty"`
	LatencyMS float64      `json:"latency_ms"`
	Error     string       `json:"error,omitempty"`
}

func (h HealthCheckResult) Reachable() bool {
	return h.Status == RemoteReachable
}

type SyncStatusResult struct {
	Remote       string    `json:"remote"`
	Branch       string    `json:"branch"`
	State        SyncState `json:"state"`
	LocalCommit  string    `json:"local_commit,omitempty"`
	RemoteCommit string    `json:"remote_commit,omitempty"`
	Ahead        int       `json:"ahead"`
	Behind       int       `json:"behind"`
}

// CommitPrefix shortens a SHA for display.
func CommitPrefix(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
