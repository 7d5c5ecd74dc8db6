package state

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"remote-sync/internal/domain"
)

const (
	EnvPrefix = "REMOTE_SYNC"

	defaultRemoteTimeout = 30 * time.Second
	defaultVPNTimeout    = 30 * time.Second
	defaultRsyncPort     = 22
	inlineVPNPrefix      = "_inline_"
)

// LoadedConfig is a fully resolved configuration plus the non-fatal problems
// found while resolving it.
type LoadedConfig struct {
	Config   domain.SyncConfig
	Path     string
	Warnings []string
}

func (l *LoadedConfig) warnf(format string, args ...any) {
	l.Warnings = append(l.Warnings, fmt.Sprintf(format, args...))
}

type rawVPN struct {
	ConnectCmd    string   `yaml:"connect_cmd"`
	DisconnectCmd string   `yaml:"disconnect_cmd"`
	CheckCmd      string   `yaml:"check_cmd"`
	Timeout       *float64 `yaml:"timeout"`
	AutoConnect   *bool    `yaml:"auto_connect"`
}

type rawRemote struct {
	Priority  *int      `yaml:"priority"`
	Branches  *[]string `yaml:"branches"`
	ForcePush string    `yaml:"force_push"`
	Retry     *int      `yaml:"retry"`
	Timeout   *float64  `yaml:"timeout"`
	Group     string    `yaml:"group"`
	URL       string    `yaml:"url"`
	VPN       yaml.Node `yaml:"vpn"`
}

type rawTarget struct {
	Path       string    `yaml:"path"`
	Host       string    `yaml:"host"`
	User       string    `yaml:"user"`
	Port       *int      `yaml:"port"`
	SSHKey     string    `yaml:"ssh_key"`
	Exclude    *[]string `yaml:"exclude"`
	Delete     bool      `yaml:"delete"`
	Options    []string  `yaml:"options"`
	BranchMode string    `yaml:"branch_mode"`
	Branch     string    `yaml:"branch"`
}

type rawFile struct {
	Remotes     map[string]rawRemote `yaml:"remotes"`
	VPN         map[string]rawVPN    `yaml:"vpn"`
	SyncTargets map[string]rawTarget `yaml:"sync_targets"`

	Parallel           *bool    `yaml:"parallel"`
	MaxWorkers         *int     `yaml:"max_workers"`
	OfflineQueue       *bool    `yaml:"offline_queue"`
	HealthCheckTimeout *float64 `yaml:"health_check_timeout"`
	RetryBaseDelay     *float64 `yaml:"retry_base_delay"`
	RetryMaxDelay      *float64 `yaml:"retry_max_delay"`
	AutoFetch          *bool    `yaml:"auto_fetch"`
}

// settings are the scalar knobs layered by viper: defaults, then the config
// file, then REMOTE_SYNC_* environment variables.
type settings struct {
	Parallel           bool    `mapstructure:"parallel"`
	MaxWorkers         int     `mapstructure:"max_workers"`
	OfflineQueue       bool    `mapstructure:"offline_queue"`
	HealthCheckTimeout float64 `mapstructure:"health_check_timeout"`
	RetryBaseDelay     float64 `mapstructure:"retry_base_delay"`
	RetryMaxDelay      float64 `mapstructure:"retry_max_delay"`
	AutoFetch          bool    `mapstructure:"auto_fetch"`
	DryRun             bool    `mapstructure:"dry_run"`
	Verbose            bool    `mapstructure:"verbose"`
}

type settingKind int

const (
	kindBool settingKind = iota
	kindInt
	kindFloat
)

var settingKinds = map[string]settingKind{
	"parallel":             kindBool,
	"max_workers":          kindInt,
	"offline_queue":        kindBool,
	"health_check_timeout": kindFloat,
	"retry_base_delay":     kindFloat,
	"retry_max_delay":      kindFloat,
	"auto_fetch":           kindBool,
	"dry_run":              kindBool,
	"verbose":              kindBool,
}

func newSettingsViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("parallel", true)
	v.SetDefault("max_workers", 4)
	v.SetDefault("offline_queue", true)
	v.SetDefault("health_check_timeout", 5.0)
	v.SetDefault("retry_base_delay", 1.0)
	v.SetDefault("retry_max_delay", 30.0)
	v.SetDefault("auto_fetch", true)
	v.SetDefault("dry_run", false)
	v.SetDefault("verbose", false)
	v.SetEnvPrefix(EnvPrefix)
	return v
}

// LoadConfig resolves the configuration for the repository at paths.Root.
// explicit is the --config value; an explicit file must exist. A file that
// does not parse is an error. Invalid individual values fall back to their
// defaults and are reported as warnings.
func LoadConfig(paths Paths, explicit string) (LoadedConfig, error) {
	var out LoadedConfig
	path, err := paths.ResolveConfigPath(explicit)
	if err != nil {
		return out, err
	}
	out.Path = path

	var raw rawFile
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return out, err
		}
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return out, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	v := newSettingsViper()
	if err := v.MergeConfigMap(raw.scalars()); err != nil {
		return out, fmt.Errorf("merge %s: %w", path, err)
	}
	bindEnv(v, &out)

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return out, fmt.Errorf("resolve settings: %w", err)
	}

	cfg := domain.SyncConfig{
		Remotes:            map[string]domain.RemoteConfig{},
		VPNs:               map[string]domain.VpnConfig{},
		Targets:            map[string]domain.TargetConfig{},
		Parallel:           s.Parallel,
		MaxWorkers:         s.MaxWorkers,
		OfflineQueue:       s.OfflineQueue,
		HealthCheckTimeout: seconds(s.HealthCheckTimeout),
		RetryBaseDelay:     seconds(s.RetryBaseDelay),
		RetryMaxDelay:      seconds(s.RetryMaxDelay),
		AutoFetch:          s.AutoFetch,
		DryRun:             s.DryRun,
		Verbose:            s.Verbose,
	}
	if cfg.MaxWorkers < 1 {
		out.warnf("max_workers must be at least 1, got %d; using 4", cfg.MaxWorkers)
		cfg.MaxWorkers = 4
	}
	if cfg.HealthCheckTimeout <= 0 {
		out.warnf("health_check_timeout must be positive; using 5s")
		cfg.HealthCheckTimeout = 5 * time.Second
	}
	if cfg.RetryBaseDelay < 0 {
		out.warnf("retry_base_delay must not be negative; using 1s")
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		out.warnf("retry_max_delay %s is below retry_base_delay %s; using the base delay", cfg.RetryMaxDelay, cfg.RetryBaseDelay)
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}

	for _, name := range sortedKeys(raw.VPN) {
		cfg.VPNs[name] = resolveVPN(name, raw.VPN[name])
	}
	for _, name := range sortedKeys(raw.Remotes) {
		remote, inline := resolveRemote(name, raw.Remotes[name], &out)
		if inline != nil {
			cfg.VPNs[inline.Name] = *inline
		}
		cfg.Remotes[name] = remote
	}
	// Dangling VPN references resolve to "no VPN".
	for name, remote := range cfg.Remotes {
		if remote.VPN == "" {
			continue
		}
		if _, ok := cfg.VPNs[remote.VPN]; !ok {
			out.warnf("remote %q references unknown vpn %q; ignoring", name, remote.VPN)
			remote.VPN = ""
			cfg.Remotes[name] = remote
		}
	}
	for _, name := range sortedKeys(raw.SyncTargets) {
		cfg.Targets[name] = resolveTarget(name, raw.SyncTargets[name], &out)
	}

	out.Config = cfg
	return out, nil
}

func (r rawFile) scalars() map[string]any {
	m := map[string]any{}
	if r.Parallel != nil {
		m["parallel"] = *r.Parallel
	}
	if r.MaxWorkers != nil {
		m["max_workers"] = *r.MaxWorkers
	}
	if r.OfflineQueue != nil {
		m["offline_queue"] = *r.OfflineQueue
	}
	if r.HealthCheckTimeout != nil {
		m["health_check_timeout"] = *r.HealthCheckTimeout
	}
	if r.RetryBaseDelay != nil {
		m["retry_base_delay"] = *r.RetryBaseDelay
	}
	if r.RetryMaxDelay != nil {
		m["retry_max_delay"] = *r.RetryMaxDelay
	}
	if r.AutoFetch != nil {
		m["auto_fetch"] = *r.AutoFetch
	}
	return m
}

// bindEnv binds only environment values that parse for their key, so a
// malformed override leaves the lower layer in effect.
func bindEnv(v *viper.Viper, out *LoadedConfig) {
	keys := make([]string, 0, len(settingKinds))
	for key := range settingKinds {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		envName := EnvPrefix + "_" + strings.ToUpper(key)
		value, ok := os.LookupEnv(envName)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if !validEnvValue(settingKinds[key], strings.TrimSpace(value)) {
			out.warnf("ignoring %s=%q: not a valid value", envName, value)
			continue
		}
		_ = v.BindEnv(key, envName)
	}
}

func validEnvValue(kind settingKind, value string) bool {
	var err error
	switch kind {
	case kindBool:
		_, err = strconv.ParseBool(value)
	case kindInt:
		_, err = strconv.Atoi(value)
	case kindFloat:
		_, err = strconv.ParseFloat(value, 64)
	}
	return err == nil
}

func resolveVPN(name string, raw rawVPN) domain.VpnConfig {
	cfg := domain.VpnConfig{
		Name:          name,
		ConnectCmd:    raw.ConnectCmd,
		DisconnectCmd: raw.DisconnectCmd,
		CheckCmd:      raw.CheckCmd,
		Timeout:       defaultVPNTimeout,
		AutoConnect:   true,
	}
	if raw.Timeout != nil && *raw.Timeout > 0 {
		cfg.Timeout = seconds(*raw.Timeout)
	}
	if raw.AutoConnect != nil {
		cfg.AutoConnect = *raw.AutoConnect
	}
	return cfg
}

func resolveRemote(name string, raw rawRemote, out *LoadedConfig) (domain.RemoteConfig, *domain.VpnConfig) {
	cfg := domain.NewRemoteConfig(name)
	cfg.URL = raw.URL
	if raw.Priority != nil {
		cfg.Priority = *raw.Priority
	}
	if raw.Branches != nil {
		cfg.Branches = append([]string(nil), (*raw.Branches)...)
	}
	policy, err := domain.ParseForcePushPolicy(raw.ForcePush)
	if err != nil {
		out.warnf("remote %q: %v", name, err)
	}
	cfg.ForcePush = policy
	if raw.Retry != nil {
		cfg.Retry = *raw.Retry
		if cfg.Retry < 0 {
			out.warnf("remote %q: retry must not be negative; using 0", name)
			cfg.Retry = 0
		}
	}
	if raw.Timeout != nil {
		if *raw.Timeout > 0 {
			cfg.Timeout = seconds(*raw.Timeout)
		} else {
			out.warnf("remote %q: timeout must be positive; using %s", name, defaultRemoteTimeout)
		}
	}
	if raw.Group != "" {
		cfg.Group = raw.Group
	}

	var inline *domain.VpnConfig
	switch raw.VPN.Kind {
	case yaml.ScalarNode:
		if raw.VPN.Tag != "!!null" {
			cfg.VPN = strings.TrimSpace(raw.VPN.Value)
		}
	case yaml.MappingNode:
		var rv rawVPN
		if err := raw.VPN.Decode(&rv); err != nil {
			out.warnf("remote %q: invalid inline vpn: %v", name, err)
			break
		}
		vpn := resolveVPN(inlineVPNPrefix+name, rv)
		inline = &vpn
		cfg.VPN = vpn.Name
	case 0:
	default:
		out.warnf("remote %q: vpn must be a name or a mapping", name)
	}
	return cfg, inline
}

func resolveTarget(name string, raw rawTarget, out *LoadedConfig) domain.TargetConfig {
	cfg := domain.TargetConfig{
		Name:    name,
		Kind:    domain.TargetFilesystem,
		Path:    raw.Path,
		Host:    raw.Host,
		User:    raw.User,
		SSHKey:  raw.SSHKey,
		Exclude: append([]string(nil), domain.DefaultTargetExcludes...),
		Delete:  raw.Delete,
		Options: raw.Options,
		Branch:  raw.Branch,
	}
	if raw.Host != "" {
		cfg.Kind = domain.TargetRsync
		cfg.Port = defaultRsyncPort
		if raw.Port != nil {
			cfg.Port = *raw.Port
		}
	}
	if raw.Exclude != nil {
		cfg.Exclude = append([]string(nil), (*raw.Exclude)...)
	}
	mode, err := domain.ParseBranchMode(raw.BranchMode)
	if err != nil {
		out.warnf("target %q: %v", name, err)
	}
	cfg.BranchMode = mode
	if mode == domain.BranchModeSpecific && cfg.Branch == "" {
		out.warnf("target %q: branch_mode specific needs a branch; keeping the current branch", name)
		cfg.BranchMode = domain.BranchModeKeep
	}
	return cfg
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalConfig renders a resolved configuration as YAML.
func MarshalConfig(cfg domain.SyncConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}
