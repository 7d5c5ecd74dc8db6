package domain

import (
	"strconv"
	"time"
)

type TargetKind string

const (
	TargetFilesystem TargetKind = "filesystem"
	TargetRsync      TargetKind = "rsync"
)

var DefaultTargetExcludes = []string{".git", "__pycache__", "*.pyc", ".DS_Store"}

// TargetConfig is a non-git mirror of the working tree. A target with a Host
// is synced over rsync+ssh, otherwise it is a local directory.
type TargetConfig struct {
	Name       string     `yaml:"-" json:"name"`
	Kind       TargetKind `yaml:"type" json:"type"`
	Path       string     `yaml:"path" json:"path"`
	Host       string     `yaml:"host,omitempty" json:"host,omitempty"`
	User       string     `yaml:"user,omitempty" json:"user,omitempty"`
	Port       int        `yaml:"port,omitempty" json:"port,omitempty"`
	SSHKey     string     `yaml:"ssh_key,omitempty" json:"ssh_key,omitempty"`
	Exclude    []string   `yaml:"exclude" json:"exclude"`
	Delete     bool       `yaml:"delete" json:"delete"`
	Options    []string   `yaml:"options,omitempty" json:"options,omitempty"`
	BranchMode BranchMode `yaml:"branch_mode" json:"branch_mode"`
	Branch     string     `yaml:"branch,omitempty" json:"branch,omitempty"`
}

func (t TargetConfig) SSHHost() string {
	if t.User != "" {
		return t.User + "@" + t.Host
	}
	return t.Host
}

func (t TargetConfig) RsyncDestination() string {
	return t.SSHHost() + ":" + t.Path
}

// SSHArgs returns the ssh options shared by rsync's -e and direct ssh calls.
func (t TargetConfig) SSHArgs() []string {
	var args []string
	if t.Port != 0 && t.Port != 22 {
		args = append(args, "-p", strconv.Itoa(t.Port))
	}
	if t.SSHKey != "" {
		args = append(args, "-i", t.SSHKey)
	}
	return args
}

type TargetResult struct {
	Name             string        `json:"name"`
	Kind             TargetKind    `json:"type"`
	Success          bool          `json:"success"`
	Message          string        `json:"message,omitempty"`
	FilesTransferred int           `json:"files_transferred"`
	BytesTransferred int64         `json:"bytes_transferred"`
	Duration         time.Duration `json:"duration"`
}
