package domain

import (
	"fmt"
	"strings"
)

type ForcePushPolicy string

const (
	ForcePushAllow ForcePushPolicy = "allow"
	ForcePushWarn  ForcePushPolicy = "warn"
	ForcePushBlock ForcePushPolicy = "block"
)

// ParseForcePushPolicy returns the policy for raw. Unknown values resolve to
// ForcePushBlock together with an error describing the rejected value, so
// callers can surface a warning and keep going.
func ParseForcePushPolicy(raw string) (ForcePushPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ForcePushAllow):
		return ForcePushAllow, nil
	case string(ForcePushWarn):
		return ForcePushWarn, nil
	case string(ForcePushBlock), "":
		return ForcePushBlock, nil
	default:
		return ForcePushBlock, fmt.Errorf("invalid force_push policy %q, using %q", raw, ForcePushBlock)
	}
}

type BranchMode string

const (
	BranchModeKeep     BranchMode = "keep"
	BranchModeMatch    BranchMode = "match"
	BranchModeSpecific BranchMode = "specific"
)

func ParseBranchMode(raw string) (BranchMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(BranchModeKeep), "":
		return BranchModeKeep, nil
	case string(BranchModeMatch):
		return BranchModeMatch, nil
	case string(BranchModeSpecific):
		return BranchModeSpecific, nil
	default:
		return BranchModeKeep, fmt.Errorf("invalid branch_mode %q, using %q", raw, BranchModeKeep)
	}
}
