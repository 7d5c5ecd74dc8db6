package domain

import "sort"

// SyncResult aggregates one orchestrated sync.
type SyncResult struct {
	RunID       string              `json:"run_id"`
	Branch      string              `json:"branch"`
	PushResults []PushResult        `json:"push_results"`
	Queued      []QueuedPush        `json:"queued,omitempty"`
	Targets     []TargetResult      `json:"targets,omitempty"`
	Health      []HealthCheckResult `json:"health_checks,omitempty"`
	Statuses    []SyncStatusResult  `json:"sync_statuses,omitempty"`
	DryRun      bool                `json:"dry_run"`
}

func (r SyncResult) SuccessCount() int {
	return r.countStatus(PushSuccess)
}

func (r SyncResult) FailedCount() int {
	return r.countStatus(PushFailed)
}

func (r SyncResult) BlockedCount() int {
	return r.countStatus(PushBlocked)
}

func (r SyncResult) countStatus(status PushStatus) int {
	n := 0
	for _, res := range r.PushResults {
		if res.Status == status {
			n++
		}
	}
	return n
}

// AllSucceeded is true when every push succeeded. An empty result is
// vacuously successful.
func (r SyncResult) AllSucceeded() bool {
	for _, res := range r.PushResults {
		if res.Status != PushSuccess {
			return false
		}
	}
	return true
}

// Merge appends other's results into r, keeping r's run metadata.
func (r *SyncResult) Merge(other SyncResult) {
	r.PushResults = append(r.PushResults, other.PushResults...)
	r.Queued = append(r.Queued, other.Queued...)
	r.Targets = append(r.Targets, other.Targets...)
}

// SortPushResults orders results by ascending remote priority, then remote
// name, then branch. Remotes missing from priorities sort last.
func SortPushResults(results []PushResult, priorities map[string]int) {
	sort.SliceStable(results, func(i, j int) bool {
		pi, iok := priorities[results[i].Remote]
		pj, jok := priorities[results[j].Remote]
		if iok != jok {
			return iok
		}
		if pi != pj {
			return pi < pj
		}
		if results[i].Remote != results[j].Remote {
			return results[i].Remote < results[j].Remote
		}
		return results[i].Branch < results[j].Branch
	})
}

// SortRemotes orders remotes by ascending priority with the name as tie-break.
func SortRemotes(remotes []RemoteConfig) {
	sort.SliceStable(remotes, func(i, j int) bool {
		if remotes[i].Priority != remotes[j].Priority {
			return remotes[i].Priority < remotes[j].Priority
		}
		return remotes[i].Name < remotes[j].Name
	})
}
