package domain

type SyncState string

const (
	SyncInSync   SyncState = "in_sync"
	SyncAhead    SyncState = "ahead"
	SyncBehind   SyncState = "behind"
	SyncDiverged SyncState = "diverged"
	SyncNoRemote SyncState = "no_remote"
	SyncUnknown  SyncState = "unknown"
)

func ClassifySyncState(ahead, behind int) SyncState {
	switch {
	case ahead == 0 && behind == 0:
		return SyncInSync
	case ahead > 0 && behind == 0:
		return SyncAhead
	case ahead == 0 && behind > 0:
		return SyncBehind
	case ahead > 0 && behind > 0:
		return SyncDiverged
	default:
		return SyncUnknown
	}
}
