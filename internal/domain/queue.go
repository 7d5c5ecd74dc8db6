package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp serializes as an ISO-8601 string. It also accepts zone-less
// timestamps and the empty string, both of which appear in queue files
// written by older tooling.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			ts.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

type QueuedPush struct {
	Remote    string    `json:"remote"`
	Branch    string    `json:"branch"`
	CommitSHA string    `json:"commit_sha"`
	QueuedAt  Timestamp `json:"queued_at"`
	Retries   int       `json:"retries"`
	LastError string    `json:"last_error"`
}

type OfflineQueue struct {
	CreatedAt Timestamp    `json:"created_at"`
	UpdatedAt Timestamp    `json:"updated_at"`
	Items     []QueuedPush `json:"items"`
}

func (q *OfflineQueue) index(remote, branch string) int {
	for i, item := range q.Items {
		if item.Remote == remote && item.Branch == branch {
			return i
		}
	}
	return -1
}

func (q *OfflineQueue) Find(remote, branch string) (QueuedPush, bool) {
	if i := q.index(remote, branch); i >= 0 {
		return q.Items[i], true
	}
	return QueuedPush{}, false
}

// Add records a failed push. An existing (remote, branch) entry is updated in
// place and its retry counter incremented; otherwise a new entry is appended.
// The stored entry is returned.
func (q *OfflineQueue) Add(remote, branch, commitSHA, lastError string, now time.Time) QueuedPush {
	if i := q.index(remote, branch); i >= 0 {
		q.Items[i].CommitSHA = commitSHA
		q.Items[i].LastError = lastError
		q.Items[i].Retries++
		return q.Items[i]
	}
	item := QueuedPush{
		Remote:    remote,
		Branch:    branch,
		CommitSHA: commitSHA,
		QueuedAt:  NewTimestamp(now),
		LastError: lastError,
	}
	q.Items = append(q.Items, item)
	return item
}

// Remove deletes the (remote, branch) entry and reports whether one existed.
func (q *OfflineQueue) Remove(remote, branch string) bool {
	i := q.index(remote, branch)
	if i < 0 {
		return false
	}
	q.Items = append(q.Items[:i], q.Items[i+1:]...)
	return true
}

func (q OfflineQueue) Len() int {
	return len(q.Items)
}
