package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"remote-sync/internal/domain"
)

// QueueStore persists the offline queue. Every mutation is a fresh
// load-modify-save so entries written by other calls in between are kept.
type QueueStore struct {
	Path string
	Now  func() time.Time
}

func NewQueueStore(paths Paths, now func() time.Time) *QueueStore {
	return &QueueStore{Path: paths.QueuePath(), Now: now}
}

func (s *QueueStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Load reads the queue. A missing file is an empty queue.
func (s *QueueStore) Load() (domain.OfflineQueue, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.OfflineQueue{Items: []domain.QueuedPush{}}, nil
	}
	if err != nil {
		return domain.OfflineQueue{}, err
	}
	var q domain.OfflineQueue
	if err := json.Unmarshal(b, &q); err != nil {
		return domain.OfflineQueue{}, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return q, nil
}

func (s *QueueStore) Save(q domain.OfflineQueue) error {
	now := domain.NewTimestamp(s.now())
	q.UpdatedAt = now
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if q.Items == nil {
		q.Items = []domain.QueuedPush{}
	}
	b, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return err
	}
	return AtomicWrite(s.Path, append(b, '\n'), 0o644)
}

// Add records a failed push, updating the existing (remote, branch) entry
// when there is one.
func (s *QueueStore) Add(remote, branch, commitSHA, lastError string) (domain.QueuedPush, error) {
	q, err := s.Load()
	if err != nil {
		return domain.QueuedPush{}, err
	}
	item := q.Add(remote, branch, commitSHA, lastError, s.now())
	if err := s.Save(q); err != nil {
		return domain.QueuedPush{}, err
	}
	return item, nil
}

func (s *QueueStore) Remove(remote, branch string) error {
	q, err := s.Load()
	if err != nil {
		return err
	}
	if !q.Remove(remote, branch) {
		return nil
	}
	return s.Save(q)
}

// Clear deletes the queue file. Clearing an absent queue succeeds.
func (s *QueueStore) Clear() error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
