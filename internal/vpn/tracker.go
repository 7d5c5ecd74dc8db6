package vpn

import (
	"sort"
	"sync"

	"remote-sync/internal/domain"
)

// Tracker records the VPN sessions opened during one sync run so they can be
// torn down at the end. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	active map[string]domain.VpnConfig
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]domain.VpnConfig)}
}

func (t *Tracker) Add(cfg domain.VpnConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		t.active = make(map[string]domain.VpnConfig)
	}
	t.active[cfg.Name] = cfg
}

func (t *Tracker) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, name)
}

func (t *Tracker) Has(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[name]
	return ok
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Snapshot returns the active sessions ordered by name.
func (t *Tracker) Snapshot() []domain.VpnConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.VpnConfig, 0, len(t.active))
	for _, cfg := range t.active {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
