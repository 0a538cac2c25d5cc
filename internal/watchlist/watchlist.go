package watchlist

import (
	"sort"
	"sync"
	"time"

	"github.com/rawblock/wallet-risk-engine/internal/heuristics"
)

// Blacklist Registry
//
// Live set of flagged counterparties. The HTTP API adds and removes
// entries while assessments run, so reads take the shared lock and
// every assessment evaluates against an immutable Snapshot taken at
// its start. Addresses are stored lower-cased.
//
// Sources:
//   config:   BLACKLIST / BLACKLIST_FILE at boot
//   database: rows persisted by earlier POSTs
//   api:      added at runtime

// Entry holds metadata for a flagged address.
type Entry struct {
	Address string    `json:"address"`
	Label   string    `json:"label,omitempty"`
	Source  string    `json:"source"`
	AddedAt time.Time `json:"addedAt"`
}

// Registry is a concurrent-safe blacklist.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Add registers or relabels an address. It reports whether the address was new.
func (r *Registry) Add(addr, label, source string) bool {
	key := heuristics.NormalizeAddress(addr)
	if key == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.entries[key]
	entry := Entry{Address: key, Label: label, Source: source, AddedAt: r.now().UTC()}
	if exists {
		entry.AddedAt = existing.AddedAt
	}
	r.entries[key] = entry
	return !exists
}

// Remove drops an address. It reports whether the address was present.
func (r *Registry) Remove(addr string) bool {
	key := heuristics.NormalizeAddress(addr)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; !exists {
		return false
	}
	delete(r.entries, key)
	return true
}

// Contains checks if an address is flagged (O(1)).
func (r *Registry) Contains(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[heuristics.NormalizeAddress(addr)]
	return exists
}

// Get returns the entry for an address.
func (r *Registry) Get(addr string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.entries[heuristics.NormalizeAddress(addr)]
	return entry, exists
}

// List returns all entries sorted by address.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Size returns the number of flagged addresses.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot freezes the current set for one evaluation.
func (r *Registry) Snapshot() heuristics.Blacklist {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addrs := make([]string, 0, len(r.entries))
	for addr := range r.entries {
		addrs = append(addrs, addr)
	}
	return heuristics.NewBlacklist(addrs...)
}
