package heuristics

import (
	"encoding/json"
	"sort"
	"strings"
)

// Blacklist is an immutable set of normalized addresses.
// Build a new one to change membership; the zero value is empty.
type Blacklist struct {
	set map[string]struct{}
}

// NewBlacklist normalizes and deduplicates addrs. Blank entries are ignored.
func NewBlacklist(addrs ...string) Blacklist {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if n := NormalizeAddress(a); n != "" {
			set[n] = struct{}{}
		}
	}
	return Blacklist{set: set}
}

// Contains checks membership (O(1)). addr must already be normalized.
func (b Blacklist) Contains(addr string) bool {
	if addr == "" {
		return false
	}
	_, ok := b.set[addr]
	return ok
}

// Len returns the number of listed addresses.
func (b Blacklist) Len() int {
	return len(b.set)
}

// Addresses returns the members in sorted order.
func (b Blacklist) Addresses() []string {
	out := make([]string, 0, len(b.set))
	for a := range b.set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (b Blacklist) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Addresses())
}

func (b *Blacklist) UnmarshalJSON(data []byte) error {
	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return err
	}
	*b = NewBlacklist(addrs...)
	return nil
}

// NormalizeAddress trims and lowercases an address for comparison.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
