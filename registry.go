package natmapper

import (
	"net"
	"sync"
)

// registryKey is the active-mapping table's key: external identity, not
// internal port (spec §3 — essential so a roamed host's stale entries are
// replaceable without colliding).
type registryKey struct {
	externalIP   string
	externalPort uint16
}

func keyFor(m *Mapping) registryKey {
	ip := ""
	if m.ExternalIP != nil {
		ip = m.ExternalIP.String()
	}
	return registryKey{externalIP: ip, externalPort: m.ExternalPort}
}

// registryEntry pairs a Mapping with the adapter responsible for renewing
// or deleting it.
type registryEntry struct {
	adapter Adapter
	mapping *Mapping
}

// registry is the active-mapping table: a map from (externalIP,
// externalPort) to the owning adapter instance plus the mapping record
// (spec §3). Mutations are serialized; readers may observe stale data but
// never a half-written record.
type registry struct {
	mu      sync.Mutex
	entries map[registryKey]*registryEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[registryKey]*registryEntry)}
}

// Insert adds or replaces the entry for m's external identity.
func (r *registry) Insert(m *Mapping, a Adapter) registryKey {
	key := keyFor(m)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = &registryEntry{adapter: a, mapping: m}
	return key
}

// Lookup returns the entry for externalIP:externalPort, if any. externalIP
// may be nil to match entries with an empty external IP.
func (r *registry) Lookup(externalIP net.IP, externalPort uint16) (*registryEntry, bool) {
	ip := ""
	if externalIP != nil {
		ip = externalIP.String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[registryKey{externalIP: ip, externalPort: externalPort}]
	return e, ok
}

// Evict removes and returns the entry for externalIP:externalPort.
func (r *registry) Evict(externalIP net.IP, externalPort uint16) (*registryEntry, bool) {
	ip := ""
	if externalIP != nil {
		ip = externalIP.String()
	}
	key := registryKey{externalIP: ip, externalPort: externalPort}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	return e, ok
}

// SetError records the most recent renewal failure on the mapping stored
// under key, if it is still present, so GetActiveMappings callers can
// observe it (spec §3, §7). A successful renewal replaces the mapping
// wholesale via Insert, which clears this implicitly.
func (r *registry) SetError(key registryKey, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.mapping.ErrorInfo = err
	}
}

// EvictKey removes and returns the entry for an already-computed key.
func (r *registry) EvictKey(key registryKey) (*registryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	return e, ok
}

// Snapshot returns a copy of every active mapping. Safe for callers to
// retain without holding the registry's lock.
func (r *registry) Snapshot() []*Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Mapping, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.mapping.Clone())
	}
	return out
}

// Keys returns every key currently in the table, for the renewal sweep to
// iterate without holding the lock while it re-dials gateways.
func (r *registry) Keys() []registryKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registryKey, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	return out
}

// Len reports the number of active entries.
func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
