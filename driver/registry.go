package driver

import "sync"

// registryKey identifies a property uniquely across the registry.
type registryKey struct {
	device string
	name   string
}

// PropertyEntry is the sanity-cache record for one defined property: its
// permission, kind, and a back-reference to the driver-owned vector so the
// dispatcher can apply updates without a second lookup.
//
// Entries are boxed individually (allocated once, never copied by value)
// so a *PropertyEntry obtained under Registry's mutex stays valid even
// after it is dereferenced outside the critical section — the Registry
// never reallocates or moves an entry in place, and entries are never
// removed for the lifetime of the driver (§3, §5 Open Question #1).
type PropertyEntry struct {
	Perm Permission
	Kind Kind
	Back any // *NumberVector, *SwitchVector, *TextVector or *BlobVector
}

// Registry is the process-wide sanity cache of every property this driver
// has defined so far (§4.B), guarded by a single mutex.
type Registry struct {
	mu      sync.Mutex
	entries map[registryKey]*PropertyEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[registryKey]*PropertyEntry)}
}

// RegisterOnce records (device, name) with the given permission, kind and
// back-reference. If the key already exists the original entry is left
// untouched and returned — registration is idempotent, matching the
// teacher's lookup-before-insert idiom in handlePublicKeyLine.
func (r *Registry) RegisterOnce(device, name string, perm Permission, kind Kind, back any) *PropertyEntry {
	key := registryKey{device, name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		return existing
	}
	entry := &PropertyEntry{Perm: perm, Kind: kind, Back: back}
	r.entries[key] = entry
	return entry
}

// Lookup returns the entry for (device, name), or nil if undefined. The
// mutex is held only for the map read; the returned pointer is safe to
// dereference afterwards because entries are insertion-only (see
// PropertyEntry's doc comment).
func (r *Registry) Lookup(device, name string) *PropertyEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[registryKey{device, name}]
}
