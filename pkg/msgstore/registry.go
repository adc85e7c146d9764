package msgstore

import "sync"

// Registry maps execution-process IDs to their log stores so the HTTP
// layer can find the stream for a running process. A removed store is
// closed by its owner, not by the registry.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Store
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]*Store)}
}

// Put registers the store under id, replacing any previous entry.
func (r *Registry) Put(id string, s *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = s
}

// Get returns the store for id, or nil.
func (r *Registry) Get(id string) *Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[id]
}

// Remove unregisters id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

// Len returns the number of registered stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
