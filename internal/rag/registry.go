package rag

import (
	"sort"
	"sync"
)

// Registry maps corpus IDs to their current index. Entries are replaced as
// a whole, never edited, so a reader always sees a complete index.
type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

func NewRegistry() *Registry {
	return &Registry{indexes: make(map[string]*Index)}
}

func (r *Registry) Get(corpusID string) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.indexes[corpusID]
	return idx, ok
}

// Swap publishes idx for corpusID and returns the index it replaced.
func (r *Registry) Swap(corpusID string, idx *Index) *Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.indexes[corpusID]
	r.indexes[corpusID] = idx
	return prev
}

func (r *Registry) Delete(corpusID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.indexes[corpusID]
	delete(r.indexes, corpusID)
	return ok
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.indexes))
	for id := range r.indexes {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.indexes)
}
