// Package registry implements the worker registry: an append-only,
// dense-indexed sequence of worker records, matching server.rs's
// workers: Arc<RwLock<Vec<Worker>>>.
package registry

import (
	"sync"
	"time"

	"github.com/dispatchd/dispatchd/internal/model"
)

// Record is one worker's registry entry.
type Record struct {
	Address      string
	RegisteredAt time.Time
}

// Registry is an RWMutex-guarded, append-only worker registry.
type Registry struct {
	mu      sync.RWMutex
	workers []Record
}

// New returns an empty worker registry.
func New() *Registry {
	return &Registry{}
}

// Register appends a new worker record and returns its assigned WorkerID,
// which equals the registry's length before the append.
func (r *Registry) Register(address string, now time.Time) model.WorkerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := model.WorkerID(len(r.workers))
	r.workers = append(r.workers, Record{Address: address, RegisteredAt: now})
	return id
}

// PeekNextID returns the WorkerID that the next Register call will assign,
// without assigning it. The bootstrap handshake needs this ID before the
// worker's record can be appended, matching server.rs's `self.len()`
// computed at the start of `register` before the new Worker is pushed.
func (r *Registry) PeekNextID() model.WorkerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.WorkerID(len(r.workers))
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Lookup returns the record for id and whether it exists.
func (r *Registry) Lookup(id model.WorkerID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.workers) {
		return Record{}, false
	}
	return r.workers[id], true
}

// Snapshot returns a copy of every registered record, index = WorkerID.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.workers))
	copy(out, r.workers)
	return out
}
