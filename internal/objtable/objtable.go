// Package objtable implements the object table: the mapping from an
// ObjectRef to the set of workers known to hold the materialized object.
package objtable

import (
	"sync"

	"github.com/dispatchd/dispatchd/internal/model"
)

// Table is a mutex-guarded, array-indexed object table. Index equals
// model.ObjectRef, matching server.rs's objtable: Arc<Mutex<ObjTable>>.
type Table struct {
	mu      sync.Mutex
	holders [][]model.WorkerID
}

// New returns an empty object table.
func New() *Table {
	return &Table{}
}

// Register allocates a new object slot and returns its ObjectRef. Callers
// must allocate refs through Register in the same order they are handed
// out by the computation graph, so that ObjectRef and table index never
// diverge (the dense-integer contract).
func (t *Table) Register() model.ObjectRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref := model.ObjectRef(len(t.holders))
	t.holders = append(t.holders, nil)
	return ref
}

// RegisterResult records that workerID holds the materialized object ref.
// Appending to an already non-empty holder set is allowed: multiple workers
// may come to hold the same object.
func (t *Table) RegisterResult(ref model.ObjectRef, workerID model.WorkerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	holders := t.holders[ref]
	for _, w := range holders {
		if w == workerID {
			return
		}
	}
	t.holders[ref] = append(holders, workerID)
}

// Available reports whether ref has at least one holder. A ref that has not
// been registered yet has no holders.
func (t *Table) Available(ref model.ObjectRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(ref) >= len(t.holders) {
		return false
	}
	return len(t.holders[ref]) > 0
}

// Holders returns a copy of the holder set for ref.
func (t *Table) Holders(ref model.ObjectRef) []model.WorkerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.WorkerID, len(t.holders[ref]))
	copy(out, t.holders[ref])
	return out
}

// Len returns the number of registered objects.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.holders)
}

// HasHolder reports whether workerID is already known to hold ref.
func (t *Table) HasHolder(ref model.ObjectRef, workerID model.WorkerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, w := range t.holders[ref] {
		if w == workerID {
			return true
		}
	}
	return false
}
