// Package fntable implements the function table: the mapping from a
// function name to the sorted set of workers that have advertised it.
package fntable

import (
	"sort"
	"sync"

	"github.com/dispatchd/dispatchd/internal/model"
)

// Table is an RWMutex-guarded map from function name to a sorted,
// duplicate-free slice of worker IDs, matching scheduler.rs's
// fntable: Arc<RwLock<FnTable>>.
type Table struct {
	mu sync.RWMutex
	fn map[string][]model.WorkerID
}

// New returns an empty function table.
func New() *Table {
	return &Table{fn: make(map[string][]model.WorkerID)}
}

// Register inserts workerID into name's sorted worker set. Idempotent on
// the (name, workerID) pair.
func (t *Table) Register(name string, workerID model.WorkerID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	workers := t.fn[name]
	idx := sort.Search(len(workers), func(i int) bool { return workers[i] >= workerID })
	if idx < len(workers) && workers[idx] == workerID {
		return
	}
	workers = append(workers, 0)
	copy(workers[idx+1:], workers[idx:])
	workers[idx] = workerID
	t.fn[name] = workers
}

// CanRun reports whether workerID has advertised name, using a binary
// search over the sorted set.
func (t *Table) CanRun(name string, workerID model.WorkerID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	workers := t.fn[name]
	idx := sort.Search(len(workers), func(i int) bool { return workers[i] >= workerID })
	return idx < len(workers) && workers[idx] == workerID
}

// Workers returns a copy of the sorted worker set advertising name.
func (t *Table) Workers(name string) []model.WorkerID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.WorkerID, len(t.fn[name]))
	copy(out, t.fn[name])
	return out
}
