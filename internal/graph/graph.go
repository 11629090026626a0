// Package graph implements the computation graph: an append-only DAG of
// object vertices and call edges, used both as dispatch metadata and as the
// source for offline .dot export.
package graph

import (
	"sync"

	"github.com/dispatchd/dispatchd/internal/model"
)

// CallNode records one call edge: a function name binding its argument
// object references to a result object reference.
type CallNode struct {
	Name   string
	Args   []model.ObjectRef
	Result model.ObjectRef
}

// Graph is the append-only computation DAG. It is safe for concurrent use;
// the front end is its only writer but the debug/export paths read it from
// other goroutines.
type Graph struct {
	mu      sync.Mutex
	numObjs int
	calls   []CallNode
}

// New returns an empty computation graph.
func New() *Graph {
	return &Graph{}
}

// AddObj allocates a new object vertex and returns its ObjectRef. Mirrors
// graph.rs's add_obj: the caller (the front end, via objtable.Register) is
// responsible for keeping the object table's length in lockstep with the
// graph's vertex count.
func (g *Graph) AddObj() model.ObjectRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := model.ObjectRef(g.numObjs)
	g.numObjs++
	return ref
}

// AddOp appends a call edge binding args to result.
func (g *Graph) AddOp(name string, args []model.ObjectRef, result model.ObjectRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, CallNode{
		Name:   name,
		Args:   append([]model.ObjectRef(nil), args...),
		Result: result,
	})
}

// NumObjs returns the number of object vertices allocated so far.
func (g *Graph) NumObjs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.numObjs
}

// Calls returns a snapshot of the call edges recorded so far, in insertion
// order.
func (g *Graph) Calls() []CallNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]CallNode, len(g.calls))
	copy(out, g.calls)
	return out
}
