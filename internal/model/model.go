// Package model defines the dense integer identifiers and invocation
// records shared by every other package in dispatchd.
package model

import (
	"bytes"
	"encoding/gob"
	"sort"
)

// ObjectRef is a dense, non-negative integer identifying a logical object
// that a worker will eventually materialize. Assigned in allocation order;
// never reassigned or removed during normal operation.
type ObjectRef uint64

// WorkerID is a dense, non-negative integer identifying a registered
// worker. Assigned in registration order and stable for the server's
// lifetime once assigned.
type WorkerID uint64

// Call is an invocation record: a function name, its ordered argument
// object references, and the object reference bound to its result. Call is
// mutated at most twice: once at construction and once when the result is
// bound by BindResult.
type Call struct {
	Name   string
	Args   []ObjectRef
	Result ObjectRef

	// resultBound distinguishes a freshly constructed Call (before dispatch
	// has assigned a result slot) from one whose Result is meaningfully
	// zero (ObjectRef 0 is a valid reference).
	resultBound bool
}

// NewCall constructs a Call whose result has not yet been bound.
func NewCall(name string, args []ObjectRef) Call {
	return Call{Name: name, Args: append([]ObjectRef(nil), args...)}
}

// BindResult binds the call's result object reference. Calling it twice
// panics: a Call's result slot is set exactly once, by the front end that
// allocated it.
func (c *Call) BindResult(result ObjectRef) {
	if c.resultBound {
		panic("model: call result already bound")
	}
	c.Result = result
	c.resultBound = true
}

// ResultBound reports whether BindResult has been called.
func (c *Call) ResultBound() bool {
	return c.resultBound
}

// ArgsToSend reports which of args a caller still needs to obtain before a
// call can run, given a predicate reporting whether an object reference is
// currently absent. Translated from utils.rs's args_to_send: the result is
// args filtered to the absent ones, sorted ascending, and deduplicated - a
// duplicate in args counts once, whether or not it is absent.
func ArgsToSend(args []ObjectRef, absent func(ObjectRef) bool) []ObjectRef {
	scratch := append([]ObjectRef(nil), args...)
	sort.Slice(scratch, func(i, j int) bool { return scratch[i] < scratch[j] })

	curr := 0
	for i, arg := range scratch {
		if i > 0 && arg == scratch[i-1] {
			continue
		}
		if absent(arg) {
			scratch[curr] = arg
			curr++
		}
	}
	return scratch[:curr]
}

// gobCall mirrors Call with resultBound exported, so encoding/gob (which
// only sees exported fields) carries it across the wire. wire.Message
// embeds a Call directly, so Call itself must implement GobEncoder/
// GobDecoder rather than push this onto every caller.
type gobCall struct {
	Name        string
	Args        []ObjectRef
	Result      ObjectRef
	ResultBound bool
}

// GobEncode implements gob.GobEncoder.
func (c Call) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(gobCall{
		Name:        c.Name,
		Args:        c.Args,
		Result:      c.Result,
		ResultBound: c.resultBound,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (c *Call) GobDecode(b []byte) error {
	var g gobCall
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&g); err != nil {
		return err
	}
	c.Name = g.Name
	c.Args = g.Args
	c.Result = g.Result
	c.resultBound = g.ResultBound
	return nil
}
