// Package scheduler implements the single-consumer event loop that matches
// jobs to workers and services deferred pull requests, translated from
// scheduler.rs's Event enum and start_dispatch_thread.
package scheduler

import (
	"context"

	"github.com/dispatchd/dispatchd/internal/clog"
	"github.com/dispatchd/dispatchd/internal/fntable"
	"github.com/dispatchd/dispatchd/internal/metrics"
	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/objtable"
	"github.com/dispatchd/dispatchd/internal/wire"
)

// EventKind discriminates the Event sum type (Worker/Obj/Job/Pull/
// Register/Debug in scheduler.rs).
type EventKind int

const (
	EventWorker EventKind = iota
	EventJob
	EventObj
	EventPull
	EventRegister
	EventDebug
)

// Event notifies the scheduler that something happened.
type Event struct {
	Kind EventKind

	WorkerID model.WorkerID
	ObjRef   model.ObjectRef
	Call     model.Call

	// Directives is set only on EventRegister: the per-worker directives
	// channel the scheduler should bind to WorkerID from now on.
	Directives chan<- Directive
}

// DirectiveKind discriminates the directives a per-worker task consumes.
type DirectiveKind int

const (
	DirectiveInvoke DirectiveKind = iota
	DirectivePull
	DirectiveDebug
)

// Directive is what the scheduler hands to exactly one per-worker task.
type Directive struct {
	Kind DirectiveKind

	Call   model.Call
	ObjRef model.ObjectRef
	Info   wire.SchedulerInfo
}

type pullEntry struct {
	workerID model.WorkerID
	objRef   model.ObjectRef
}

// Scheduler is the single-consumer matcher. Its queues are owned
// exclusively by the goroutine started in Run and must never be touched
// from outside.
type Scheduler struct {
	objtable *objtable.Table
	fntable  *fntable.Table
	log      *clog.Logger
	metrics  *metrics.Metrics

	events chan Event
}

// New constructs a Scheduler over the given shared tables. log and m may be
// nil.
func New(objtable *objtable.Table, fntable *fntable.Table, log *clog.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = clog.New("scheduler", nil)
	}
	return &Scheduler{
		objtable: objtable,
		fntable:  fntable,
		log:      log,
		metrics:  m,
		events:   make(chan Event, 256),
	}
}

// Events returns the channel callers use to notify the scheduler of new
// events. The channel buffers 256 events; a send blocks once it is full.
// The consumer sends directives on the per-worker channels bound by
// EventRegister and blocks while the target worker's channel is full.
func (s *Scheduler) Events() chan<- Event {
	return s.events
}

// Run starts the dispatch loop and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	directives := make([]chan<- Directive, 0)
	var workerQueue []model.WorkerID
	var jobQueue []model.Call
	var pullQueue []pullEntry

	growDirectives := func(id model.WorkerID) {
		for model.WorkerID(len(directives)) < id+1 {
			directives = append(directives, nil)
		}
	}

	sendInvoke := func(id model.WorkerID, call model.Call) {
		if s.metrics != nil {
			s.metrics.CallsDispatched.Inc()
		}
		directives[id] <- Directive{Kind: DirectiveInvoke, Call: call}
	}
	sendPull := func(id model.WorkerID, objRef model.ObjectRef) {
		directives[id] <- Directive{Kind: DirectivePull, ObjRef: objRef}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			switch ev.Kind {
			case EventRegister:
				growDirectives(ev.WorkerID)
				directives[ev.WorkerID] = ev.Directives

			case EventWorker:
				if idx, ok := s.findNextJob(ev.WorkerID, jobQueue); ok {
					call := jobQueue[idx]
					jobQueue = removeCall(jobQueue, idx)
					sendInvoke(ev.WorkerID, call)
				} else {
					workerQueue = append(workerQueue, ev.WorkerID)
				}

			case EventJob:
				if idx, ok := s.findNextWorker(ev.Call, workerQueue); ok {
					w := workerQueue[idx]
					workerQueue = removeWorker(workerQueue, idx)
					sendInvoke(w, ev.Call)
				} else {
					jobQueue = append(jobQueue, ev.Call)
				}

			case EventObj:
				kept := pullQueue[:0]
				for _, p := range pullQueue {
					if p.objRef == ev.ObjRef {
						sendPull(p.workerID, p.objRef)
						continue // removal-on-match, see DESIGN.md Open Question resolution
					}
					kept = append(kept, p)
				}
				pullQueue = kept

			case EventPull:
				if s.objtable.Available(ev.ObjRef) {
					sendPull(ev.WorkerID, ev.ObjRef)
				} else {
					pullQueue = append(pullQueue, pullEntry{workerID: ev.WorkerID, objRef: ev.ObjRef})
				}

			case EventDebug:
				info := wire.SchedulerInfo{
					WorkerQueue: append([]model.WorkerID(nil), workerQueue...),
					JobQueue:    append([]model.Call(nil), jobQueue...),
				}
				directives[ev.WorkerID] <- Directive{Kind: DirectiveDebug, Info: info}
			}

			if s.metrics != nil {
				s.metrics.WorkersIdle.Set(float64(len(workerQueue)))
				s.metrics.JobsQueued.Set(float64(len(jobQueue)))
				s.metrics.PullsPending.Set(float64(len(pullQueue)))
			}
		}
	}
}

// findNextJob scans jobQueue front-to-back for the first call workerID can
// run given the current object table state.
func (s *Scheduler) findNextJob(workerID model.WorkerID, jobQueue []model.Call) (int, bool) {
	for i, call := range jobQueue {
		if s.fntable.CanRun(call.Name, workerID) && s.canRun(call) {
			return i, true
		}
	}
	return 0, false
}

// findNextWorker scans workerQueue front-to-back for the first worker that
// can run call.
func (s *Scheduler) findNextWorker(call model.Call, workerQueue []model.WorkerID) (int, bool) {
	for i, w := range workerQueue {
		if s.fntable.CanRun(call.Name, w) && s.canRun(call) {
			return i, true
		}
	}
	return 0, false
}

// canRun reports whether every argument of call currently has a non-empty
// holder set.
func (s *Scheduler) canRun(call model.Call) bool {
	for _, arg := range call.Args {
		if !s.objtable.Available(arg) {
			return false
		}
	}
	return true
}

func removeCall(jobQueue []model.Call, idx int) []model.Call {
	out := make([]model.Call, 0, len(jobQueue)-1)
	out = append(out, jobQueue[:idx]...)
	return append(out, jobQueue[idx+1:]...)
}

func removeWorker(workerQueue []model.WorkerID, idx int) []model.WorkerID {
	out := make([]model.WorkerID, 0, len(workerQueue)-1)
	out = append(out, workerQueue[:idx]...)
	return append(out, workerQueue[idx+1:]...)
}
