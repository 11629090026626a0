package scheduler_test

import (
	"context"
	"testing"
	"time"

	gc "gopkg.in/check.v1"

	"github.com/dispatchd/dispatchd/internal/fntable"
	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/objtable"
	"github.com/dispatchd/dispatchd/internal/scheduler"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

var _ = gc.Suite(new(SchedulerTestSuite))

type SchedulerTestSuite struct{}

func newTestScheduler(c *gc.C) (*scheduler.Scheduler, *objtable.Table, *fntable.Table, func()) {
	ot := objtable.New()
	ft := fntable.New()
	s := scheduler.New(ot, ft, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	return s, ot, ft, cancel
}

func recvDirective(c *gc.C, ch <-chan scheduler.Directive) scheduler.Directive {
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		c.Fatal("timed out waiting for directive")
		return scheduler.Directive{}
	}
}

func (s *SchedulerTestSuite) TestWorkerIdleThenJobArrivesDispatchesImmediately(c *gc.C) {
	sched, _, ft, cancel := newTestScheduler(c)
	defer cancel()

	ft.Register("fn", model.WorkerID(0))
	ch := make(chan scheduler.Directive, 4)

	sched.Events() <- scheduler.Event{Kind: scheduler.EventRegister, WorkerID: 0, Directives: ch}
	sched.Events() <- scheduler.Event{Kind: scheduler.EventWorker, WorkerID: 0}

	call := model.NewCall("fn", nil)
	sched.Events() <- scheduler.Event{Kind: scheduler.EventJob, Call: call}

	d := recvDirective(c, ch)
	c.Assert(d.Kind, gc.Equals, scheduler.DirectiveInvoke)
	c.Assert(d.Call.Name, gc.Equals, "fn")
}

func (s *SchedulerTestSuite) TestJobDefersUntilArgBecomesAvailable(c *gc.C) {
	sched, ot, ft, cancel := newTestScheduler(c)
	defer cancel()

	ft.Register("consumer", model.WorkerID(0))
	ch := make(chan scheduler.Directive, 4)
	sched.Events() <- scheduler.Event{Kind: scheduler.EventRegister, WorkerID: 0, Directives: ch}
	sched.Events() <- scheduler.Event{Kind: scheduler.EventWorker, WorkerID: 0}

	r0 := ot.Register() // no holders yet
	call := model.NewCall("consumer", []model.ObjectRef{r0})
	sched.Events() <- scheduler.Event{Kind: scheduler.EventJob, Call: call}

	select {
	case <-ch:
		c.Fatal("call should not have been dispatched before its arg was available")
	case <-time.After(100 * time.Millisecond):
	}

	ot.RegisterResult(r0, model.WorkerID(9))
	sched.Events() <- scheduler.Event{Kind: scheduler.EventWorker, WorkerID: 0}

	d := recvDirective(c, ch)
	c.Assert(d.Kind, gc.Equals, scheduler.DirectiveInvoke)
}

func (s *SchedulerTestSuite) TestPullDeferredUntilObjBecomesAvailable(c *gc.C) {
	sched, ot, _, cancel := newTestScheduler(c)
	defer cancel()

	ch := make(chan scheduler.Directive, 4)
	sched.Events() <- scheduler.Event{Kind: scheduler.EventRegister, WorkerID: 2, Directives: ch}

	r9 := ot.Register()
	sched.Events() <- scheduler.Event{Kind: scheduler.EventPull, WorkerID: 2, ObjRef: r9}

	select {
	case <-ch:
		c.Fatal("pull should have been deferred")
	case <-time.After(100 * time.Millisecond):
	}

	ot.RegisterResult(r9, model.WorkerID(3))
	sched.Events() <- scheduler.Event{Kind: scheduler.EventObj, ObjRef: r9}

	d := recvDirective(c, ch)
	c.Assert(d.Kind, gc.Equals, scheduler.DirectivePull)
	c.Assert(d.ObjRef, gc.Equals, r9)
}

func (s *SchedulerTestSuite) TestObjEventRemovesMatchedPullEntryOnlyOnce(c *gc.C) {
	sched, ot, _, cancel := newTestScheduler(c)
	defer cancel()

	ch := make(chan scheduler.Directive, 4)
	sched.Events() <- scheduler.Event{Kind: scheduler.EventRegister, WorkerID: 2, Directives: ch}

	r9 := ot.Register()
	sched.Events() <- scheduler.Event{Kind: scheduler.EventPull, WorkerID: 2, ObjRef: r9}
	ot.RegisterResult(r9, model.WorkerID(3))

	sched.Events() <- scheduler.Event{Kind: scheduler.EventObj, ObjRef: r9}
	recvDirective(c, ch) // consume the first, expected PULL directive

	// A second Obj event for the same ref must not retrigger a PULL: the
	// entry was removed on its first match (DESIGN.md's removal-on-match
	// resolution of the spec's open question).
	sched.Events() <- scheduler.Event{Kind: scheduler.EventObj, ObjRef: r9}
	select {
	case <-ch:
		c.Fatal("matched pull_queue entry should have been removed on first match")
	case <-time.After(100 * time.Millisecond):
	}
}

func (s *SchedulerTestSuite) TestDebugEventSnapshotsQueuesInOrder(c *gc.C) {
	sched, _, ft, cancel := newTestScheduler(c)
	defer cancel()

	ch := make(chan scheduler.Directive, 4)
	sched.Events() <- scheduler.Event{Kind: scheduler.EventRegister, WorkerID: 0, Directives: ch}
	sched.Events() <- scheduler.Event{Kind: scheduler.EventWorker, WorkerID: 0}

	ft.Register("other", model.WorkerID(1)) // worker 0 cannot run "other"
	j0 := model.NewCall("other", nil)
	j1 := model.NewCall("other", nil)
	sched.Events() <- scheduler.Event{Kind: scheduler.EventJob, Call: j0}
	sched.Events() <- scheduler.Event{Kind: scheduler.EventJob, Call: j1}

	sched.Events() <- scheduler.Event{Kind: scheduler.EventDebug, WorkerID: 0}

	d := recvDirective(c, ch)
	c.Assert(d.Kind, gc.Equals, scheduler.DirectiveDebug)
	c.Assert(d.Info.WorkerQueue, gc.DeepEquals, []model.WorkerID{0})
	c.Assert(d.Info.JobQueue, gc.DeepEquals, []model.Call{j0, j1})
}
