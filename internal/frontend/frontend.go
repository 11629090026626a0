// Package frontend implements the server front end: the single
// request/reply endpoint that classifies incoming messages, mutates the
// graph/tables, and injects scheduler events, translated from server.rs's
// Server::process_request / main_loop.
package frontend

import (
	"context"

	"github.com/dispatchd/dispatchd/internal/clog"
	"github.com/dispatchd/dispatchd/internal/fntable"
	"github.com/dispatchd/dispatchd/internal/graph"
	"github.com/dispatchd/dispatchd/internal/metrics"
	"github.com/dispatchd/dispatchd/internal/objtable"
	"github.com/dispatchd/dispatchd/internal/pool"
	"github.com/dispatchd/dispatchd/internal/transport"
	"github.com/dispatchd/dispatchd/internal/wire"
)

// Frontend is the server's public request/reply endpoint.
type Frontend struct {
	graph    *graph.Graph
	objtable *objtable.Table
	fntable  *fntable.Table
	pool     *pool.Pool
	replier  transport.Replier
	log      *clog.Logger
	metrics  *metrics.Metrics
}

// New constructs a Frontend. log and m may be nil.
func New(
	g *graph.Graph,
	ot *objtable.Table,
	ft *fntable.Table,
	p *pool.Pool,
	replier transport.Replier,
	log *clog.Logger,
	m *metrics.Metrics,
) *Frontend {
	if log == nil {
		log = clog.New("frontend", nil)
	}
	return &Frontend{graph: g, objtable: ot, fntable: ft, pool: p, replier: replier, log: log, metrics: m}
}

// Run accepts and processes requests sequentially until ctx is cancelled
// or the replier errors, matching the single server task's "blocks only
// on transport I/O" model.
func (f *Frontend) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ex, err := f.replier.Receive(ctx)
		if err != nil {
			return err
		}
		f.handle(ctx, ex)
	}
}

func (f *Frontend) handle(ctx context.Context, ex *transport.Exchange) {
	msg := ex.Request
	switch msg.Type {
	case wire.TypeRegisterClient:
		f.handleRegisterClient(ctx, ex, msg)

	case wire.TypeRegisterFunction:
		f.fntable.Register(msg.FnName, msg.WorkerID)
		f.log.With("worker_id", msg.WorkerID).With("fn", msg.FnName).Info("function registered")
		f.reply(ex, wire.Message{Type: wire.TypeAck})

	case wire.TypeInvoke:
		f.handleInvoke(ex, msg)

	case wire.TypePull:
		f.reply(ex, wire.Message{Type: wire.TypeAck})
		f.pool.NotifyPull(msg.WorkerID, msg.ObjRef)

	case wire.TypeDone:
		f.reply(ex, wire.Message{Type: wire.TypeAck})
		f.pool.NotifyDone(msg.WorkerID, msg.Call.Result)

	case wire.TypeDebug:
		f.reply(ex, wire.Message{Type: wire.TypeAck})
		f.pool.NotifyDebug(msg.WorkerID)

	default:
		if f.metrics != nil {
			f.metrics.FatalErrors.Inc()
		}
		f.log.Fatal("message not allowed in this state")
	}
}

// handleRegisterClient allocates the new WorkerID, replies immediately,
// then runs the (possibly slow, HELLO-retrying) worker-pool registration
// before the front end returns to accept its next request - the same
// ack-then-register-synchronously sequencing server.rs's process_request
// follows.
func (f *Frontend) handleRegisterClient(ctx context.Context, ex *transport.Exchange, msg wire.Message) {
	id := f.pool.NextWorkerID()
	f.reply(ex, wire.Message{Type: wire.TypeAck, WorkerID: id})

	if err := f.pool.Register(ctx, id, msg.Address); err != nil {
		f.log.Errorf("register worker %d at %s: %v", id, msg.Address, err)
	}
}

// handleInvoke allocates a result object reference, appends a call node to
// the graph, enqueues the scheduler job, and replies with the call echoed
// back with its result bound.
func (f *Frontend) handleInvoke(ex *transport.Exchange, msg wire.Message) {
	ref := f.graph.AddObj()
	idx := f.objtable.Register()
	if idx != ref {
		f.log.Fatal("object table and computation graph diverged on object index")
	}
	if f.metrics != nil {
		f.metrics.ObjectsRegistered.Inc()
	}

	call := msg.Call
	call.BindResult(ref)
	f.graph.AddOp(call.Name, call.Args, ref)
	f.pool.QueueJob(call)

	f.reply(ex, wire.Message{Type: wire.TypeDone, Call: call})
}

func (f *Frontend) reply(ex *transport.Exchange, msg wire.Message) {
	if err := ex.Reply(msg); err != nil {
		f.log.Errorf("reply: %v", err)
	}
}
