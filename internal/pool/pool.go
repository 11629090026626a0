// Package pool implements the worker pool: the registry of worker
// endpoints, the peer-connection bootstrap protocol, the per-worker
// dispatch routines, and the delivery arbiter. Translated from server.rs's
// WorkerPool, with the channel-pair dispatch shape adapted from
// dbspgraph's remoteWorkerStream/master_job_coordinator.
package pool

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"github.com/dispatchd/dispatchd/internal/clog"
	"github.com/dispatchd/dispatchd/internal/metrics"
	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/objtable"
	"github.com/dispatchd/dispatchd/internal/registry"
	"github.com/dispatchd/dispatchd/internal/scheduler"
	"github.com/dispatchd/dispatchd/internal/transport"
	"github.com/dispatchd/dispatchd/internal/transport/bootstrap"
	"github.com/dispatchd/dispatchd/internal/wire"
)

// helloRetryInterval is the bounded cadence at which HELLO is rebroadcast
// while waiting for a fresh worker's registration ack (spec.md §4.2 step
// 3: "a bounded cadence (≈100 Hz)").
const helloRetryInterval = 10 * time.Millisecond

// Pool owns the worker registry, the broadcast channel, the bootstrap
// handshake, and the per-worker dispatch goroutines.
type Pool struct {
	registry  *registry.Registry
	objtable  *objtable.Table
	scheduler *scheduler.Scheduler
	dialer    transport.Dialer
	broadcast transport.Broadcaster
	acks      *bootstrap.AckServer
	log       *clog.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	requesters map[model.WorkerID]transport.Requester
}

// New constructs a Pool. log and m may be nil.
func New(
	reg *registry.Registry,
	ot *objtable.Table,
	sched *scheduler.Scheduler,
	dialer transport.Dialer,
	broadcast transport.Broadcaster,
	acks *bootstrap.AckServer,
	log *clog.Logger,
	m *metrics.Metrics,
) *Pool {
	if log == nil {
		log = clog.New("pool", nil)
	}
	return &Pool{
		registry:   reg,
		objtable:   ot,
		scheduler:  sched,
		dialer:     dialer,
		broadcast:  broadcast,
		acks:       acks,
		log:        log,
		metrics:    m,
		requesters: make(map[model.WorkerID]transport.Requester),
	}
}

// NextWorkerID returns the WorkerID the next Register call will assign,
// so the front end can reply with it before the handshake completes
// (spec.md §4.1: "Allocate the next WorkerID ... reply ... then invoke
// worker-pool registration").
func (p *Pool) NextWorkerID() model.WorkerID {
	return p.registry.PeekNextID()
}

// QueueJob enqueues call with the scheduler (WorkerPool::queue_job).
func (p *Pool) QueueJob(call model.Call) {
	p.scheduler.Events() <- scheduler.Event{Kind: scheduler.EventJob, Call: call}
}

// NotifyPull forwards a pull request to the scheduler. Each pull is tagged
// with a correlation ID purely so the request can be traced through logs
// across the asynchronous delivery it may trigger; the ID plays no part in
// the scheduling decision itself.
func (p *Pool) NotifyPull(workerID model.WorkerID, ref model.ObjectRef) {
	corrID := uuid.New()
	p.log.With("worker_id", workerID).With("obj_ref", ref).With("correlation_id", corrID).Info("pull requested")
	p.scheduler.Events() <- scheduler.Event{Kind: scheduler.EventPull, WorkerID: workerID, ObjRef: ref}
}

// NotifyDone registers the result holder and emits the Worker/Obj event
// pair in the order spec.md §4.1 requires.
func (p *Pool) NotifyDone(workerID model.WorkerID, ref model.ObjectRef) {
	p.objtable.RegisterResult(ref, workerID)
	p.scheduler.Events() <- scheduler.Event{Kind: scheduler.EventWorker, WorkerID: workerID}
	p.scheduler.Events() <- scheduler.Event{Kind: scheduler.EventObj, ObjRef: ref}
}

// NotifyDebug asks the scheduler to dispatch a debug snapshot to workerID.
func (p *Pool) NotifyDebug(workerID model.WorkerID) {
	p.scheduler.Events() <- scheduler.Event{Kind: scheduler.EventDebug, WorkerID: workerID}
}

// Register runs the full bootstrap protocol for a fresh worker at address
// under the WorkerID id, returning an error if the dial or the handshake
// fails. id must equal NextWorkerID()'s value
// at the time the caller reserved it (the front end reads it once, before
// Register runs, to reply to the client immediately).
func (p *Pool) Register(ctx context.Context, id model.WorkerID, address string) error {
	corrID := uuid.New()
	log := p.log.With("worker_id", id).With("correlation_id", corrID)

	requester, err := p.dialer.Dial(ctx, address)
	if err != nil {
		return xerrors.Errorf("pool: dial worker %d at %s: %w", id, address, err)
	}

	log.Info("dialed worker, starting hello handshake")
	if err := p.helloHandshake(ctx, id); err != nil {
		requester.Close()
		return xerrors.Errorf("pool: hello handshake with worker %d: %w", id, err)
	}

	peers := p.registry.Snapshot()
	for i, rec := range peers {
		peerID := model.WorkerID(i)
		if err := p.broadcast.Publish(id, wire.Message{Type: wire.TypeRegisterClient, Address: rec.Address}); err != nil {
			p.log.Errorf("publish peer address to new worker %d: %v", id, err)
		}
		if err := p.broadcast.Publish(peerID, wire.Message{Type: wire.TypeRegisterClient, Address: address}); err != nil {
			p.log.Errorf("publish new worker address to peer %d: %v", peerID, err)
		}
	}

	assigned := p.registry.Register(address, time.Now())
	if assigned != id {
		p.log.Fatal("worker pool registration race: assigned id does not match reserved id")
	}

	directives := make(chan scheduler.Directive, 64)
	p.mu.Lock()
	p.requesters[id] = requester
	p.mu.Unlock()

	p.scheduler.Events() <- scheduler.Event{Kind: scheduler.EventRegister, WorkerID: id, Directives: directives}
	go p.dispatchWorker(ctx, id, requester, directives)
	p.scheduler.Events() <- scheduler.Event{Kind: scheduler.EventWorker, WorkerID: id}

	if p.metrics != nil {
		p.metrics.WorkersRegistered.Inc()
	}
	log.Info("worker registered")
	return nil
}

// helloHandshake repeatedly publishes HELLO to id over the broadcast
// channel until the worker's ack arrives, handling the publish/subscribe
// "late subscriber" race described in spec.md §4.2 step 3 and §9.
func (p *Pool) helloHandshake(ctx context.Context, id model.WorkerID) error {
	ackCh := p.acks.Await(id)

	if err := p.broadcast.Publish(id, wire.Message{Type: wire.TypeHello}); err != nil {
		return err
	}

	ticker := time.NewTicker(helloRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ackCh:
			return nil
		case <-ticker.C:
			if err := p.broadcast.Publish(id, wire.Message{Type: wire.TypeHello}); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// dispatchWorker is the per-worker task: it translates scheduler
// directives into on-the-wire messages for one worker, matching server.rs
// register()'s spawned thread.
func (p *Pool) dispatchWorker(ctx context.Context, id model.WorkerID, req transport.Requester, directives <-chan scheduler.Directive) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-directives:
			switch d.Kind {
			case scheduler.DirectiveInvoke:
				reply, err := req.Call(ctx, wire.Message{Type: wire.TypeInvoke, Call: d.Call})
				if err != nil {
					p.log.Errorf("invoke call on worker %d: %v", id, err)
					continue
				}
				if reply.Type != wire.TypeAck {
					p.log.Fatal("worker sent a non-ACK reply to INVOKE")
				}
				for _, arg := range d.Call.Args {
					p.deliverObject(id, arg)
				}

			case scheduler.DirectivePull:
				p.deliverObject(id, d.ObjRef)

			case scheduler.DirectiveDebug:
				if err := p.broadcast.Publish(id, wire.Message{Type: wire.TypeDebug, SchedulerInfo: d.Info}); err != nil {
					p.log.Errorf("publish debug snapshot to worker %d: %v", id, err)
				}
			}
		}
	}
}

// deliverObject implements the delivery arbiter: if target already holds
// ref, it is a no-op; otherwise a holder is picked uniformly at random and
// told to DELIVER the object to target's address.
func (p *Pool) deliverObject(target model.WorkerID, ref model.ObjectRef) {
	if p.objtable.HasHolder(ref, target) {
		return
	}
	holders := p.objtable.Holders(ref)
	if len(holders) == 0 {
		p.log.Errorf("deliver_object: object %d has no holders", ref)
		return
	}
	holder := holders[rand.Intn(len(holders))]

	rec, ok := p.registry.Lookup(target)
	if !ok {
		p.log.Errorf("deliver_object: unknown target worker %d", target)
		return
	}

	if err := p.broadcast.Publish(holder, wire.Message{Type: wire.TypeDeliver, ObjRef: ref, Address: rec.Address}); err != nil {
		p.log.Errorf("publish deliver request to worker %d: %v", holder, err)
	}
}

// Close disconnects every worker's requester and the broadcast channel,
// aggregating any errors.
func (p *Pool) Close() error {
	var err error

	p.mu.Lock()
	for id, req := range p.requesters {
		if cErr := req.Close(); cErr != nil {
			err = multierror.Append(err, xerrors.Errorf("close worker %d: %w", id, cErr))
		}
	}
	p.requesters = make(map[model.WorkerID]transport.Requester)
	p.mu.Unlock()

	if cErr := p.broadcast.Close(); cErr != nil {
		err = multierror.Append(err, xerrors.Errorf("close broadcaster: %w", cErr))
	}
	return err
}
