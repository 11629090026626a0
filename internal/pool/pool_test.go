package pool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	gc "gopkg.in/check.v1"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dispatchd/dispatchd/internal/fntable"
	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/objtable"
	"github.com/dispatchd/dispatchd/internal/pool"
	"github.com/dispatchd/dispatchd/internal/registry"
	"github.com/dispatchd/dispatchd/internal/scheduler"
	"github.com/dispatchd/dispatchd/internal/transport"
	"github.com/dispatchd/dispatchd/internal/transport/bootstrap"
	"github.com/dispatchd/dispatchd/internal/transport/mocks"
	"github.com/dispatchd/dispatchd/internal/wire"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

var _ = gc.Suite(new(PoolTestSuite))

type PoolTestSuite struct{}

type publishedMsg struct {
	id  model.WorkerID
	msg wire.Message
}

// publishLog is a plain recorder wired into a MockBroadcaster's Publish
// expectation; gomock expectations describe what may be called, not how to
// inspect what was recorded afterwards, so a test still needs somewhere to
// stash the messages it wants to assert on.
type publishLog struct {
	mu        sync.Mutex
	published []publishedMsg
}

func (l *publishLog) record(id model.WorkerID, msg wire.Message) {
	l.mu.Lock()
	l.published = append(l.published, publishedMsg{id: id, msg: msg})
	l.mu.Unlock()
}

func (l *publishLog) snapshot() []publishedMsg {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]publishedMsg, len(l.published))
	copy(out, l.published)
	return out
}

func newTestPool(c *gc.C) (*pool.Pool, *registry.Registry, *publishLog, *bootstrap.AckServer, func()) {
	ctrl := gomock.NewController(c)
	ot := objtable.New()
	ft := fntable.New()
	reg := registry.New()
	sched := scheduler.New(ot, ft, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	acks := bootstrap.NewAckServer()
	log := &publishLog{}

	dialer := mocks.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, address string) (transport.Requester, error) {
			req := mocks.NewMockRequester(ctrl)
			req.EXPECT().Call(gomock.Any(), gomock.Any()).Return(wire.Message{Type: wire.TypeAck}, nil).AnyTimes()
			req.EXPECT().Close().Return(nil).AnyTimes()
			return req, nil
		},
	).AnyTimes()

	bc := mocks.NewMockBroadcaster(ctrl)
	bc.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(id model.WorkerID, msg wire.Message) error {
			log.record(id, msg)
			return nil
		},
	).AnyTimes()
	bc.EXPECT().Close().Return(nil).AnyTimes()

	p := pool.New(reg, ot, sched, dialer, bc, acks, nil, nil)
	return p, reg, log, acks, cancel
}

func (s *PoolTestSuite) TestRegisterCompletesHandshakeAfterHelloAck(c *gc.C) {
	p, reg, log, acks, cancel := newTestPool(c)
	defer cancel()

	id := p.NextWorkerID()
	c.Assert(id, gc.Equals, model.WorkerID(0))

	registerDone := make(chan error, 1)
	go func() {
		registerDone <- p.Register(context.Background(), id, "tcp://worker0")
	}()

	// simulate the worker acking after a short delay, the way a real
	// worker acks only once it has subscribed to its broadcast prefix.
	time.Sleep(30 * time.Millisecond)
	_, err := acks.Hello(context.Background(), wrapperspb.UInt64(uint64(id)))
	c.Assert(err, gc.IsNil)

	select {
	case err := <-registerDone:
		c.Assert(err, gc.IsNil)
	case <-time.After(2 * time.Second):
		c.Fatal("Register did not complete after Hello ack")
	}

	c.Assert(reg.Len(), gc.Equals, 1)

	var helloCount int
	for _, pm := range log.snapshot() {
		if pm.msg.Type == wire.TypeHello && pm.id == id {
			helloCount++
		}
	}
	c.Assert(helloCount >= 1, gc.Equals, true, gc.Commentf("expected at least one HELLO, saw %d", helloCount))
}

func (s *PoolTestSuite) TestRegisterSecondWorkerAnnouncesPeerAddresses(c *gc.C) {
	p, _, log, acks, cancel := newTestPool(c)
	defer cancel()

	ackWhenPublished := func(id model.WorkerID) {
		go func() {
			for i := 0; i < 50; i++ {
				time.Sleep(2 * time.Millisecond)
				for _, m := range log.snapshot() {
					if m.id == id && m.msg.Type == wire.TypeHello {
						acks.Hello(context.Background(), wrapperspb.UInt64(uint64(id)))
						return
					}
				}
			}
		}()
	}

	id0 := p.NextWorkerID()
	ackWhenPublished(id0)
	c.Assert(p.Register(context.Background(), id0, "tcp://worker0"), gc.IsNil)

	id1 := p.NextWorkerID()
	c.Assert(id1, gc.Equals, model.WorkerID(1))
	ackWhenPublished(id1)
	c.Assert(p.Register(context.Background(), id1, "tcp://worker1"), gc.IsNil)

	var sawPeerForNew, sawNewForPeer bool
	for _, m := range log.snapshot() {
		if m.msg.Type != wire.TypeRegisterClient {
			continue
		}
		if m.id == id1 && m.msg.Address == "tcp://worker0" {
			sawPeerForNew = true
		}
		if m.id == id0 && m.msg.Address == "tcp://worker1" {
			sawNewForPeer = true
		}
	}
	c.Assert(sawPeerForNew, gc.Equals, true, gc.Commentf("new worker should be told about the existing peer's address"))
	c.Assert(sawNewForPeer, gc.Equals, true, gc.Commentf("existing peer should be told about the new worker's address"))
}
