package bootstrap_test

import (
	"context"
	"testing"
	"time"

	gc "gopkg.in/check.v1"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/transport/bootstrap"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

var _ = gc.Suite(new(BootstrapTestSuite))

type BootstrapTestSuite struct{}

func (s *BootstrapTestSuite) TestAckServerSignalsAwaitingChannel(c *gc.C) {
	srv := bootstrap.NewAckServer()
	ch := srv.Await(model.WorkerID(4))

	select {
	case <-ch:
		c.Fatal("ack channel should not be closed before Hello arrives")
	default:
	}

	_, err := srv.Hello(context.Background(), wrapperspb.UInt64(4))
	c.Assert(err, gc.IsNil)

	select {
	case <-ch:
	case <-time.After(time.Second):
		c.Fatal("ack channel was not closed after Hello")
	}
}

func (s *BootstrapTestSuite) TestAckServerToleratesDuplicateHello(c *gc.C) {
	srv := bootstrap.NewAckServer()
	_, err := srv.Hello(context.Background(), wrapperspb.UInt64(1))
	c.Assert(err, gc.IsNil)
	_, err = srv.Hello(context.Background(), wrapperspb.UInt64(1))
	c.Assert(err, gc.IsNil)
}
