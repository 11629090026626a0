// Package transport abstracts the request/reply and broadcast channels the
// core consumes (spec.md §1: "the core only consumes a reliable
// request/reply channel to each client, a broadcast channel to all
// clients"). The wire transport and framed-message encoding are external
// collaborators; this package defines the boundary and a concrete TCP +
// gob reference implementation of it, the idiomatic substitute for the
// original's ZeroMQ REQ/REP and PUB/SUB sockets.
package transport

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/dispatchd/dispatchd/internal/transport Requester,Dialer,Broadcaster,Replier

import (
	"context"

	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/wire"
)

// Requester is a reliable request/reply client: one Call is one
// request-then-reply round trip, the Go analog of a ZeroMQ REQ socket
// transaction.
type Requester interface {
	Call(ctx context.Context, msg wire.Message) (wire.Message, error)
	Close() error
}

// Dialer opens Requesters to worker-advertised addresses.
type Dialer interface {
	Dial(ctx context.Context, address string) (Requester, error)
}

// Broadcaster is the one-way server-to-all-workers transport. Publish
// frames msg with the WorkerID prefix described in spec.md §6 and fans it
// out to every connected subscriber.
type Broadcaster interface {
	Publish(id model.WorkerID, msg wire.Message) error
	Close() error
}

// Exchange is one inbound request bound to the connection awaiting its
// reply, the Go analog of a ZeroMQ REP socket transaction.
type Exchange struct {
	Request wire.Message

	replyFn func(wire.Message) error
	closeFn func() error
}

// NewExchange builds an Exchange from a request and its reply/close
// callbacks. Used by Replier implementations and by fakes in tests that
// need to feed a Frontend requests without a real socket.
func NewExchange(request wire.Message, replyFn func(wire.Message) error, closeFn func() error) *Exchange {
	return &Exchange{Request: request, replyFn: replyFn, closeFn: closeFn}
}

// Reply sends msg back to the requester and closes the exchange.
func (e *Exchange) Reply(msg wire.Message) error {
	defer e.closeFn()
	return e.replyFn(msg)
}

// Replier is the server-side request/reply endpoint: Receive blocks until
// the next inbound request arrives.
type Replier interface {
	Receive(ctx context.Context) (*Exchange, error)
	Addr() string
	Close() error
}
