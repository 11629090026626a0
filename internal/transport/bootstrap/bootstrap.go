// Package bootstrap implements the HELLO registration-ack endpoint (spec.md
// §4.2 step 2-3, §6's "registration reply endpoint"). It is a tiny unary
// gRPC service declared by hand against the pre-compiled well-known proto
// types (wrapperspb.UInt64Value, emptypb.Empty) instead of a protoc-
// generated one, following the same grpc.NewServer()/ServiceDesc wiring
// dbspgraph's master.go uses for its own streaming service.
package bootstrap

import (
	"context"
	"sync"

	"golang.org/x/xerrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dispatchd/dispatchd/internal/model"
)

// Server is implemented by types that handle the worker's Hello ack.
type Server interface {
	Hello(ctx context.Context, workerID *wrapperspb.UInt64Value) (*emptypb.Empty, error)
}

var bootstrapServiceDesc = grpc.ServiceDesc{
	ServiceName: "dispatchd.Bootstrap",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Hello",
			Handler:    helloHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dispatchd/bootstrap.proto",
}

func helloHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.UInt64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Hello(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dispatchd.Bootstrap/Hello"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Hello(ctx, req.(*wrapperspb.UInt64Value))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterServer attaches srv to s under the hand-declared service
// descriptor above.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&bootstrapServiceDesc, srv)
}

// Client calls the Hello RPC against a registered Server.
type Client interface {
	Hello(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc as a bootstrap Client.
func NewClient(cc grpc.ClientConnInterface) Client {
	return &client{cc: cc}
}

func (c *client) Hello(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/dispatchd.Bootstrap/Hello", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AckServer implements Server, tracking one pending-ack channel per worker
// awaiting its HELLO handshake to complete.
type AckServer struct {
	mu      sync.Mutex
	pending map[model.WorkerID]chan struct{}
}

// NewAckServer returns an empty AckServer.
func NewAckServer() *AckServer {
	return &AckServer{pending: make(map[model.WorkerID]chan struct{})}
}

// Await registers id as awaiting a Hello ack and returns a channel that is
// closed once it arrives. If Hello for id has already arrived, the returned
// channel is already closed.
func (a *AckServer) Await(id model.WorkerID) <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.pending[id]
	if !ok {
		ch = make(chan struct{})
		a.pending[id] = ch
	}
	return ch
}

// Hello implements Server: it signals the channel returned by Await for
// this worker ID, unblocking the bootstrap loop's HELLO retry.
func (a *AckServer) Hello(ctx context.Context, workerID *wrapperspb.UInt64Value) (*emptypb.Empty, error) {
	id := model.WorkerID(workerID.GetValue())

	a.mu.Lock()
	ch, ok := a.pending[id]
	if !ok {
		ch = make(chan struct{})
		a.pending[id] = ch
	}
	a.mu.Unlock()

	select {
	case <-ch:
		// already signalled by a concurrent Hello; duplicate acks are
		// tolerated since the HELLO broadcast is retried at a fixed
		// cadence until exactly one ack closes the channel.
	default:
		close(ch)
	}
	return &emptypb.Empty{}, nil
}

// errUnavailable is returned (wrapped) by SayHello when it is given a nil
// Client.
var errUnavailable = status.Error(codes.Unavailable, "bootstrap endpoint unavailable")

// SayHello is the worker-side half of the handshake: it calls the Hello
// RPC once the worker has subscribed to its broadcast prefix.
func SayHello(ctx context.Context, c Client, id model.WorkerID) error {
	if c == nil {
		return xerrors.Errorf("bootstrap: %w", errUnavailable)
	}
	_, err := c.Hello(ctx, wrapperspb.UInt64(uint64(id)), grpc.WaitForReady(false))
	if err != nil {
		return xerrors.Errorf("hello rpc: %w", err)
	}
	return nil
}
