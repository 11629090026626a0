// Command dispatchworker is the reference worker: it registers with a
// dispatchd server, completes the HELLO bootstrap handshake, registers a
// couple of demonstration functions, and serves INVOKE directives on its
// own request/reply endpoint, translated from server.rs's worker-side
// expectations and Chapter12/dbspgraph's worker.go shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dispatchd/dispatchd/internal/clog"
	"github.com/dispatchd/dispatchd/internal/config"
	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/transport"
	"github.com/dispatchd/dispatchd/internal/transport/bootstrap"
	"github.com/dispatchd/dispatchd/internal/wire"
)

// demoFunctions are the functions this reference worker registers and can
// execute. Each takes a slice of already-delivered argument references and
// returns nothing - the core never inspects call payloads, only shape, so
// these are intentionally inert.
var demoFunctions = map[string]func(args []model.ObjectRef){
	"produce": func(args []model.ObjectRef) {},
	"consume": func(args []model.ObjectRef) {},
}

func main() {
	var cfg config.WorkerConfig
	var logOutput bool

	flag.StringVar(&cfg.ListenAddress, "listen", ":8000", "address this worker advertises and serves INVOKE on")
	flag.StringVar(&cfg.ServerAddress, "server", ":7000", "dispatchd client request/reply address")
	flag.StringVar(&cfg.BroadcastAddress, "broadcast", ":7001", "dispatchd broadcast address")
	flag.StringVar(&cfg.BootstrapAddress, "bootstrap", ":7002", "dispatchd bootstrap gRPC address")
	flag.BoolVar(&logOutput, "l", false, "show logging output (for debugging)")
	flag.Parse()

	if logOutput {
		logger := logrus.New()
		cfg.Logger = logger.WithField("service", "dispatchworker")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dispatchworker: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "dispatchworker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.WorkerConfig) error {
	log := clog.New("dispatchworker", cfg.Logger)

	control, err := transport.DialTCP(ctx, cfg.ServerAddress)
	if err != nil {
		return fmt.Errorf("dial server %s: %w", cfg.ServerAddress, err)
	}
	defer control.Close()

	ack, err := control.Call(ctx, wire.Message{Type: wire.TypeRegisterClient, Address: cfg.ListenAddress})
	if err != nil {
		return fmt.Errorf("register with server: %w", err)
	}
	if ack.Type != wire.TypeAck {
		return fmt.Errorf("server sent a non-ACK reply to REGISTER_CLIENT")
	}
	id := ack.WorkerID
	log.With("worker_id", id).Info("registered with server")

	next, closeSub, err := transport.DialSubscriber(ctx, cfg.BroadcastAddress, id)
	if err != nil {
		return fmt.Errorf("subscribe to broadcast: %w", err)
	}
	defer closeSub()

	held := &heldObjects{set: make(map[model.ObjectRef]struct{})}

	go subscriberLoop(ctx, log, cfg.BootstrapAddress, id, next, held)

	for name := range demoFunctions {
		reply, err := control.Call(ctx, wire.Message{Type: wire.TypeRegisterFunction, WorkerID: id, FnName: name})
		if err != nil {
			return fmt.Errorf("register function %s: %w", name, err)
		}
		if reply.Type != wire.TypeAck {
			return fmt.Errorf("server sent a non-ACK reply to REGISTER_FUNCTION %s", name)
		}
		log.With("fn", name).Info("function registered")
	}

	replier, err := transport.ListenTCP(cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("bind worker endpoint %s: %w", cfg.ListenAddress, err)
	}
	defer replier.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ex, err := replier.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Errorf("receive: %v", err)
			continue
		}
		handleInvoke(ctx, log, control, id, ex, held)
	}
}

// heldObjects tracks which object references this worker has received via
// a DELIVER broadcast, so handleInvoke knows when it can safely run a call
// whose arguments were produced elsewhere.
type heldObjects struct {
	mu  sync.Mutex
	set map[model.ObjectRef]struct{}
}

func (h *heldObjects) mark(ref model.ObjectRef) {
	h.mu.Lock()
	h.set[ref] = struct{}{}
	h.mu.Unlock()
}

func (h *heldObjects) has(ref model.ObjectRef) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.set[ref]
	return ok
}

// subscriberLoop drains the broadcast subscription, acking HELLO exactly
// once and recording DELIVER notifications as locally-held objects.
func subscriberLoop(ctx context.Context, log *clog.Logger, bootstrapAddress string, id model.WorkerID, next func() (wire.Message, error), held *heldObjects) {
	var helloed bool
	for {
		msg, err := next()
		if err != nil {
			if ctx.Err() == nil {
				log.Errorf("broadcast subscription: %v", err)
			}
			return
		}

		switch msg.Type {
		case wire.TypeHello:
			if helloed {
				continue
			}
			helloed = true
			if err := sayHello(ctx, bootstrapAddress, id); err != nil {
				log.Errorf("hello handshake: %v", err)
			}

		case wire.TypeDeliver:
			held.mark(msg.ObjRef)

		case wire.TypeDebug:
			log.With("worker_queue", msg.SchedulerInfo.WorkerQueue).With("job_queue", msg.SchedulerInfo.JobQueue).Info("debug snapshot")

		case wire.TypeRegisterClient:
			log.With("address", msg.Address).Info("peer worker address announced")
		}
	}
}

func sayHello(ctx context.Context, bootstrapAddress string, id model.WorkerID) error {
	cc, err := grpc.DialContext(ctx, bootstrapAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial bootstrap endpoint: %w", err)
	}
	defer cc.Close()
	client := bootstrap.NewClient(cc)
	return bootstrap.SayHello(ctx, client, id)
}

// handleInvoke runs a demo function and reports completion, pulling any
// missing arguments first.
func handleInvoke(ctx context.Context, log *clog.Logger, control transport.Requester, id model.WorkerID, ex *transport.Exchange, held *heldObjects) {
	msg := ex.Request
	if msg.Type != wire.TypeInvoke {
		log.Errorf("worker endpoint received unexpected message type %v", msg.Type)
		ex.Reply(wire.Message{Type: wire.TypeAck})
		return
	}

	if err := ex.Reply(wire.Message{Type: wire.TypeAck}); err != nil {
		log.Errorf("ack invoke: %v", err)
		return
	}

	call := msg.Call
	for _, arg := range model.ArgsToSend(call.Args, func(ref model.ObjectRef) bool { return !held.has(ref) }) {
		if _, err := control.Call(ctx, wire.Message{Type: wire.TypePull, WorkerID: id, ObjRef: arg}); err != nil {
			log.Errorf("pull arg %d: %v", arg, err)
			return
		}
		for !held.has(arg) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	fn, ok := demoFunctions[call.Name]
	if !ok {
		log.Errorf("invoked unregistered function %s", call.Name)
		return
	}
	fn(call.Args)
	held.mark(call.Result)

	if _, err := control.Call(ctx, wire.Message{Type: wire.TypeDone, WorkerID: id, Call: call}); err != nil {
		log.Errorf("report done for %s: %v", call.Name, err)
	}
}
