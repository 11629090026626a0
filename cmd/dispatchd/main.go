// Command dispatchd runs the dispatchd server: the front end, the
// scheduler, the broadcast publisher, the bootstrap handshake service, and
// the /metrics endpoint, wired together and coordinated the way
// coordinator.go starts and joins its sibling goroutines.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/dispatchd/dispatchd/internal/clog"
	"github.com/dispatchd/dispatchd/internal/config"
	"github.com/dispatchd/dispatchd/internal/dotgraph"
	"github.com/dispatchd/dispatchd/internal/fntable"
	"github.com/dispatchd/dispatchd/internal/frontend"
	"github.com/dispatchd/dispatchd/internal/graph"
	"github.com/dispatchd/dispatchd/internal/metrics"
	"github.com/dispatchd/dispatchd/internal/objtable"
	"github.com/dispatchd/dispatchd/internal/pool"
	"github.com/dispatchd/dispatchd/internal/registry"
	"github.com/dispatchd/dispatchd/internal/scheduler"
	"github.com/dispatchd/dispatchd/internal/transport"
	"github.com/dispatchd/dispatchd/internal/transport/bootstrap"
)

func main() {
	var cfg config.ServerConfig
	var dotPath string
	var logOutput bool

	flag.StringVar(&cfg.ListenAddress, "listen", ":7000", "client request/reply address")
	flag.StringVar(&cfg.BroadcastAddress, "broadcast", ":7001", "broadcast publisher address")
	flag.StringVar(&cfg.BootstrapAddress, "bootstrap", ":7002", "HELLO-ack bootstrap gRPC address")
	flag.StringVar(&cfg.MetricsAddress, "metrics", ":7003", "/metrics HTTP address")
	flag.StringVar(&dotPath, "dot", "", "path to write a .dot snapshot of the computation graph on SIGUSR1 (disabled if empty)")
	flag.BoolVar(&logOutput, "l", false, "show logging output (for debugging)")
	flag.Parse()

	if logOutput {
		logger := logrus.New()
		cfg.Logger = logger.WithField("service", "dispatchd")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dispatchd: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, dotPath); err != nil {
		fmt.Fprintf(os.Stderr, "dispatchd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, dotPath string) error {
	log := clog.New("dispatchd", cfg.Logger)
	m := metrics.New()

	g := graph.New()
	ot := objtable.New()
	ft := fntable.New()
	reg := registry.New()
	sched := scheduler.New(ot, ft, clog.New("scheduler", cfg.Logger), m)

	broadcast, err := transport.ListenBroadcastTCP(cfg.BroadcastAddress)
	if err != nil {
		return fmt.Errorf("bind broadcast endpoint: %w", err)
	}

	acks := bootstrap.NewAckServer()
	grpcServer := grpc.NewServer()
	bootstrap.RegisterServer(grpcServer, acks)
	bootstrapLis, err := net.Listen("tcp", cfg.BootstrapAddress)
	if err != nil {
		return fmt.Errorf("bind bootstrap endpoint: %w", err)
	}

	p := pool.New(reg, ot, sched, transport.NewTCPDialer(), broadcast, acks, clog.New("pool", cfg.Logger), m)

	replier, err := transport.ListenTCP(cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("bind client endpoint: %w", err)
	}
	fe := frontend.New(g, ot, ft, p, replier, clog.New("frontend", cfg.Logger), m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error { sched.Run(gctx); return nil })
	grp.Go(func() error { return fe.Run(gctx) })
	grp.Go(func() error { return grpcServer.Serve(bootstrapLis) })
	grp.Go(func() error {
		if cfg.MetricsAddress == "" {
			return nil
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			<-gctx.Done()
			srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-sigCh:
				if sig == syscall.SIGUSR1 {
					dumpGraph(log, g, dotPath)
					continue
				}
				log.Infof("received signal %v, shutting down", sig)
				cancel()
				grpcServer.GracefulStop()
				replier.Close()
				broadcast.Close()
				p.Close()
				return nil
			}
		}
	})

	log.Infof("dispatchd listening on %s (broadcast %s, bootstrap %s, metrics %s)",
		cfg.ListenAddress, cfg.BroadcastAddress, cfg.BootstrapAddress, cfg.MetricsAddress)

	err = grp.Wait()
	if err != nil && gctx.Err() != nil {
		// shutdown in progress, not a real failure
		return nil
	}
	return err
}

func dumpGraph(log *clog.Logger, g *graph.Graph, dotPath string) {
	if dotPath == "" {
		log.Error("SIGUSR1 received but -dot path not configured, ignoring")
		return
	}
	f, err := os.Create(dotPath)
	if err != nil {
		log.Errorf("create dot file %s: %v", dotPath, err)
		return
	}
	defer f.Close()
	if err := dotgraph.Write(f, g); err != nil {
		log.Errorf("write dot file %s: %v", dotPath, err)
		return
	}
	log.Infof("wrote computation graph snapshot to %s", dotPath)
}
