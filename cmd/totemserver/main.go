// Command totemserver is the process entrypoint: it owns the listening
// socket, wires the Registry/Command Bus/Lobby Controller/Connection
// Handler together, and carries the process-wide "running" flag down to
// clean SIGINT shutdown (spec.md §5 Cancellation, §6 CLI).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"totem/internal/bus"
	"totem/internal/connection"
	"totem/internal/lobby"
	"totem/internal/registry"
	"totem/internal/totemlog"
)

// Exit codes per spec.md §6.
const (
	exitOK             = 0
	exitAddrResolution = 1
	exitMissingPort    = 10

	metricsAddrEnvVar = "TOTEM_METRICS_ADDR"
	developmentLogEnv = "TOTEM_DEV_LOG"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: totemserver <port>")
		return exitMissingPort
	}

	if err := totemlog.Init(os.Getenv(developmentLogEnv) != ""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return exitAddrResolution
	}
	logger := totemlog.L()
	defer logger.Sync()

	addr, err := net.ResolveTCPAddr("tcp", "0.0.0.0:"+os.Args[1])
	if err != nil {
		logger.Error("address resolution failed", zap.Error(err))
		return exitAddrResolution
	}

	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		logger.Error("socket bind failed", zap.Error(err))
		return errnoOf(err)
	}
	defer ln.Close()

	reg := registry.New()
	cb := bus.New("TotemQueue", bus.DefaultCapacity)
	mgr := connection.NewManager()
	lc := lobby.New(reg, cb, mgr)

	if maddr := os.Getenv(metricsAddrEnvVar); maddr != "" {
		go serveMetrics(logger, maddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lc.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptLoop(ctx, logger, ln, reg, cb, mgr)
	}()

	logger.Info("totemserver: listening", zap.String("addr", ln.Addr().String()))
	<-ctx.Done()
	logger.Info("totemserver: shutting down")

	ln.Close()
	wg.Wait()
	return exitOK
}

// acceptLoop is the out-of-scope socket acceptor from spec.md §1: it
// accepts raw connections and hands each to the Connection Handler on
// its own goroutine.
func acceptLoop(ctx context.Context, logger *zap.Logger, ln net.Listener, reg *registry.Registry, cb *bus.Bus, mgr *connection.Manager) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go mgr.Serve(ctx, conn, reg, cb)
	}
}

func serveMetrics(logger *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("totemserver: metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server exited", zap.Error(err))
	}
}

// errnoOf extracts the underlying syscall errno from a bind failure where
// possible, falling back to 1 (spec.md §6: "non-zero errno on socket
// creation failure").
func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return exitAddrResolution
}
