// Command mallob is the process entry point for a mallob worker cluster.
// It parses the CLI surface (spec §6), wires a local reduction tree and
// message transport, and runs one internal/worker.Worker per configured
// rank until interrupted. The real MPI transport is an out-of-scope
// external collaborator (spec §1 Non-goals' "a durable persistent state
// across cluster restarts" assumes the same launcher-per-run model MPI
// does); this binary uses internal/transport.Hub as the in-process
// stand-in, the way a single bigmachine driver process can run an
// in-process "local" system for development.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/grailbio/base/log"

	"github.com/jabo17/mallob/internal/balancer"
	"github.com/jabo17/mallob/internal/config"
	"github.com/jabo17/mallob/internal/transport"
	"github.com/jabo17/mallob/internal/worker"
)

func main() {
	params, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Error.Printf("mallob: %v", err)
		os.Exit(1)
	}
	if code := run(params); code != 0 {
		os.Exit(code)
	}
}

// run wires up the cluster and blocks until every worker has exited,
// returning an exit code per spec §6 "Exit codes" (0 normal; signal
// numbers are handled by the OS once this process forwards SIGTERM to
// its children via context cancellation, so run itself only ever
// returns 0 or 1).
func run(params config.Params) int {
	size := params.NumWorkers
	if size < 1 {
		size = 1
	}
	hub := transport.NewHub(size, 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("mallob: received %v, shutting down", sig)
		cancel()
	}()

	workers := make([]*worker.Worker, size)
	for rank := 0; rank < size; rank++ {
		tree := balancer.Tree{Rank: rank, ClusterSize: size}
		workers[rank] = worker.New(params, hub.Queue(rank), tree)
	}

	var wg sync.WaitGroup
	exitCode := 0
	var mu sync.Mutex
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Error.Printf("mallob: worker exited with error: %v", err)
				mu.Lock()
				exitCode = 1
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return exitCode
}
