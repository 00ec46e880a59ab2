// Package worker implements a per-process worker (spec §2 "Each process
// in the cluster runs zero or more of three roles ... worker (hosts job
// nodes)"): it owns a local job.Store and drives the balancer
// (internal/balancer), the solver subprocess adapter (internal/subprocess)
// and the clause-exchange core (internal/clauses) for every job node it
// hosts, plus the QBF splitting driver (internal/qbf) for QBF nodes.
// Grounded on exec/bigmachine.go's bigmachineExecutor: a single
// long-running supervisor whose main loop advances a message queue and
// whose slower work runs on background goroutines coordinated with
// errgroup.
package worker

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"

	"github.com/jabo17/mallob/internal/balancer"
	"github.com/jabo17/mallob/internal/config"
	"github.com/jabo17/mallob/internal/job"
	"github.com/jabo17/mallob/internal/qbf"
	"github.com/jabo17/mallob/internal/transport"
)

const (
	// advancePollTimeout bounds how long Queue.Advance blocks per main
	// loop iteration (spec §5 "the main loop blocks only inside
	// messageQueue.advance() (I/O poll with microsecond timeout)").
	advancePollTimeout = 2 * time.Millisecond
	// healthTickPeriod is the cadence of the worker's liveness and
	// resource-limit sweep (spec §5 "the worker's periodic health
	// tick").
	healthTickPeriod = 50 * time.Millisecond
	// clauseExchangeTickPeriod is the cadence at which each hosted SAT
	// attempt's learned clauses are collected and redistributed.
	clauseExchangeTickPeriod = 20 * time.Millisecond
)

// Worker is a single worker process's supervisor: one instance per
// process, regardless of how many job nodes it currently hosts.
type Worker struct {
	params config.Params
	queue  transport.Queue
	bal    *balancer.Balancer
	store  *job.Store
	pid    int

	mu        sync.Mutex
	attempts  map[int]*satAttempt
	nextJobID int
	cancel    context.CancelFunc
}

// New constructs a Worker positioned at tree in the balancing reduction
// tree, communicating over queue.
func New(params config.Params, queue transport.Queue, tree balancer.Tree) *Worker {
	w := &Worker{
		params:   params,
		queue:    queue,
		store:    job.NewStore(),
		pid:      os.Getpid(),
		attempts: make(map[int]*satAttempt),
	}
	w.bal = balancer.New(tree, queue, params.LoadFactor, w.onVolume, params.BalancingPeriod)
	return w
}

// onVolume is the balancer's VolumeUpdateFunc: it only logs at this
// layer, including the balancing latency it is handed (spec §9
// "Supplemented features"; balancer.Stats does not carry latencies); the
// worker itself does not need to react beyond observing the assignment.
func (w *Worker) onVolume(jobID, volume int, latency time.Duration) {
	log.Printf("worker: job %d volume -> %d (converged in %s)", jobID, volume, latency)
}

// Run drives the worker's main loop and background tasks until ctx is
// done or a fatal error occurs, mirroring bigmachineExecutor's use of
// errgroup to supervise concurrent long-running loops from one place.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.messageLoop(ctx) })
	g.Go(func() error { return w.healthLoop(ctx) })
	g.Go(func() error { return w.clauseExchangeLoop(ctx) })
	return g.Wait()
}

// Stop requests an orderly shutdown of a running Worker, equivalent to
// receiving MSG_DO_EXIT from the tree.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Worker) messageLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		m, ok := w.queue.Advance(advancePollTimeout)
		if !ok {
			continue
		}
		w.handleMessage(m)
	}
}

// handleMessage dispatches one inbound message. Unrecognized tags are
// dropped with a warning rather than propagated, per spec §7's
// ProtocolViolation policy: "dropped with a warning", never an error
// that would tear down the worker.
func (w *Worker) handleMessage(m transport.Message) {
	switch m.Tag {
	case transport.MsgDoExit:
		w.Stop()
	case transport.MsgReduceData, transport.MsgBroadcastData:
		w.bal.Handle(m)
	default:
		log.Error.Printf("worker: dropping message with tag %v from rank %d: no handler wired at this rank", m.Tag, m.Source)
	}
}

func (w *Worker) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(healthTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.healthTick()
		}
	}
}

// healthTick sweeps every hosted SAT attempt for a crashed subprocess
// (spec §8 testable property 5, "Subprocess crash") or an exceeded
// wallclock limit (spec §5 "Cancellation & timeouts"), tearing either
// down and relinquishing the job node.
func (w *Worker) healthTick() {
	w.mu.Lock()
	snapshot := make(map[int]*satAttempt, len(w.attempts))
	for id, a := range w.attempts {
		snapshot[id] = a
	}
	w.mu.Unlock()

	for id, a := range snapshot {
		if exited, err := a.adapter.Exited(); exited {
			if err != nil {
				log.Error.Printf("worker: attempt for job %d: subprocess fault: %v", id, err)
			}
			w.relinquish(id, a)
			continue
		}
		if a.exceededLimits() {
			log.Printf("worker: job %d exceeded its wallclock limit, terminating", id)
			_ = a.terminate()
			w.relinquish(id, a)
		}
	}
}

func (w *Worker) relinquish(jobID int, a *satAttempt) {
	_ = a.adapter.FreeSharedMemory()
	w.store.Remove(jobID)
	w.bal.OnTerminate(jobID)
	w.mu.Lock()
	delete(w.attempts, jobID)
	w.mu.Unlock()
}

func (w *Worker) clauseExchangeLoop(ctx context.Context) error {
	ticker := time.NewTicker(clauseExchangeTickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.mu.Lock()
			snapshot := make([]*satAttempt, 0, len(w.attempts))
			for _, a := range w.attempts {
				snapshot = append(snapshot, a)
			}
			w.mu.Unlock()
			for _, a := range snapshot {
				a.exchangeClauses()
			}
		}
	}
}

// allocJobID hands out worker-local job ids for jobs this worker
// originates, either as a client-facing submission (SubmitJob) or as a
// QBF split's child (qbfSpawner).
func (w *Worker) allocJobID() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextJobID++
	return w.nextJobID
}

// SubmitJob validates desc, wires it to the appropriate capability
// driver for its Application, registers it with the job store and the
// balancer, and starts it. It is the worker-local stand-in for the
// out-of-scope client-facing job submission API (spec §6 "Job submission
// JSON").
func (w *Worker) SubmitJob(desc job.Description) (*job.Job, error) {
	if desc.ID == 0 {
		desc.ID = w.allocJobID()
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	j := job.New(desc)
	j.Initialize(0, w.queue.Rank(), w.queue.Rank())
	j.SetClientRank(w.queue.Rank())

	switch desc.Application {
	case job.SAT:
		att, err := newSATAttempt(w, j)
		if err != nil {
			return nil, err
		}
		j.SetCapabilities(att.capabilities())
		w.mu.Lock()
		w.attempts[desc.ID] = att
		w.mu.Unlock()
	case job.QBF:
		driver := qbf.NewDriver(desc, w.qbfSpawner(j))
		j.SetCapabilities(driver.Capabilities())
	default:
		return nil, errors.E(errors.Invalid, "worker: unknown job application", desc.Application)
	}

	w.store.Put(j)
	w.bal.OnActivate(desc.ID, 1, desc.Priority)
	if err := j.Start(); err != nil {
		w.store.Remove(desc.ID)
		w.bal.OnTerminate(desc.ID)
		return nil, err
	}
	j.SwitchState(job.StateActive)
	return j, nil
}

// Store exposes the worker's job table, e.g. for an operator-facing
// status endpoint.
func (w *Worker) Store() *job.Store { return w.store }

// Balancer exposes the worker's balancer instance, e.g. to read
// Balancer.Stats() for monitoring.
func (w *Worker) Balancer() *balancer.Balancer { return w.bal }
