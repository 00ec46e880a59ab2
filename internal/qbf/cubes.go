package qbf

import (
	"context"
	"sync"

	"github.com/jabo17/mallob/internal/job"
	"github.com/jabo17/mallob/internal/transport"
)

// Cube is one partial assignment (a conjunction of literals) to try
// before falling back to full search, grounded on cube_lib's Cube.
type Cube struct {
	Literals []int32
}

// CubeWorkerState is CubeWorker's communication state machine, grounded
// directly on cube_worker.cpp's WorkerState enum and transitions:
// idling -> waiting -> requesting -> working -> {solved | failed} ->
// returning -> waiting (loop, until solved or interrupted).
type CubeWorkerState int

const (
	CubeIdling CubeWorkerState = iota
	CubeWaiting
	CubeRequesting
	CubeWorking
	CubeSolved
	CubeFailed
	CubeReturning
)

// SolveFunc attempts a single cube and reports its outcome. The
// underlying CDCL engine is an opaque out-of-scope collaborator (spec §1
// Non-goals); SolveFunc is the seam it plugs into.
type SolveFunc func(ctx context.Context, cube Cube) (job.Result, error)

// CubeWorker drives the MSG_REQUEST_CUBES / MSG_SEND_CUBES /
// MSG_RETURN_FAILED_CUBES / MSG_RECEIVED_FAILED_CUBES round trip for one
// local solver engine working through a batch of cubes, grounded on
// CubeWorker (cube_worker.cpp).
type CubeWorker struct {
	mu          sync.Mutex
	state       CubeWorkerState
	localCubes  []Cube
	interrupted bool
	solve       SolveFunc
	result      job.Result
}

// NewCubeWorker constructs a worker in the idling state.
func NewCubeWorker(solve SolveFunc) *CubeWorker {
	return &CubeWorker{state: CubeIdling, solve: solve}
}

// Start transitions from idling to waiting, ready to request its first
// batch of cubes (CubeWorker::mainLoop's initial state).
func (w *CubeWorker) Start() {
	w.mu.Lock()
	w.state = CubeWaiting
	w.mu.Unlock()
}

// State reports the worker's current state.
func (w *CubeWorker) State() CubeWorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// WantsToCommunicate reports whether the worker has an outbound message
// pending (CubeWorker::wantsToCommunicate).
func (w *CubeWorker) WantsToCommunicate() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == CubeWaiting || w.state == CubeFailed
}

// BeginCommunication returns the message the worker wants to send given
// its current state — a cube request with no payload, or its exhausted
// cube batch to report as failed — and transitions state accordingly
// (CubeWorker::beginCommunication). ok is false if there is nothing to
// send.
func (w *CubeWorker) BeginCommunication() (tag transport.Tag, failedCubes []Cube, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case CubeWaiting:
		w.state = CubeRequesting
		return transport.MsgRequestCubes, nil, true
	case CubeFailed:
		w.state = CubeReturning
		return transport.MsgReturnFailedCubes, w.localCubes, true
	default:
		return 0, nil, false
	}
}

// DigestSendCubes installs a freshly received batch in response to
// MSG_SEND_CUBES and transitions to working (digestSendCubes).
func (w *CubeWorker) DigestSendCubes(cubes []Cube) {
	w.mu.Lock()
	w.localCubes = cubes
	w.state = CubeWorking
	w.mu.Unlock()
}

// DigestReceivedFailedCubes acknowledges MSG_RECEIVED_FAILED_CUBES and
// returns to waiting, ready to request a new batch
// (digestReveicedFailedCubes).
func (w *CubeWorker) DigestReceivedFailedCubes() {
	w.mu.Lock()
	w.state = CubeWaiting
	w.mu.Unlock()
}

// Solve works through the currently assigned cubes sequentially,
// stopping as soon as one is SAT (CubeWorker::solve). It is meant to run
// on its own goroutine once the worker has transitioned to working, and
// checks Interrupted() between cubes to return promptly on cancellation.
func (w *CubeWorker) Solve(ctx context.Context) {
	w.mu.Lock()
	cubes := append([]Cube(nil), w.localCubes...)
	w.mu.Unlock()

	for _, cube := range cubes {
		if w.Interrupted() {
			return
		}
		result, err := w.solve(ctx, cube)
		if err != nil {
			return
		}
		if result == job.ResultSAT {
			w.mu.Lock()
			w.state = CubeSolved
			w.result = job.ResultSAT
			w.mu.Unlock()
			return
		}
		// UNSAT under this cube: move on to the next one.
	}
	w.mu.Lock()
	if !w.interrupted {
		w.state = CubeFailed
	}
	w.mu.Unlock()
}

// Interrupt stops an in-progress Solve at the next cube boundary and
// prevents it from reporting a state transition
// (CubeWorker::interrupt).
func (w *CubeWorker) Interrupt() {
	w.mu.Lock()
	w.interrupted = true
	w.mu.Unlock()
}

// Interrupted reports whether Interrupt has been called.
func (w *CubeWorker) Interrupted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interrupted
}

// Result returns the worker's result once State() == CubeSolved.
func (w *CubeWorker) Result() job.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}
